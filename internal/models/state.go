package models

// Catalog is the reference data the queue engine reads but does not own.
type Catalog struct {
	Services []Service `json:"services" yaml:"services"`
	Counters []Counter `json:"counters" yaml:"counters"`
	Users    []User    `json:"users" yaml:"users"`
}

// SystemState is the unit of persistence and of viewer synchronization.
// Field order matches the persisted blob.
type SystemState struct {
	Services []Service `json:"services"`
	Counters []Counter `json:"counters"`
	Users    []User    `json:"users"`
	Tokens   []Token   `json:"tokens"`
}

func (c Catalog) Service(id string) (Service, bool) {
	for _, service := range c.Services {
		if service.ID == id {
			return service, true
		}
	}
	return Service{}, false
}

func (c Catalog) Counter(id string) (Counter, bool) {
	for _, counter := range c.Counters {
		if counter.ID == id {
			return counter, true
		}
	}
	return Counter{}, false
}

func (c Catalog) User(id string) (User, bool) {
	for _, user := range c.Users {
		if user.ID == id {
			return user, true
		}
	}
	return User{}, false
}

// Clone deep-copies the catalog so snapshots never alias each other.
func (c Catalog) Clone() Catalog {
	out := Catalog{
		Services: append([]Service{}, c.Services...),
		Counters: make([]Counter, len(c.Counters)),
		Users:    append([]User{}, c.Users...),
	}
	for i, counter := range c.Counters {
		counter.AssignedServiceIDs = append([]string{}, counter.AssignedServiceIDs...)
		out.Counters[i] = counter
	}
	return out
}

func (s SystemState) Catalog() Catalog {
	return Catalog{Services: s.Services, Counters: s.Counters, Users: s.Users}
}

// NewSystemState assembles a state from a catalog and a token list. Both
// are copied.
func NewSystemState(catalog Catalog, tokens []Token) SystemState {
	c := catalog.Clone()
	out := SystemState{
		Services: c.Services,
		Counters: c.Counters,
		Users:    c.Users,
		Tokens:   make([]Token, len(tokens)),
	}
	for i, token := range tokens {
		out.Tokens[i] = token.Clone()
	}
	return out
}

// DefaultCatalog is the seed used when no state has been persisted yet.
func DefaultCatalog() Catalog {
	return Catalog{
		Services: []Service{
			{ID: "s1", Code: "D", Name: "Cash Deposit", Description: "Deposit cash into your account", EstimatedTimeMinutes: 4},
			{ID: "s2", Code: "W", Name: "Cash Withdrawal", Description: "Withdraw cash from your account", EstimatedTimeMinutes: 3},
			{ID: "s3", Code: "P", Name: "Passbook Update", Description: "Update your passbook records", EstimatedTimeMinutes: 6},
			{ID: "s4", Code: "L", Name: "Loan Inquiry", Description: "Speak with a loan officer", EstimatedTimeMinutes: 15},
		},
		Counters: []Counter{
			{ID: "c1", Name: "Counter 1", Status: CounterOpen, AssignedServiceIDs: []string{"s1", "s2"}, CurrentOperatorID: "u1"},
			{ID: "c2", Name: "Counter 2", Status: CounterOpen, AssignedServiceIDs: []string{"s1", "s2", "s3"}, CurrentOperatorID: "u2"},
			{ID: "c3", Name: "Counter 3", Status: CounterClosed, AssignedServiceIDs: []string{"s4"}, CurrentOperatorID: "u3"},
		},
		Users: []User{
			{ID: "u0", Name: "System Admin", Email: "admin@bank.com", Role: RoleAdmin},
			{ID: "u1", Name: "Alice Operator", Email: "alice@bank.com", Role: RoleOperator, CounterID: "c1"},
			{ID: "u2", Name: "Bob Operator", Email: "bob@bank.com", Role: RoleOperator, CounterID: "c2"},
			{ID: "u3", Name: "Charlie Loan", Email: "charlie@bank.com", Role: RoleOperator, CounterID: "c3"},
		},
	}
}
