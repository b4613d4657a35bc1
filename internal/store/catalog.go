package store

import (
	"fmt"
	"strings"

	"qms/internal/models"
)

func NormalizeServiceCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateService checks a service against the rest of the catalog. A
// service with the same id as an existing entry is treated as an edit
// of that entry.
func ValidateService(catalog models.Catalog, service models.Service) error {
	if strings.TrimSpace(service.ID) == "" {
		return invalid("id", "is required")
	}
	if !validServiceCode(service.Code) {
		return invalid("code", "must be 1-2 uppercase letters or digits")
	}
	if strings.TrimSpace(service.Name) == "" {
		return invalid("name", "is required")
	}
	if service.EstimatedTimeMinutes < 1 {
		return invalid("estimatedTimeMinutes", "must be at least 1")
	}
	for _, existing := range catalog.Services {
		if existing.ID != service.ID && existing.Code == service.Code {
			return invalid("code", fmt.Sprintf("%q is already used by %s", service.Code, existing.Name))
		}
	}
	return nil
}

func ValidateCounter(catalog models.Catalog, counter models.Counter) error {
	if strings.TrimSpace(counter.ID) == "" {
		return invalid("id", "is required")
	}
	if strings.TrimSpace(counter.Name) == "" {
		return invalid("name", "is required")
	}
	if !counter.Status.Valid() {
		return invalid("status", fmt.Sprintf("%q is not one of OPEN, CLOSED, PAUSED", counter.Status))
	}
	if len(counter.AssignedServiceIDs) == 0 {
		return invalid("assignedServiceIds", "must name at least one service")
	}
	seen := make(map[string]bool, len(counter.AssignedServiceIDs))
	for _, id := range counter.AssignedServiceIDs {
		if seen[id] {
			return invalid("assignedServiceIds", fmt.Sprintf("lists %q twice", id))
		}
		seen[id] = true
		if _, ok := catalog.Service(id); !ok {
			return invalid("assignedServiceIds", fmt.Sprintf("references unknown service %q", id))
		}
	}
	return nil
}

func ValidateUser(catalog models.Catalog, user models.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return invalid("id", "is required")
	}
	if strings.TrimSpace(user.Name) == "" {
		return invalid("name", "is required")
	}
	if !user.Role.Valid() {
		return invalid("role", fmt.Sprintf("%q is not a known role", user.Role))
	}
	if user.CounterID != "" {
		if _, ok := catalog.Counter(user.CounterID); !ok {
			return invalid("counterId", fmt.Sprintf("references unknown counter %q", user.CounterID))
		}
	}
	return nil
}

// ValidateCatalog checks every entry and id uniqueness. Used for seed
// files and persisted state.
func ValidateCatalog(catalog models.Catalog) error {
	ids := map[string]bool{}
	for _, service := range catalog.Services {
		if ids["service:"+service.ID] {
			return invalid("services", fmt.Sprintf("duplicate id %q", service.ID))
		}
		ids["service:"+service.ID] = true
		if err := ValidateService(catalog, service); err != nil {
			return err
		}
	}
	for _, counter := range catalog.Counters {
		if ids["counter:"+counter.ID] {
			return invalid("counters", fmt.Sprintf("duplicate id %q", counter.ID))
		}
		ids["counter:"+counter.ID] = true
		if err := ValidateCounter(catalog, counter); err != nil {
			return err
		}
	}
	for _, user := range catalog.Users {
		if ids["user:"+user.ID] {
			return invalid("users", fmt.Sprintf("duplicate id %q", user.ID))
		}
		ids["user:"+user.ID] = true
		if err := ValidateUser(catalog, user); err != nil {
			return err
		}
	}
	return validateBindings(catalog)
}

// validateBindings requires every operator binding to be recorded on
// both the user and the counter.
func validateBindings(catalog models.Catalog) error {
	for _, counter := range catalog.Counters {
		if counter.CurrentOperatorID == "" {
			continue
		}
		user, ok := catalog.User(counter.CurrentOperatorID)
		if !ok {
			return invalid("currentOperatorId", fmt.Sprintf("counter %s references unknown user %q", counter.ID, counter.CurrentOperatorID))
		}
		if user.CounterID != counter.ID {
			return invalid("currentOperatorId", fmt.Sprintf("counter %s and user %s disagree on their binding", counter.ID, user.ID))
		}
	}
	for _, user := range catalog.Users {
		if user.CounterID == "" {
			continue
		}
		if user.Role != models.RoleOperator {
			return invalid("counterId", fmt.Sprintf("user %s is %s; only operators can be bound to a counter", user.ID, user.Role))
		}
		counter, _ := catalog.Counter(user.CounterID)
		if counter.CurrentOperatorID != user.ID {
			return invalid("counterId", fmt.Sprintf("user %s and counter %s disagree on their binding", user.ID, counter.ID))
		}
	}
	return nil
}

// LinkOperators completes bindings recorded on one side only, as in
// hand-written seed files. The first user naming a counter wins it.
func LinkOperators(catalog models.Catalog) models.Catalog {
	out := catalog.Clone()
	for i := range out.Users {
		user := &out.Users[i]
		if user.CounterID == "" {
			continue
		}
		for j := range out.Counters {
			counter := &out.Counters[j]
			if counter.ID == user.CounterID && counter.CurrentOperatorID == "" {
				counter.CurrentOperatorID = user.ID
			}
		}
	}
	for i := range out.Counters {
		counter := out.Counters[i]
		if counter.CurrentOperatorID == "" {
			continue
		}
		for j := range out.Users {
			if out.Users[j].ID == counter.CurrentOperatorID && out.Users[j].CounterID == "" {
				out.Users[j].CounterID = counter.ID
			}
		}
	}
	return out
}

// ValidateState checks a loaded state: the catalog, token ids and
// statuses, and that every token still in flight references a service
// and, once called, a counter in the catalog.
func ValidateState(state models.SystemState) error {
	catalog := state.Catalog()
	if err := ValidateCatalog(catalog); err != nil {
		return err
	}
	seen := make(map[string]bool, len(state.Tokens))
	for _, token := range state.Tokens {
		if strings.TrimSpace(token.ID) == "" {
			return invalid("tokens", "token id is required")
		}
		if seen[token.ID] {
			return invalid("tokens", fmt.Sprintf("duplicate token id %q", token.ID))
		}
		seen[token.ID] = true
		if !token.Status.Valid() {
			return invalid("tokens", fmt.Sprintf("token %s has unknown status %q", token.ID, token.Status))
		}
		if token.Status.Terminal() {
			continue
		}
		if _, ok := catalog.Service(token.ServiceID); !ok {
			return invalid("tokens", fmt.Sprintf("token %s references unknown service %q", token.TicketNumber, token.ServiceID))
		}
		if token.Status == models.StatusWaiting {
			continue
		}
		if _, ok := catalog.Counter(token.CounterID); !ok {
			return invalid("tokens", fmt.Sprintf("token %s references unknown counter %q", token.TicketNumber, token.CounterID))
		}
	}
	return nil
}

func validServiceCode(code string) bool {
	if len(code) < 1 || len(code) > 2 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
