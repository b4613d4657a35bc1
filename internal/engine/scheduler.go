package engine

import (
	"sort"
	"strings"
	"time"

	"qms/internal/models"
)

// Scheduler derives queue figures from one state snapshot. It never
// mutates the snapshot and may be queried any number of times.
type Scheduler struct {
	catalog models.Catalog
	tokens  []models.Token
}

func NewScheduler(state models.SystemState) Scheduler {
	return Scheduler{catalog: state.Catalog(), tokens: state.Tokens}
}

// Position is 1 plus the WAITING tokens of the same service created
// earlier. Equal createdAt values are ordered by insertion. Tokens that
// are not WAITING have position 0.
func (s Scheduler) Position(token models.Token) int {
	if token.Status != models.StatusWaiting {
		return 0
	}
	position := 1
	insertedBefore := true
	for _, other := range s.tokens {
		if other.ID == token.ID {
			insertedBefore = false
			continue
		}
		if other.Status != models.StatusWaiting || other.ServiceID != token.ServiceID {
			continue
		}
		if other.CreatedAt.Before(token.CreatedAt) || (insertedBefore && other.CreatedAt.Equal(token.CreatedAt)) {
			position++
		}
	}
	return position
}

// EligibleCounters counts OPEN counters assigned to the service.
func (s Scheduler) EligibleCounters(serviceID string) int {
	count := 0
	for _, counter := range s.catalog.Counters {
		if counter.Eligible(serviceID) {
			count++
		}
	}
	return count
}

func (s Scheduler) EstimatedWaitMinutes(token models.Token) int {
	position := s.Position(token)
	if position == 0 {
		return 0
	}
	service, ok := s.catalog.Service(token.ServiceID)
	if !ok {
		return 0
	}
	counters := s.EligibleCounters(service.ID)
	if counters < 1 {
		counters = 1
	}
	total := position * service.EstimatedTimeMinutes
	return (total + counters - 1) / counters
}

// NextToCall picks the oldest WAITING token among the counter's assigned
// services. Services with no open counter are never picked by anyone, so
// their tokens wait until a counter for them opens.
func (s Scheduler) NextToCall(counter models.Counter) (models.Token, bool) {
	var (
		best  models.Token
		found bool
	)
	for _, token := range s.tokens {
		if token.Status != models.StatusWaiting || !counter.Serves(token.ServiceID) {
			continue
		}
		if !found || callsBefore(token, best) {
			best = token
			found = true
		}
	}
	return best, found
}

func callsBefore(a, b models.Token) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Sequence() < b.Sequence()
}

// QueueLength counts WAITING tokens for a service, or for all services
// when serviceID is empty.
func (s Scheduler) QueueLength(serviceID string) int {
	count := 0
	for _, token := range s.tokens {
		if token.Status == models.StatusWaiting && (serviceID == "" || token.ServiceID == serviceID) {
			count++
		}
	}
	return count
}

// ActiveToken returns the CALLED or SERVING token bound to the counter.
// When several exist the most recently called wins.
func (s Scheduler) ActiveToken(counterID string) (models.Token, bool) {
	var (
		active models.Token
		found  bool
	)
	for _, token := range s.tokens {
		if token.CounterID != counterID || !inService(token) {
			continue
		}
		if !found || !calledAt(token).Before(calledAt(active)) {
			active = token
			found = true
		}
	}
	return active, found
}

// CounterHistory lists finished tokens of a counter, newest first.
// limit <= 0 returns all of them.
func (s Scheduler) CounterHistory(counterID string, limit int) []models.Token {
	history := []models.Token{}
	for _, token := range s.tokens {
		if token.CounterID == counterID && (token.Status == models.StatusCompleted || token.Status == models.StatusSkipped) {
			history = append(history, token)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return finishedAt(history[i]).After(finishedAt(history[j]))
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history
}

type BoardEntry struct {
	Token       models.Token `json:"token"`
	ServiceCode string       `json:"serviceCode"`
	CounterName string       `json:"counterName,omitempty"`
	Position    int          `json:"position,omitempty"`
}

// Board is the public display feed.
type Board struct {
	Active       []BoardEntry `json:"active"`
	Waiting      []BoardEntry `json:"waiting"`
	OpenCounters int          `json:"openCounters"`
	WaitingCount int          `json:"waitingCount"`
}

func (s Scheduler) Board() Board {
	board := Board{Active: []BoardEntry{}, Waiting: []BoardEntry{}}
	for _, counter := range s.catalog.Counters {
		if counter.Status == models.CounterOpen {
			board.OpenCounters++
		}
	}
	for _, token := range s.tokens {
		entry := BoardEntry{Token: token}
		if service, ok := s.catalog.Service(token.ServiceID); ok {
			entry.ServiceCode = service.Code
		}
		if counter, ok := s.catalog.Counter(token.CounterID); ok {
			entry.CounterName = counter.Name
		}
		switch {
		case inService(token):
			board.Active = append(board.Active, entry)
		case token.Status == models.StatusWaiting:
			entry.Position = s.Position(token)
			board.Waiting = append(board.Waiting, entry)
		}
	}
	sort.SliceStable(board.Active, func(i, j int) bool {
		return calledAt(board.Active[i].Token).After(calledAt(board.Active[j].Token))
	})
	sort.SliceStable(board.Waiting, func(i, j int) bool {
		return board.Waiting[i].Token.CreatedAt.Before(board.Waiting[j].Token.CreatedAt)
	})
	board.WaitingCount = len(board.Waiting)
	return board
}

type Stats struct {
	ServiceID         string  `json:"serviceId,omitempty"`
	AvgWaitSeconds    float64 `json:"avgWaitSeconds"`
	AvgServiceSeconds float64 `json:"avgServiceSeconds"`
	Count             int     `json:"count"`
	Completed         int     `json:"completed"`
	Skipped           int     `json:"skipped"`
	Cancelled         int     `json:"cancelled"`
	QueueLength       int     `json:"queueLength"`
	Serving           int     `json:"serving"`
	EligibleCounters  int     `json:"eligibleCounters"`
}

// Stats aggregates KPIs for one service, or for all when serviceID is
// empty. Average wait covers called tokens; average service time covers
// completed tokens that were served.
func (s Scheduler) Stats(serviceID string) Stats {
	stats := Stats{ServiceID: serviceID}
	var (
		waitTotal, serviceTotal time.Duration
		waited, served          int
	)
	for _, token := range s.tokens {
		if serviceID != "" && token.ServiceID != serviceID {
			continue
		}
		stats.Count++
		switch token.Status {
		case models.StatusWaiting:
			stats.QueueLength++
		case models.StatusCalled, models.StatusServing:
			stats.Serving++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusSkipped:
			stats.Skipped++
		case models.StatusCancelled:
			stats.Cancelled++
		}
		if token.CalledAt != nil {
			waitTotal += token.CalledAt.Sub(token.CreatedAt)
			waited++
		}
		if token.ServedAt != nil && token.CompletedAt != nil {
			serviceTotal += token.CompletedAt.Sub(*token.ServedAt)
			served++
		}
	}
	if waited > 0 {
		stats.AvgWaitSeconds = waitTotal.Seconds() / float64(waited)
	}
	if served > 0 {
		stats.AvgServiceSeconds = serviceTotal.Seconds() / float64(served)
	}
	if serviceID != "" {
		stats.EligibleCounters = s.EligibleCounters(serviceID)
	}
	return stats
}

// TokenFilter selects tokens for the admin listing. Zero fields match
// everything.
type TokenFilter struct {
	Ticket    string
	Name      string
	Phone     string
	ServiceID string
	CounterID string
	Status    models.TokenStatus
	From      time.Time
	To        time.Time
	SortBy    string
	Desc      bool
}

const (
	SortByCreatedAt    = "createdAt"
	SortByTicketNumber = "ticketNumber"
)

func (f TokenFilter) Match(token models.Token) bool {
	if f.Ticket != "" && !containsFold(token.TicketNumber, f.Ticket) {
		return false
	}
	if f.Name != "" && !containsFold(token.CustomerName, f.Name) {
		return false
	}
	if f.Phone != "" && !strings.Contains(token.CustomerPhone, f.Phone) {
		return false
	}
	if f.ServiceID != "" && token.ServiceID != f.ServiceID {
		return false
	}
	if f.CounterID != "" && token.CounterID != f.CounterID {
		return false
	}
	if f.Status != "" && token.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && token.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && token.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Filter returns matching tokens sorted by createdAt (default) or ticket
// number. Equal keys keep insertion order.
func (s Scheduler) Filter(filter TokenFilter) []models.Token {
	out := []models.Token{}
	for _, token := range s.tokens {
		if filter.Match(token) {
			out = append(out, token)
		}
	}
	less := func(a, b models.Token) bool { return a.CreatedAt.Before(b.CreatedAt) }
	if filter.SortBy == SortByTicketNumber {
		less = func(a, b models.Token) bool {
			if a.TicketNumber == b.TicketNumber {
				return false
			}
			ap, bp := ticketPrefix(a.TicketNumber), ticketPrefix(b.TicketNumber)
			if ap != bp {
				return ap < bp
			}
			return a.Sequence() < b.Sequence()
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func inService(token models.Token) bool {
	return token.Status == models.StatusCalled || token.Status == models.StatusServing
}

func calledAt(token models.Token) time.Time {
	if token.CalledAt != nil {
		return *token.CalledAt
	}
	return token.CreatedAt
}

func finishedAt(token models.Token) time.Time {
	switch {
	case token.CompletedAt != nil:
		return *token.CompletedAt
	case token.ServedAt != nil:
		return *token.ServedAt
	}
	return calledAt(token)
}

func ticketPrefix(number string) string {
	if idx := strings.LastIndexByte(number, '-'); idx >= 0 {
		return number[:idx]
	}
	return number
}

func containsFold(value, sub string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(sub))
}
