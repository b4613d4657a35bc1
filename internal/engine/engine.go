package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qms/internal/hub"
	"qms/internal/models"
	"qms/internal/store"
	"qms/internal/telemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	States    store.StateStore
	Publisher hub.Publisher
	Journal   *store.Journal
	// Seed replaces the built-in default catalog for first start and
	// reset.
	Seed   *models.Catalog
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine is the only entry point for queue commands. Commands run one at
// a time under mu; queries read the catalog snapshot and the token store
// without taking it. History is the exception.
type Engine struct {
	mu        sync.Mutex
	catalog   atomic.Pointer[models.Catalog]
	tokens    *store.TokenStore
	states    store.StateStore
	publisher hub.Publisher
	journal   *store.Journal
	seed      models.Catalog
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// New loads the persisted state, seeding and committing the default
// catalog when nothing has been stored yet.
func New(ctx context.Context, options Options) (*Engine, error) {
	seed := models.DefaultCatalog()
	if options.Seed != nil {
		seed = options.Seed.Clone()
	}
	seed = store.LinkOperators(seed)
	if err := store.ValidateCatalog(seed); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	e := &Engine{
		states:    options.States,
		publisher: options.Publisher,
		journal:   options.Journal,
		seed:      seed,
		logger:    options.Logger,
		tracer:    otel.Tracer("qms/engine"),
		now:       options.Now,
		newID:     options.NewID,
	}
	if e.states == nil {
		e.states = store.NewMemoryStateStore()
	}
	if e.journal == nil {
		e.journal = store.NewJournal()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	tokens, err := store.NewTokenStore(nil)
	if err != nil {
		return nil, err
	}
	e.tokens = tokens

	state, found, err := e.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !found {
		state = models.NewSystemState(seed, nil)
		if err := e.states.Commit(ctx, state); err != nil {
			return nil, fmt.Errorf("seed state: %w", err)
		}
		e.logger.Info().Int("services", len(state.Services)).Int("counters", len(state.Counters)).Msg("seeded default catalog")
	} else {
		catalog := store.LinkOperators(state.Catalog())
		state = models.NewSystemState(catalog, state.Tokens)
		if err := store.ValidateState(state); err != nil {
			return nil, fmt.Errorf("persisted state: %w", err)
		}
	}
	if err := e.tokens.Replace(state.Tokens); err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	catalog := state.Catalog().Clone()
	e.catalog.Store(&catalog)

	at := e.now()
	for _, token := range state.Tokens {
		if _, err := e.journal.Append(store.EventTokenRestored, token, at); err != nil {
			return nil, err
		}
	}
	telemetry.WaitingTokens.Set(float64(NewScheduler(state).QueueLength("")))
	return e, nil
}

func (e *Engine) currentCatalog() models.Catalog {
	return *e.catalog.Load()
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() models.SystemState {
	return models.NewSystemState(e.currentCatalog(), e.tokens.All())
}

func (e *Engine) Catalog() models.Catalog {
	return e.currentCatalog().Clone()
}

func (e *Engine) Scheduler() Scheduler {
	return NewScheduler(e.Snapshot())
}

// IssueToken creates a WAITING token with the next ticket number of the
// service and returns the stored token.
func (e *Engine) IssueToken(ctx context.Context, serviceID, customerName, customerPhone string) (models.Token, error) {
	ctx, span := e.tracer.Start(ctx, "engine.IssueToken", trace.WithAttributes(attribute.String("service.id", serviceID)))
	defer span.End()

	name := strings.TrimSpace(customerName)
	phone := strings.TrimSpace(customerPhone)
	if name == "" {
		return models.Token{}, e.fail(span, "issue", &store.ValidationError{Field: "customerName", Message: "is required"})
	}
	if phone != "" && !isValidPhone(phone) {
		return models.Token{}, e.fail(span, "issue", &store.ValidationError{Field: "customerPhone", Message: "must be 8-16 digits"})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog()
	service, number, err := nextTicketNumber(catalog, e.tokens, serviceID)
	if err != nil {
		return models.Token{}, e.fail(span, "issue", err)
	}
	token := models.Token{
		ID:            e.newID(),
		TicketNumber:  number,
		ServiceID:     service.ID,
		Status:        models.StatusWaiting,
		CustomerName:  name,
		CustomerPhone: phone,
		CreatedAt:     e.now(),
	}
	if _, err := e.tokens.Get(token.ID); err == nil {
		return models.Token{}, e.fail(span, "issue", &store.ValidationError{Field: "id", Message: fmt.Sprintf("%q already exists", token.ID)})
	}

	state, err := e.commit(ctx, catalog, append(e.tokens.All(), token))
	if err != nil {
		return models.Token{}, e.fail(span, "issue", err)
	}
	if err := e.tokens.Create(token); err != nil {
		return models.Token{}, e.fail(span, "issue", err)
	}
	e.record(token, state)
	telemetry.TokensIssued.WithLabelValues(service.Code).Inc()
	span.SetAttributes(attribute.String("token.ticket_number", token.TicketNumber))
	e.publish(hub.Event{Type: hub.EventTokenIssued, ServiceID: service.ID, TokenID: token.ID, State: state})
	e.logger.Debug().Str("token", token.ID).Str("ticket", token.TicketNumber).Msg("token issued")
	return token, nil
}

// CallNext moves the oldest eligible WAITING token onto the counter.
// A counter that is not OPEN, or has nothing to call, yields false and
// leaves the state unchanged.
func (e *Engine) CallNext(ctx context.Context, counterID string) (models.Token, bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CallNext", trace.WithAttributes(attribute.String("counter.id", counterID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog()
	counter, ok := catalog.Counter(counterID)
	if !ok {
		return models.Token{}, false, e.fail(span, "call_next", fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID))
	}
	if counter.Status != models.CounterOpen {
		return models.Token{}, false, nil
	}

	tokens := e.tokens.All()
	next, found := NewScheduler(models.SystemState{Services: catalog.Services, Counters: catalog.Counters, Tokens: tokens}).NextToCall(counter)
	if !found {
		return models.Token{}, false, nil
	}
	called, err := store.Transition(next, store.TransitionInput{To: models.StatusCalled, Counter: &counter, At: e.now()})
	if err != nil {
		return models.Token{}, false, e.fail(span, "call_next", err)
	}
	if err := e.applyToken(ctx, catalog, tokens, called); err != nil {
		return models.Token{}, false, e.fail(span, "call_next", err)
	}
	return called, true, nil
}

// CallNextForOperator calls the next token onto the counter the user is
// bound to.
func (e *Engine) CallNextForOperator(ctx context.Context, userID string) (models.Token, bool, error) {
	user, ok := e.currentCatalog().User(userID)
	if !ok {
		return models.Token{}, false, fmt.Errorf("%w: %s", store.ErrUserNotFound, userID)
	}
	if user.CounterID == "" {
		return models.Token{}, false, fmt.Errorf("%w: user %s has no counter", store.ErrInvalidAssignment, userID)
	}
	return e.CallNext(ctx, user.CounterID)
}

// Advance applies one lifecycle step. counterID is required when moving
// to CALLED; for other steps a non-empty counterID must match the counter
// the token was called to.
func (e *Engine) Advance(ctx context.Context, tokenID string, to models.TokenStatus, counterID string) (models.Token, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Advance", trace.WithAttributes(
		attribute.String("token.id", tokenID),
		attribute.String("token.status", string(to)),
	))
	defer span.End()

	if !to.Valid() {
		return models.Token{}, e.fail(span, "advance", &store.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a token status", to)})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog()
	token, err := e.tokens.Get(tokenID)
	if err != nil {
		return models.Token{}, e.fail(span, "advance", fmt.Errorf("%w: %s", err, tokenID))
	}

	input := store.TransitionInput{To: to, At: e.now()}
	if to == models.StatusCalled && counterID != "" {
		counter, ok := catalog.Counter(counterID)
		if !ok {
			return models.Token{}, e.fail(span, "advance", fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID))
		}
		input.Counter = &counter
	}
	if to != models.StatusCalled && counterID != "" && token.CounterID != "" && token.CounterID != counterID {
		return models.Token{}, e.fail(span, "advance", fmt.Errorf("%w: token %s belongs to counter %s", store.ErrInvalidAssignment, token.TicketNumber, token.CounterID))
	}

	next, err := store.Transition(token, input)
	if err != nil {
		return models.Token{}, e.fail(span, "advance", err)
	}
	if err := e.applyToken(ctx, catalog, e.tokens.All(), next); err != nil {
		return models.Token{}, e.fail(span, "advance", err)
	}
	return next, nil
}

// Cancel withdraws a WAITING token.
func (e *Engine) Cancel(ctx context.Context, tokenID string) (models.Token, error) {
	return e.Advance(ctx, tokenID, models.StatusCancelled, "")
}

// applyToken commits the state with next replacing its previous version,
// then updates the token store and broadcasts. Called with mu held.
func (e *Engine) applyToken(ctx context.Context, catalog models.Catalog, tokens []models.Token, next models.Token) error {
	for i := range tokens {
		if tokens[i].ID == next.ID {
			tokens[i] = next
		}
	}
	state, err := e.commit(ctx, catalog, tokens)
	if err != nil {
		return err
	}
	if _, err := e.tokens.Update(next.ID, func(models.Token) (models.Token, error) { return next, nil }); err != nil {
		return err
	}
	e.record(next, state)
	telemetry.TokenTransitions.WithLabelValues(string(next.Status)).Inc()
	e.publish(hub.Event{Type: hub.EventTokenUpdated, ServiceID: next.ServiceID, CounterID: next.CounterID, TokenID: next.ID, State: state})
	e.logger.Debug().Str("token", next.ID).Str("ticket", next.TicketNumber).Str("status", string(next.Status)).Msg("token updated")
	return nil
}

// SetCounterStatus toggles a counter. Tokens already called to it keep
// their state.
func (e *Engine) SetCounterStatus(ctx context.Context, counterID string, status models.CounterStatus) (models.Counter, error) {
	ctx, span := e.tracer.Start(ctx, "engine.SetCounterStatus", trace.WithAttributes(
		attribute.String("counter.id", counterID),
		attribute.String("counter.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return models.Counter{}, e.fail(span, "counter_status", &store.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not one of OPEN, CLOSED, PAUSED", status)})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := counterIndex(catalog, counterID)
	if idx < 0 {
		return models.Counter{}, e.fail(span, "counter_status", fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID))
	}
	if catalog.Counters[idx].Status == status {
		return catalog.Counters[idx], nil
	}
	catalog.Counters[idx].Status = status
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCounterStatus, CounterID: counterID}); err != nil {
		return models.Counter{}, e.fail(span, "counter_status", err)
	}
	return catalog.Counters[idx], nil
}

// AssignOperator binds an operator to a counter, releasing any previous
// binding on either side. An empty counterID unbinds the operator.
func (e *Engine) AssignOperator(ctx context.Context, userID, counterID string) (models.User, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AssignOperator", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("counter.id", counterID),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	user, err := bindOperator(&catalog, userID, counterID)
	if err != nil {
		return models.User{}, e.fail(span, "assign_operator", err)
	}
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.User{}, e.fail(span, "assign_operator", err)
	}
	return user, nil
}

// bindOperator points the user and the counter at each other, releasing
// any previous binding on either side. An empty counterID unbinds.
func bindOperator(catalog *models.Catalog, userID, counterID string) (models.User, error) {
	userIdx := -1
	for i, user := range catalog.Users {
		if user.ID == userID {
			userIdx = i
		}
	}
	if userIdx < 0 {
		return models.User{}, fmt.Errorf("%w: %s", store.ErrUserNotFound, userID)
	}
	if counterID != "" && catalog.Users[userIdx].Role != models.RoleOperator {
		return models.User{}, &store.ValidationError{Field: "role", Message: "only operators can be bound to a counter"}
	}
	if counterID != "" && counterIndex(*catalog, counterID) < 0 {
		return models.User{}, fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID)
	}

	for i := range catalog.Counters {
		counter := &catalog.Counters[i]
		if counter.CurrentOperatorID == userID {
			counter.CurrentOperatorID = ""
		}
		if counter.ID == counterID {
			counter.CurrentOperatorID = userID
		}
	}
	for i := range catalog.Users {
		if i != userIdx && counterID != "" && catalog.Users[i].CounterID == counterID {
			catalog.Users[i].CounterID = ""
		}
	}
	catalog.Users[userIdx].CounterID = counterID
	return catalog.Users[userIdx], nil
}

// AddService appends a service. A missing id is generated; the code is
// upper-cased before validation.
func (e *Engine) AddService(ctx context.Context, service models.Service) (models.Service, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AddService")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	if service.ID == "" {
		service.ID = e.newID()
	}
	service.Code = store.NormalizeServiceCode(service.Code)
	service.Name = strings.TrimSpace(service.Name)
	if _, exists := catalog.Service(service.ID); exists {
		return models.Service{}, e.fail(span, "add_service", duplicateID(service.ID))
	}
	if err := store.ValidateService(catalog, service); err != nil {
		return models.Service{}, e.fail(span, "add_service", err)
	}
	catalog.Services = append(catalog.Services, service)
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.Service{}, e.fail(span, "add_service", err)
	}
	return service, nil
}

// AddCounter appends a counter. Status defaults to CLOSED.
func (e *Engine) AddCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AddCounter")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	if counter.ID == "" {
		counter.ID = e.newID()
	}
	if counter.Status == "" {
		counter.Status = models.CounterClosed
	}
	counter.Name = strings.TrimSpace(counter.Name)
	counter.AssignedServiceIDs = append([]string{}, counter.AssignedServiceIDs...)
	operatorID := strings.TrimSpace(counter.CurrentOperatorID)
	counter.CurrentOperatorID = ""
	if _, exists := catalog.Counter(counter.ID); exists {
		return models.Counter{}, e.fail(span, "add_counter", duplicateID(counter.ID))
	}
	if err := store.ValidateCounter(catalog, counter); err != nil {
		return models.Counter{}, e.fail(span, "add_counter", err)
	}
	catalog.Counters = append(catalog.Counters, counter)
	if operatorID != "" {
		if _, err := bindOperator(&catalog, operatorID, counter.ID); err != nil {
			return models.Counter{}, e.fail(span, "add_counter", err)
		}
	}
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.Counter{}, e.fail(span, "add_counter", err)
	}
	added, _ := catalog.Counter(counter.ID)
	return added, nil
}

func (e *Engine) AddUser(ctx context.Context, user models.User) (models.User, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AddUser")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	if user.ID == "" {
		user.ID = e.newID()
	}
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	counterID := strings.TrimSpace(user.CounterID)
	user.CounterID = ""
	if _, exists := catalog.User(user.ID); exists {
		return models.User{}, e.fail(span, "add_user", duplicateID(user.ID))
	}
	if err := store.ValidateUser(catalog, user); err != nil {
		return models.User{}, e.fail(span, "add_user", err)
	}
	catalog.Users = append(catalog.Users, user)
	if counterID != "" {
		bound, err := bindOperator(&catalog, user.ID, counterID)
		if err != nil {
			return models.User{}, e.fail(span, "add_user", err)
		}
		user = bound
	}
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.User{}, e.fail(span, "add_user", err)
	}
	return user, nil
}

// UpdateService replaces the name, code, description and estimate of an
// existing service. Ticket numbering continues under the new code.
func (e *Engine) UpdateService(ctx context.Context, service models.Service) (models.Service, error) {
	ctx, span := e.tracer.Start(ctx, "engine.UpdateService", trace.WithAttributes(attribute.String("service.id", service.ID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := serviceIndex(catalog, service.ID)
	if idx < 0 {
		return models.Service{}, e.fail(span, "update_service", fmt.Errorf("%w: %s", store.ErrServiceNotFound, service.ID))
	}
	service.Code = store.NormalizeServiceCode(service.Code)
	service.Name = strings.TrimSpace(service.Name)
	if err := store.ValidateService(catalog, service); err != nil {
		return models.Service{}, e.fail(span, "update_service", err)
	}
	catalog.Services[idx] = service
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.Service{}, e.fail(span, "update_service", err)
	}
	return service, nil
}

// RemoveService stops offering a service and drops it from every
// counter. It is refused while tokens of the service are still in
// flight or when a counter would be left with nothing to serve.
func (e *Engine) RemoveService(ctx context.Context, serviceID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.RemoveService", trace.WithAttributes(attribute.String("service.id", serviceID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := serviceIndex(catalog, serviceID)
	if idx < 0 {
		return e.fail(span, "remove_service", fmt.Errorf("%w: %s", store.ErrServiceNotFound, serviceID))
	}
	inFlight := e.tokens.CountBy(func(token models.Token) bool {
		return token.ServiceID == serviceID && !token.Status.Terminal()
	})
	if inFlight > 0 {
		return e.fail(span, "remove_service", &store.ValidationError{Field: "id", Message: fmt.Sprintf("service %s has %d tokens in flight", catalog.Services[idx].Code, inFlight)})
	}
	for i := range catalog.Counters {
		counter := &catalog.Counters[i]
		if !counter.Serves(serviceID) {
			continue
		}
		if len(counter.AssignedServiceIDs) == 1 {
			return e.fail(span, "remove_service", &store.ValidationError{Field: "assignedServiceIds", Message: fmt.Sprintf("counter %s serves only this service", counter.Name)})
		}
		counter.AssignedServiceIDs = without(counter.AssignedServiceIDs, serviceID)
	}
	catalog.Services = append(catalog.Services[:idx], catalog.Services[idx+1:]...)
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return e.fail(span, "remove_service", err)
	}
	return nil
}

// UpdateCounter renames a counter and replaces the services it serves.
// Status and operator keep their own commands. Tokens already called to
// the counter keep their state.
func (e *Engine) UpdateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	ctx, span := e.tracer.Start(ctx, "engine.UpdateCounter", trace.WithAttributes(attribute.String("counter.id", counter.ID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := counterIndex(catalog, counter.ID)
	if idx < 0 {
		return models.Counter{}, e.fail(span, "update_counter", fmt.Errorf("%w: %s", store.ErrCounterNotFound, counter.ID))
	}
	next := catalog.Counters[idx]
	next.Name = strings.TrimSpace(counter.Name)
	next.AssignedServiceIDs = append([]string{}, counter.AssignedServiceIDs...)
	if err := store.ValidateCounter(catalog, next); err != nil {
		return models.Counter{}, e.fail(span, "update_counter", err)
	}
	catalog.Counters[idx] = next
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return models.Counter{}, e.fail(span, "update_counter", err)
	}
	return next, nil
}

// RemoveCounter deletes a counter and unbinds its operator. It is
// refused while a token is called to or served at the counter.
func (e *Engine) RemoveCounter(ctx context.Context, counterID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.RemoveCounter", trace.WithAttributes(attribute.String("counter.id", counterID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := counterIndex(catalog, counterID)
	if idx < 0 {
		return e.fail(span, "remove_counter", fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID))
	}
	busy := e.tokens.CountBy(func(token models.Token) bool {
		return token.CounterID == counterID && !token.Status.Terminal()
	})
	if busy > 0 {
		return e.fail(span, "remove_counter", &store.ValidationError{Field: "id", Message: fmt.Sprintf("counter %s still has a token in service", catalog.Counters[idx].Name)})
	}
	for i := range catalog.Users {
		if catalog.Users[i].CounterID == counterID {
			catalog.Users[i].CounterID = ""
		}
	}
	catalog.Counters = append(catalog.Counters[:idx], catalog.Counters[idx+1:]...)
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return e.fail(span, "remove_counter", err)
	}
	return nil
}

// RemoveUser deletes a user and frees the counter it was bound to.
func (e *Engine) RemoveUser(ctx context.Context, userID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.RemoveUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	catalog := e.currentCatalog().Clone()
	idx := -1
	for i, user := range catalog.Users {
		if user.ID == userID {
			idx = i
		}
	}
	if idx < 0 {
		return e.fail(span, "remove_user", fmt.Errorf("%w: %s", store.ErrUserNotFound, userID))
	}
	for i := range catalog.Counters {
		if catalog.Counters[i].CurrentOperatorID == userID {
			catalog.Counters[i].CurrentOperatorID = ""
		}
	}
	catalog.Users = append(catalog.Users[:idx], catalog.Users[idx+1:]...)
	if err := e.applyCatalog(ctx, catalog, hub.Event{Type: hub.EventCatalog}); err != nil {
		return e.fail(span, "remove_user", err)
	}
	return nil
}

// applyCatalog commits a catalog change with the current tokens, swaps
// the catalog snapshot and broadcasts. Called with mu held.
func (e *Engine) applyCatalog(ctx context.Context, catalog models.Catalog, event hub.Event) error {
	state, err := e.commit(ctx, catalog, e.tokens.All())
	if err != nil {
		return err
	}
	next := catalog.Clone()
	e.catalog.Store(&next)
	event.State = state
	e.publish(event)
	e.logger.Debug().Str("type", event.Type).Msg("catalog updated")
	return nil
}

// Reset discards every token and restores the seed catalog. It cannot be
// undone.
func (e *Engine) Reset(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.Reset")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.commit(ctx, e.seed, nil)
	if err != nil {
		return e.fail(span, "reset", err)
	}
	if err := e.tokens.Replace(nil); err != nil {
		return e.fail(span, "reset", err)
	}
	catalog := e.seed.Clone()
	e.catalog.Store(&catalog)
	e.journal.Reset()
	telemetry.WaitingTokens.Set(0)
	e.publish(hub.Event{Type: hub.EventReset, State: state})
	e.logger.Warn().Msg("system state reset")
	return nil
}

// Reload replaces the in-memory state with the stored one after another
// process sharing the state store has committed. Tokens that changed
// are journaled so their history still replays to the live token.
func (e *Engine) Reload(ctx context.Context) (models.SystemState, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Reload")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	state, found, err := e.states.Load(ctx)
	if err != nil {
		return models.SystemState{}, e.fail(span, "reload", fmt.Errorf("load state: %w", err))
	}
	if !found {
		return e.Snapshot(), nil
	}
	state = models.NewSystemState(store.LinkOperators(state.Catalog()), state.Tokens)
	if err := store.ValidateState(state); err != nil {
		return models.SystemState{}, e.fail(span, "reload", fmt.Errorf("stored state: %w", err))
	}

	previous := make(map[string]models.Token, e.tokens.Len())
	for _, token := range e.tokens.All() {
		previous[token.ID] = token
	}
	if err := e.tokens.Replace(state.Tokens); err != nil {
		return models.SystemState{}, e.fail(span, "reload", err)
	}
	catalog := state.Catalog().Clone()
	e.catalog.Store(&catalog)

	kept := 0
	for _, token := range state.Tokens {
		if _, ok := previous[token.ID]; ok {
			kept++
		}
	}
	if kept < len(previous) {
		// Tokens disappeared, so the other process reset the store.
		e.journal.Reset()
		previous = nil
	}
	at := e.now()
	changed := 0
	for _, token := range state.Tokens {
		old, ok := previous[token.ID]
		if ok && old.Status == token.Status && old.CounterID == token.CounterID {
			continue
		}
		eventType := store.EventTypeFor(token.Status)
		if previous == nil {
			eventType = store.EventTokenRestored
		}
		if _, err := e.journal.Append(eventType, token, at); err != nil {
			e.logger.Error().Err(err).Str("token", token.ID).Msg("journal append")
		}
		changed++
	}
	telemetry.WaitingTokens.Set(float64(NewScheduler(state).QueueLength("")))
	e.logger.Debug().Int("tokens", len(state.Tokens)).Int("changed", changed).Msg("state reloaded")
	return state, nil
}

// RemoteSync returns a publisher for events relayed from other
// processes. Each one triggers a Reload, and the reloaded local state
// is what goes to local viewers.
func (e *Engine) RemoteSync(ctx context.Context, local hub.Publisher) hub.Publisher {
	return hub.PublisherFunc(func(remote hub.Event) {
		state, err := e.Reload(ctx)
		if err != nil {
			e.logger.Error().Err(err).Str("origin", remote.Origin).Msg("resync after remote event")
			return
		}
		local.Publish(hub.Event{Type: hub.EventSnapshot, ServiceID: remote.ServiceID, CounterID: remote.CounterID, TokenID: remote.TokenID, State: state, CreatedAt: e.now()})
	})
}

// Broadcast republishes the current state, used when a viewer connects.
func (e *Engine) Broadcast() {
	e.publish(hub.Event{Type: hub.EventSnapshot, State: e.Snapshot()})
}

// commit persists the next state. Nothing is applied when it fails.
func (e *Engine) commit(ctx context.Context, catalog models.Catalog, tokens []models.Token) (models.SystemState, error) {
	state := models.NewSystemState(catalog, tokens)
	if err := e.states.Commit(ctx, state); err != nil {
		e.logger.Error().Err(err).Msg("commit state")
		return models.SystemState{}, fmt.Errorf("commit state: %w", err)
	}
	return state, nil
}

func (e *Engine) record(token models.Token, state models.SystemState) {
	if _, err := e.journal.Append(store.EventTypeFor(token.Status), token, e.now()); err != nil {
		e.logger.Error().Err(err).Str("token", token.ID).Msg("journal append")
	}
	telemetry.WaitingTokens.Set(float64(NewScheduler(state).QueueLength("")))
}

func (e *Engine) publish(event hub.Event) {
	if e.publisher == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now()
	}
	e.publisher.Publish(event)
}

func (e *Engine) fail(span trace.Span, command string, err error) error {
	telemetry.CommandErrors.WithLabelValues(command).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var validation *store.ValidationError
	if !errors.As(err, &validation) && !errors.Is(err, store.ErrNotFound) {
		e.logger.Info().Err(err).Str("command", command).Msg("command rejected")
	}
	return err
}

// Token returns a stored token by id.
func (e *Engine) Token(id string) (models.Token, error) {
	token, err := e.tokens.Get(id)
	if err != nil {
		return models.Token{}, fmt.Errorf("%w: %s", err, id)
	}
	return token, nil
}

// TokenStatus is a token with its derived queue figures.
type TokenStatus struct {
	Token                models.Token `json:"token"`
	Position             int          `json:"position"`
	EstimatedWaitMinutes int          `json:"estimatedWaitMinutes"`
}

func (e *Engine) TokenStatus(id string) (TokenStatus, error) {
	token, err := e.Token(id)
	if err != nil {
		return TokenStatus{}, err
	}
	scheduler := e.Scheduler()
	return TokenStatus{
		Token:                token,
		Position:             scheduler.Position(token),
		EstimatedWaitMinutes: scheduler.EstimatedWaitMinutes(token),
	}, nil
}

func (e *Engine) Position(id string) (int, error) {
	status, err := e.TokenStatus(id)
	return status.Position, err
}

func (e *Engine) EstimatedWaitMinutes(id string) (int, error) {
	status, err := e.TokenStatus(id)
	return status.EstimatedWaitMinutes, err
}

// NextToCall previews the token CallNext would pick for the counter
// without changing anything.
func (e *Engine) NextToCall(counterID string) (models.Token, bool, error) {
	scheduler := e.Scheduler()
	counter, ok := scheduler.catalog.Counter(counterID)
	if !ok {
		return models.Token{}, false, fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID)
	}
	token, found := scheduler.NextToCall(counter)
	return token, found, nil
}

func (e *Engine) ActiveToken(counterID string) (models.Token, bool, error) {
	scheduler := e.Scheduler()
	if _, ok := scheduler.catalog.Counter(counterID); !ok {
		return models.Token{}, false, fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID)
	}
	token, found := scheduler.ActiveToken(counterID)
	return token, found, nil
}

func (e *Engine) CounterHistory(counterID string, limit int) ([]models.Token, error) {
	scheduler := e.Scheduler()
	if _, ok := scheduler.catalog.Counter(counterID); !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCounterNotFound, counterID)
	}
	return scheduler.CounterHistory(counterID, limit), nil
}

func (e *Engine) Board() Board {
	return e.Scheduler().Board()
}

func (e *Engine) Stats(serviceID string) (Stats, error) {
	scheduler := e.Scheduler()
	if serviceID != "" {
		if _, ok := scheduler.catalog.Service(serviceID); !ok {
			return Stats{}, fmt.Errorf("%w: %s", store.ErrServiceNotFound, serviceID)
		}
	}
	return scheduler.Stats(serviceID), nil
}

func (e *Engine) ListTokens(filter TokenFilter) []models.Token {
	return e.Scheduler().Filter(filter)
}

// History returns the journal of a token since this process started.
// The chain is verified and replayed against the live token first. It
// holds mu so the token and its journal are read at the same commit.
func (e *Engine) History(tokenID string) ([]store.TokenEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	token, err := e.Token(tokenID)
	if err != nil {
		return nil, err
	}
	events := e.journal.List(tokenID)
	if err := store.VerifyChain(events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return events, nil
	}
	replayed, err := store.RehydrateToken(events)
	if err != nil {
		return nil, err
	}
	if replayed.Status != token.Status {
		return nil, fmt.Errorf("%w: replayed status %s, live status %s", store.ErrBrokenChain, replayed.Status, token.Status)
	}
	return events, nil
}

func serviceIndex(catalog models.Catalog, id string) int {
	for i, service := range catalog.Services {
		if service.ID == id {
			return i
		}
	}
	return -1
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func counterIndex(catalog models.Catalog, id string) int {
	for i, counter := range catalog.Counters {
		if counter.ID == id {
			return i
		}
	}
	return -1
}

func duplicateID(id string) error {
	return &store.ValidationError{Field: "id", Message: fmt.Sprintf("%q already exists", id)}
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
