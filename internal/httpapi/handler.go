package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/internal/engine"
	"qms/internal/models"
	"qms/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// QueueEngine is the command and query surface the HTTP API drives.
type QueueEngine interface {
	Snapshot() models.SystemState
	IssueToken(ctx context.Context, serviceID, customerName, customerPhone string) (models.Token, error)
	CallNext(ctx context.Context, counterID string) (models.Token, bool, error)
	CallNextForOperator(ctx context.Context, userID string) (models.Token, bool, error)
	Advance(ctx context.Context, tokenID string, to models.TokenStatus, counterID string) (models.Token, error)
	SetCounterStatus(ctx context.Context, counterID string, status models.CounterStatus) (models.Counter, error)
	AssignOperator(ctx context.Context, userID, counterID string) (models.User, error)
	AddService(ctx context.Context, service models.Service) (models.Service, error)
	AddCounter(ctx context.Context, counter models.Counter) (models.Counter, error)
	AddUser(ctx context.Context, user models.User) (models.User, error)
	UpdateService(ctx context.Context, service models.Service) (models.Service, error)
	RemoveService(ctx context.Context, serviceID string) error
	UpdateCounter(ctx context.Context, counter models.Counter) (models.Counter, error)
	RemoveCounter(ctx context.Context, counterID string) error
	RemoveUser(ctx context.Context, userID string) error
	Reset(ctx context.Context) error
	TokenStatus(id string) (engine.TokenStatus, error)
	NextToCall(counterID string) (models.Token, bool, error)
	ActiveToken(counterID string) (models.Token, bool, error)
	CounterHistory(counterID string, limit int) ([]models.Token, error)
	Board() engine.Board
	Stats(serviceID string) (engine.Stats, error)
	ListTokens(filter engine.TokenFilter) []models.Token
	History(tokenID string) ([]store.TokenEvent, error)
}

type Handler struct {
	engine   QueueEngine
	realtime http.Handler
	logger   zerolog.Logger
}

type Options struct {
	// Realtime is mounted under /realtime/ when set.
	Realtime http.Handler
	Logger   zerolog.Logger
}

type issueTokenRequest struct {
	ServiceID     string `json:"serviceId"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
}

type tokenActionRequest struct {
	CounterID string `json:"counterId"`
}

type counterStatusRequest struct {
	Status string `json:"status"`
}

type assignOperatorRequest struct {
	UserID    string `json:"userId"`
	CounterID string `json:"counterId"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

type callNextResponse struct {
	Called bool          `json:"called"`
	Token  *models.Token `json:"token,omitempty"`
}

type errorResponse struct {
	RequestID string        `json:"requestId"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(queue QueueEngine, options Options) *Handler {
	return &Handler{
		engine:   queue,
		realtime: options.Realtime,
		logger:   options.Logger,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterRoutes)
	mux.HandleFunc("/api/users", h.handleUsers)
	mux.HandleFunc("/api/board", h.handleBoard)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/", h.handleTokenRoutes)
	mux.HandleFunc("/api/operator/call-next", h.handleOperatorCallNext)
	mux.HandleFunc("/api/admin/services", h.handleAdminServices)
	mux.HandleFunc("/api/admin/services/", h.handleAdminServiceRoutes)
	mux.HandleFunc("/api/admin/counters", h.handleAdminCounters)
	mux.HandleFunc("/api/admin/counters/", h.handleAdminCounterRoutes)
	mux.HandleFunc("/api/admin/users", h.handleAdminUsers)
	mux.HandleFunc("/api/admin/users/", h.handleAdminUserRoutes)
	mux.HandleFunc("/api/admin/operators/assign", h.handleAssignOperator)
	mux.HandleFunc("/api/admin/reset", h.handleReset)
	if h.realtime != nil {
		mux.Handle("/realtime/", h.realtime)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot().Services)
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot().Counters)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot().Users)
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Board())
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.engine.Stats(strings.TrimSpace(r.URL.Query().Get("service_id")))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListTokens(w, r)
	case http.MethodPost:
		h.handleIssueToken(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "serviceId is required")
		return
	}

	token, err := h.engine.IssueToken(r.Context(), req.ServiceID, req.CustomerName, req.CustomerPhone)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	status, err := h.engine.TokenStatus(token.ID)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := engine.TokenFilter{
		Ticket:    strings.TrimSpace(query.Get("ticket")),
		Name:      strings.TrimSpace(query.Get("name")),
		Phone:     strings.TrimSpace(query.Get("phone")),
		ServiceID: strings.TrimSpace(query.Get("service_id")),
		CounterID: strings.TrimSpace(query.Get("counter_id")),
		Status:    models.TokenStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
		SortBy:    strings.TrimSpace(query.Get("sort")),
		Desc:      strings.EqualFold(query.Get("order"), "desc"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "status is not a token status")
		return
	}
	if filter.SortBy != "" && filter.SortBy != engine.SortByCreatedAt && filter.SortBy != engine.SortByTicketNumber {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "sort must be createdAt or ticketNumber")
		return
	}
	var ok bool
	if filter.From, ok = parseTimeParam(query.Get("from"), false); !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "from must be RFC3339 or YYYY-MM-DD")
		return
	}
	if filter.To, ok = parseTimeParam(query.Get("to"), true); !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "to must be RFC3339 or YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.ListTokens(filter))
}

// parseTimeParam accepts RFC 3339 or a bare date. A bare date used as
// an upper bound covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	if value, err := time.Parse(time.RFC3339, raw); err == nil {
		return value.UTC(), true
	}
	value, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		value = value.Add(24*time.Hour - time.Nanosecond)
	}
	return value, true
}

func (h *Handler) handleTokenRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	tokenID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status, err := h.engine.TokenStatus(tokenID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		events, err := h.engine.History(tokenID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTokenAction(w, r, tokenID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var tokenActions = map[string]models.TokenStatus{
	"call":     models.StatusCalled,
	"start":    models.StatusServing,
	"complete": models.StatusCompleted,
	"skip":     models.StatusSkipped,
	"cancel":   models.StatusCancelled,
}

func (h *Handler) handleTokenAction(w http.ResponseWriter, r *http.Request, tokenID, action string) {
	to, ok := tokenActions[action]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var req tokenActionRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}
	req.CounterID = strings.TrimSpace(req.CounterID)
	if to == models.StatusCalled && req.CounterID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "counterId is required")
		return
	}

	token, err := h.engine.Advance(r.Context(), tokenID, to, req.CounterID)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleCounterRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/counters/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	counterID := parts[0]
	route := strings.Join(parts[1:], "/")

	switch route {
	case "next":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token, found, err := h.engine.NextToCall(counterID)
		h.writeOptionalToken(w, r, token, found, err)
	case "active":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token, found, err := h.engine.ActiveToken(counterID)
		h.writeOptionalToken(w, r, token, found, err)
	case "history":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value < 0 {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
				return
			}
			limit = value
		}
		history, err := h.engine.CounterHistory(counterID, limit)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	case "actions/call-next":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token, called, err := h.engine.CallNext(r.Context(), counterID)
		h.writeCallNext(w, r, token, called, err)
	case "status":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req counterStatusRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		status := models.CounterStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		counter, err := h.engine.SetCounterStatus(r.Context(), counterID, status)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counter)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOperatorCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := actorFromRequest(r)
	if userID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "X-User-ID header is required")
		return
	}
	token, called, err := h.engine.CallNextForOperator(r.Context(), userID)
	h.writeCallNext(w, r, token, called, err)
}

func (h *Handler) handleAdminServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.Service
	if !decodeRequest(w, r, &req) {
		return
	}
	service, err := h.engine.AddService(r.Context(), req)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, service)
}

func (h *Handler) handleAdminCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.Counter
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Status = models.CounterStatus(strings.ToUpper(string(req.Status)))
	counter, err := h.engine.AddCounter(r.Context(), req)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, counter)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.User
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Role = models.Role(strings.ToUpper(string(req.Role)))
	user, err := h.engine.AddUser(r.Context(), req)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleAdminServiceRoutes(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := adminEntityID(w, r, "/api/admin/services/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req models.Service
		if !decodeRequest(w, r, &req) {
			return
		}
		if !matchesPathID(w, r, req.ID, serviceID) {
			return
		}
		req.ID = serviceID
		service, err := h.engine.UpdateService(r.Context(), req)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, service)
	case http.MethodDelete:
		if err := h.engine.RemoveService(r.Context(), serviceID); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdminCounterRoutes(w http.ResponseWriter, r *http.Request) {
	counterID, ok := adminEntityID(w, r, "/api/admin/counters/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req models.Counter
		if !decodeRequest(w, r, &req) {
			return
		}
		if !matchesPathID(w, r, req.ID, counterID) {
			return
		}
		req.ID = counterID
		counter, err := h.engine.UpdateCounter(r.Context(), req)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counter)
	case http.MethodDelete:
		if err := h.engine.RemoveCounter(r.Context(), counterID); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdminUserRoutes(w http.ResponseWriter, r *http.Request) {
	userID, ok := adminEntityID(w, r, "/api/admin/users/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.engine.RemoveUser(r.Context(), userID); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func adminEntityID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return "", false
	}
	return id, true
}

func matchesPathID(w http.ResponseWriter, r *http.Request, bodyID, pathID string) bool {
	if bodyID != "" && bodyID != pathID {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "id in body does not match path")
		return false
	}
	return true
}

func (h *Handler) handleAssignOperator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assignOperatorRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}
	user, err := h.engine.AssignOperator(r.Context(), req.UserID, strings.TrimSpace(req.CounterID))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req resetRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "reset requires confirm: true")
		return
	}
	if err := h.engine.Reset(r.Context()); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.logger.Warn().Str("actor", actorFromRequest(r)).Msg("state reset over http")
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) writeCallNext(w http.ResponseWriter, r *http.Request, token models.Token, called bool, err error) {
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	resp := callNextResponse{Called: called}
	if called {
		resp.Token = &token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeOptionalToken(w http.ResponseWriter, r *http.Request, token models.Token, found bool, err error) {
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// decodeOptionalRequest accepts an empty body.
func decodeOptionalRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if r.Body == nil {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var validation *store.ValidationError
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, store.ErrInvalidAssignment):
		return http.StatusConflict, "invalid_assignment", err.Error()
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_failed", validation.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		_, _ = w.Write([]byte("null\n"))
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
