package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/internal/telemetry"

	"github.com/rs/zerolog"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer,
// which the SockJS streaming transports need for flushing.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack hands the connection to the SockJS websocket transport.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func LoggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := ensureRequestID(w, r)
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)

		route := routeLabel(r.URL.Path)
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(writer.status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		event := logger.Info()
		if writer.status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", duration).
			Str("user", actorFromRequest(r)).
			Str("request_id", requestID).
			Msg("request")
	})
}

// routeLabel collapses ids out of the path and folds unknown paths into
// one label, so metric cardinality stays bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case parts[0] == "realtime":
		return "/realtime"
	case len(parts) == 1 && (parts[0] == "healthz" || parts[0] == "metrics"):
		return "/" + parts[0]
	case len(parts) < 2 || parts[0] != "api":
		return unmatchedRoute
	}
	if len(parts) == 2 && staticAPIRoutes[parts[1]] {
		return "/api/" + parts[1]
	}
	switch parts[1] {
	case "operator":
		if len(parts) == 3 && parts[2] == "call-next" {
			return "/api/operator/call-next"
		}
	case "tokens":
		switch {
		case len(parts) == 3:
			return "/api/tokens/{id}"
		case len(parts) == 4 && parts[3] == "events":
			return "/api/tokens/{id}/events"
		case len(parts) == 5 && parts[3] == "actions" && tokenActions[parts[4]] != "":
			return "/api/tokens/{id}/actions/" + parts[4]
		}
	case "counters":
		switch {
		case len(parts) == 4 && counterSubroutes[parts[3]]:
			return "/api/counters/{id}/" + parts[3]
		case len(parts) == 5 && parts[3] == "actions" && parts[4] == "call-next":
			return "/api/counters/{id}/actions/call-next"
		}
	case "admin":
		switch {
		case len(parts) == 3 && adminRoutes[parts[2]]:
			return "/api/admin/" + parts[2]
		case len(parts) == 4 && parts[2] == "operators" && parts[3] == "assign":
			return "/api/admin/operators/assign"
		case len(parts) == 4 && adminEntityRoutes[parts[2]]:
			return "/api/admin/" + parts[2] + "/{id}"
		}
	}
	return unmatchedRoute
}

const unmatchedRoute = "unmatched"

var (
	staticAPIRoutes   = map[string]bool{"state": true, "services": true, "counters": true, "users": true, "board": true, "stats": true, "tokens": true}
	counterSubroutes  = map[string]bool{"next": true, "active": true, "history": true, "status": true}
	adminRoutes       = map[string]bool{"services": true, "counters": true, "users": true, "reset": true}
	adminEntityRoutes = map[string]bool{"services": true, "counters": true, "users": true}
)
