package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// actorFromRequest returns the selected user. Selection is not a
// verified identity; it only picks which operator's counter a command
// applies to and keys the per-user rate limit.
func actorFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
		return userID
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func requestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

// ensureRequestID stamps a request id on requests that arrive without
// one so error envelopes and logs can be correlated.
func ensureRequestID(w http.ResponseWriter, r *http.Request) string {
	requestID := requestIDFromRequest(r)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set("X-Request-ID", requestID)
	}
	w.Header().Set("X-Request-ID", requestID)
	return requestID
}
