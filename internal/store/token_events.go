package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"qms/internal/models"
)

const (
	EventTokenIssued    = "token.issued"
	EventTokenCalled    = "token.called"
	EventTokenServing   = "token.serving"
	EventTokenCompleted = "token.completed"
	EventTokenSkipped   = "token.skipped"
	EventTokenCancelled = "token.cancelled"
	EventTokenRestored  = "token.restored"
)

var ErrBrokenChain = errors.New("token event chain broken")

type TokenEvent struct {
	TokenID   string          `json:"tokenId"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	PrevHash  string          `json:"prevHash"`
	Hash      string          `json:"hash"`
}

// EventTypeFor maps a status reached by a transition to its event type.
func EventTypeFor(status models.TokenStatus) string {
	switch status {
	case models.StatusWaiting:
		return EventTokenIssued
	case models.StatusCalled:
		return EventTokenCalled
	case models.StatusServing:
		return EventTokenServing
	case models.StatusCompleted:
		return EventTokenCompleted
	case models.StatusSkipped:
		return EventTokenSkipped
	case models.StatusCancelled:
		return EventTokenCancelled
	}
	return "token.updated"
}

func ComputeTokenEventHash(prevHash, tokenID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, tokenID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// Journal keeps a hash-chained history per token for the lifetime of the
// process.
type Journal struct {
	mu     sync.RWMutex
	events map[string][]TokenEvent
}

func NewJournal() *Journal {
	return &Journal{events: make(map[string][]TokenEvent)}
}

func (j *Journal) Append(eventType string, token models.Token, at time.Time) (TokenEvent, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return TokenEvent{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	chain := j.events[token.ID]
	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}
	event := TokenEvent{
		TokenID:   token.ID,
		Seq:       len(chain) + 1,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: at.UTC(),
		PrevHash:  prev,
	}
	event.Hash = ComputeTokenEventHash(prev, event.TokenID, event.Type, event.Payload, event.CreatedAt, event.Seq)
	j.events[token.ID] = append(chain, event)
	return event, nil
}

func (j *Journal) List(tokenID string) []TokenEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]TokenEvent(nil), j.events[tokenID]...)
}

func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = make(map[string][]TokenEvent)
}

func VerifyChain(events []TokenEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 || event.PrevHash != prev {
			return fmt.Errorf("%w at seq %d", ErrBrokenChain, event.Seq)
		}
		if ComputeTokenEventHash(prev, event.TokenID, event.Type, event.Payload, event.CreatedAt, event.Seq) != event.Hash {
			return fmt.Errorf("%w at seq %d", ErrBrokenChain, event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

// RehydrateToken rebuilds a token from its event history. Later events
// win.
func RehydrateToken(events []TokenEvent) (models.Token, error) {
	var token models.Token
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload models.Token
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Token{}, err
		}
		if payload.ID != "" {
			token.ID = payload.ID
		}
		if payload.TicketNumber != "" {
			token.TicketNumber = payload.TicketNumber
		}
		if payload.ServiceID != "" {
			token.ServiceID = payload.ServiceID
		}
		if payload.CounterID != "" {
			token.CounterID = payload.CounterID
		}
		if payload.Status != "" {
			token.Status = payload.Status
		}
		if payload.CustomerName != "" {
			token.CustomerName = payload.CustomerName
		}
		if payload.CustomerPhone != "" {
			token.CustomerPhone = payload.CustomerPhone
		}
		if !payload.CreatedAt.IsZero() {
			token.CreatedAt = payload.CreatedAt
		}
		if payload.CalledAt != nil {
			token.CalledAt = payload.CalledAt
		}
		if payload.ServedAt != nil {
			token.ServedAt = payload.ServedAt
		}
		if payload.CompletedAt != nil {
			token.CompletedAt = payload.CompletedAt
		}
	}
	return token, nil
}
