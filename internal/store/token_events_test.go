package store

import (
	"errors"
	"testing"
	"time"

	"qms/internal/models"
)

func TestJournalChainAndRehydrate(t *testing.T) {
	j := NewJournal()
	created := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	called := created.Add(time.Minute)
	token := models.Token{ID: "t1", TicketNumber: "D-001", ServiceID: "s1", Status: models.StatusWaiting, CustomerName: "Ann", CreatedAt: created}

	if _, err := j.Append(EventTokenIssued, token, created); err != nil {
		t.Fatalf("append issued: %v", err)
	}
	token.Status = models.StatusCalled
	token.CounterID = "c1"
	token.CalledAt = &called
	if _, err := j.Append(EventTypeFor(token.Status), token, called); err != nil {
		t.Fatalf("append called: %v", err)
	}

	events := j.List("t1")
	if len(events) != 2 || events[1].Type != EventTokenCalled || events[1].PrevHash != events[0].Hash {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := VerifyChain(events); err != nil {
		t.Fatalf("verify: %v", err)
	}

	rebuilt, err := RehydrateToken(events)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if rebuilt.Status != models.StatusCalled || rebuilt.CounterID != "c1" || rebuilt.CustomerName != "Ann" || !rebuilt.CalledAt.Equal(called) {
		t.Fatalf("unexpected rehydrated token: %+v", rebuilt)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	j := NewJournal()
	at := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	token := models.Token{ID: "t1", Status: models.StatusWaiting, CreatedAt: at}
	_, _ = j.Append(EventTokenIssued, token, at)
	token.Status = models.StatusCancelled
	_, _ = j.Append(EventTokenCancelled, token, at.Add(time.Minute))

	events := j.List("t1")
	events[0].Type = EventTokenCalled
	if err := VerifyChain(events); !errors.Is(err, ErrBrokenChain) {
		t.Fatalf("expected broken chain, got %v", err)
	}
}

func TestJournalReset(t *testing.T) {
	j := NewJournal()
	_, _ = j.Append(EventTokenIssued, models.Token{ID: "t1"}, time.Now())
	j.Reset()
	if events := j.List("t1"); len(events) != 0 {
		t.Fatalf("expected empty history after reset, got %d", len(events))
	}
}
