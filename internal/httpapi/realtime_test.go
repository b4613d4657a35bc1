package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"qms/internal/hub"
	"qms/internal/models"
)

func TestSubscriptionFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/realtime/info?service_id=s1&counter_id=%20c2%20", nil)
	sub := subscriptionFromRequest(req)
	if sub.ServiceID != "s1" || sub.CounterID != "c2" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if sub := subscriptionFromRequest(nil); sub != (hub.Subscription{}) {
		t.Fatalf("nil request should subscribe to everything: %+v", sub)
	}
}

func TestSubscriptionFromMessage(t *testing.T) {
	sub := subscriptionFromMessage(hub.SubscribeMessage{Action: "subscribe", CounterID: "c1"})
	if sub.CounterID != "c1" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	sub = subscriptionFromMessage(hub.SubscribeMessage{Action: "unsubscribe", CounterID: "c1"})
	if sub != (hub.Subscription{}) {
		t.Fatalf("unsubscribe should clear filters: %+v", sub)
	}
}

func TestRelayEventsForwardsUntilClosed(t *testing.T) {
	events := make(chan hub.Event, 2)
	events <- hub.Event{Type: hub.EventTokenIssued, TokenID: "t1", State: models.SystemState{Tokens: []models.Token{{ID: "t1"}}}}
	events <- hub.Event{Type: hub.EventTokenUpdated, TokenID: "t1"}
	close(events)

	var sent []hub.Event
	err := relayEvents(events, func(payload string) error {
		var event hub.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return err
		}
		sent = append(sent, event)
		return nil
	})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(sent) != 2 || sent[0].State.Tokens[0].ID != "t1" || sent[1].Type != hub.EventTokenUpdated {
		t.Fatalf("unexpected relayed events: %+v", sent)
	}
}

func TestRelayEventsStopsOnSendError(t *testing.T) {
	events := make(chan hub.Event, 2)
	events <- hub.Event{Type: hub.EventTokenIssued}
	events <- hub.Event{Type: hub.EventTokenIssued}

	closed := errors.New("session closed")
	calls := 0
	err := relayEvents(events, func(string) error {
		calls++
		return closed
	})
	if !errors.Is(err, closed) || calls != 1 {
		t.Fatalf("expected stop after first failure, got err=%v calls=%d", err, calls)
	}
}
