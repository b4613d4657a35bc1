package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"qms/internal/hub"
	"qms/internal/models"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"
)

// NewRealtimeHandler serves viewers over SockJS at /realtime. Each
// session receives the current state on connect and every committed
// state afterwards, filtered by its subscription.
func NewRealtimeHandler(h *hub.Hub, snapshot func() models.SystemState, logger zerolog.Logger) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		sub := subscriptionFromRequest(session.Request())
		client := h.Subscribe(uuid.NewString(), sub)
		defer h.Unregister(client)
		log := logger.With().Str("client", client.ID).Logger()
		log.Debug().Str("service_id", sub.ServiceID).Str("counter_id", sub.CounterID).Msg("viewer connected")

		initial := hub.Event{Type: hub.EventSnapshot, State: snapshot(), CreatedAt: time.Now().UTC()}
		if err := sendEvent(session.Send, initial); err != nil {
			return
		}
		go func() {
			if err := relayEvents(client.Send, session.Send); err != nil {
				log.Debug().Err(err).Msg("viewer send failed")
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				log.Debug().Msg("viewer disconnected")
				return
			}
			if parsed, ok := hub.ParseSubscribe([]byte(msg)); ok {
				h.UpdateSubscription(client, subscriptionFromMessage(parsed))
			}
		}
	})
}

func subscriptionFromRequest(r *http.Request) hub.Subscription {
	if r == nil {
		return hub.Subscription{}
	}
	query := r.URL.Query()
	return hub.Subscription{
		ServiceID: strings.TrimSpace(query.Get("service_id")),
		CounterID: strings.TrimSpace(query.Get("counter_id")),
	}
}

func subscriptionFromMessage(msg hub.SubscribeMessage) hub.Subscription {
	if msg.Action == "unsubscribe" {
		return hub.Subscription{}
	}
	return hub.Subscription{
		ServiceID: strings.TrimSpace(msg.ServiceID),
		CounterID: strings.TrimSpace(msg.CounterID),
	}
}

// relayEvents forwards events until the channel is closed or a send
// fails.
func relayEvents(events <-chan hub.Event, send func(string) error) error {
	for event := range events {
		if err := sendEvent(send, event); err != nil {
			return err
		}
	}
	return nil
}

func sendEvent(send func(string) error, event hub.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return send(string(payload))
}
