package engine

import (
	"fmt"

	"qms/internal/models"
	"qms/internal/store"
)

const ticketNumberPad = 3

// TicketNumber formats the ticket for the token that follows issued
// earlier tokens of the same service. Sequences wider than the pad print
// in full.
func TicketNumber(code string, issued int) string {
	return fmt.Sprintf("%s-%0*d", code, ticketNumberPad, issued+1)
}

// nextTicketNumber must be called with the engine lock held so the count
// and the create that follows form one critical section.
func nextTicketNumber(catalog models.Catalog, tokens *store.TokenStore, serviceID string) (models.Service, string, error) {
	service, ok := catalog.Service(serviceID)
	if !ok {
		return models.Service{}, "", fmt.Errorf("%w: %s", store.ErrServiceNotFound, serviceID)
	}
	issued := tokens.CountBy(func(token models.Token) bool {
		return token.ServiceID == service.ID
	})
	return service, TicketNumber(service.Code, issued), nil
}
