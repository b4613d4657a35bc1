package store

import (
	"errors"
	"testing"
	"time"

	"qms/internal/models"
)

func TestValidateCatalogDefault(t *testing.T) {
	if err := ValidateCatalog(models.DefaultCatalog()); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
}

func TestValidateService(t *testing.T) {
	catalog := models.DefaultCatalog()
	cases := []struct {
		name    string
		service models.Service
		field   string
	}{
		{"ok", models.Service{ID: "s9", Code: "LN", Name: "Loans", EstimatedTimeMinutes: 10}, ""},
		{"edit keeps own code", models.Service{ID: "s1", Code: "D", Name: "Deposit", EstimatedTimeMinutes: 5}, ""},
		{"duplicate code", models.Service{ID: "s9", Code: "D", Name: "Dup", EstimatedTimeMinutes: 5}, "code"},
		{"lowercase code", models.Service{ID: "s9", Code: "x", Name: "Lower", EstimatedTimeMinutes: 5}, "code"},
		{"long code", models.Service{ID: "s9", Code: "ABC", Name: "Long", EstimatedTimeMinutes: 5}, "code"},
		{"zero minutes", models.Service{ID: "s9", Code: "Z", Name: "Zero", EstimatedTimeMinutes: 0}, "estimatedTimeMinutes"},
		{"missing name", models.Service{ID: "s9", Code: "Z", EstimatedTimeMinutes: 1}, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateService(catalog, tc.service)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation in chain")
			}
		})
	}
}

func TestValidateCounter(t *testing.T) {
	catalog := models.DefaultCatalog()
	if err := ValidateCounter(catalog, models.Counter{ID: "c9", Name: "New", Status: models.CounterOpen}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected counter without services to fail, got %v", err)
	}
	if err := ValidateCounter(catalog, models.Counter{ID: "c9", Name: "New", Status: models.CounterOpen, AssignedServiceIDs: []string{"nope"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown service to fail, got %v", err)
	}
	if err := ValidateCounter(catalog, models.Counter{ID: "c9", Name: "New", Status: "BUSY", AssignedServiceIDs: []string{"s1"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown status to fail, got %v", err)
	}
	if err := ValidateCounter(catalog, models.Counter{ID: "c9", Name: "New", Status: models.CounterPaused, AssignedServiceIDs: []string{"s1", "s4"}}); err != nil {
		t.Fatalf("expected valid counter, got %v", err)
	}
}

func TestValidateCatalogDuplicateIDs(t *testing.T) {
	catalog := models.DefaultCatalog()
	catalog.Users = append(catalog.Users, catalog.Users[0])
	if err := ValidateCatalog(catalog); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate user id to fail, got %v", err)
	}
}

func TestValidateCatalogBindings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Catalog)
	}{
		{"counter names a missing user", func(c *models.Catalog) { c.Counters[0].CurrentOperatorID = "ghost" }},
		{"one-sided user binding", func(c *models.Catalog) { c.Counters[0].CurrentOperatorID = "" }},
		{"one-sided counter binding", func(c *models.Catalog) { c.Users[1].CounterID = "" }},
		{"admin bound to a counter", func(c *models.Catalog) {
			c.Users[1].CounterID = ""
			c.Users[0].CounterID = "c1"
			c.Counters[0].CurrentOperatorID = "u0"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := models.DefaultCatalog()
			tc.mutate(&catalog)
			if err := ValidateCatalog(catalog); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLinkOperatorsCompletesOneSidedBindings(t *testing.T) {
	catalog := models.DefaultCatalog()
	for i := range catalog.Counters {
		catalog.Counters[i].CurrentOperatorID = ""
	}
	catalog.Users[3].CounterID = ""
	catalog.Counters[2].CurrentOperatorID = "u3"

	linked := LinkOperators(catalog)
	if err := ValidateCatalog(linked); err != nil {
		t.Fatalf("linked catalog invalid: %v", err)
	}
	if linked.Counters[0].CurrentOperatorID != "u1" || linked.Users[3].CounterID != "c3" {
		t.Fatalf("bindings not linked: %+v %+v", linked.Counters[0], linked.Users[3])
	}
	if catalog.Counters[0].CurrentOperatorID != "" {
		t.Fatalf("input catalog was modified")
	}
}

func TestValidateState(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		tokens []models.Token
		ok     bool
	}{
		{"empty", nil, true},
		{"waiting", []models.Token{{ID: "t1", ServiceID: "s1", Status: models.StatusWaiting, CreatedAt: now}}, true},
		{"finished token of removed service", []models.Token{{ID: "t1", ServiceID: "gone", Status: models.StatusCompleted, CreatedAt: now}}, true},
		{"waiting token of unknown service", []models.Token{{ID: "t1", ServiceID: "gone", Status: models.StatusWaiting, CreatedAt: now}}, false},
		{"called token without counter", []models.Token{{ID: "t1", ServiceID: "s1", Status: models.StatusCalled, CreatedAt: now}}, false},
		{"unknown status", []models.Token{{ID: "t1", ServiceID: "s1", Status: "LOST", CreatedAt: now}}, false},
		{"duplicate id", []models.Token{
			{ID: "t1", ServiceID: "s1", Status: models.StatusWaiting, CreatedAt: now},
			{ID: "t1", ServiceID: "s2", Status: models.StatusWaiting, CreatedAt: now},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateState(models.NewSystemState(models.DefaultCatalog(), tc.tokens))
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
