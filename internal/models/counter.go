package models

type CounterStatus string

const (
	CounterOpen   CounterStatus = "OPEN"
	CounterClosed CounterStatus = "CLOSED"
	CounterPaused CounterStatus = "PAUSED"
)

func (s CounterStatus) Valid() bool {
	switch s {
	case CounterOpen, CounterClosed, CounterPaused:
		return true
	}
	return false
}

type Counter struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	Status             CounterStatus `json:"status" yaml:"status"`
	AssignedServiceIDs []string      `json:"assignedServiceIds" yaml:"assigned_service_ids"`
	CurrentOperatorID  string        `json:"currentOperatorId,omitempty" yaml:"current_operator_id,omitempty"`
}

// Serves reports whether the counter is assigned to serviceID, regardless
// of its status.
func (c Counter) Serves(serviceID string) bool {
	for _, id := range c.AssignedServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Eligible reports whether the counter can take a token for serviceID
// right now.
func (c Counter) Eligible(serviceID string) bool {
	return c.Status == CounterOpen && c.Serves(serviceID)
}
