package models

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleKiosk    Role = "KIOSK"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleKiosk, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	Role      Role   `json:"role" yaml:"role"`
	CounterID string `json:"counterId,omitempty" yaml:"counter_id,omitempty"`
}
