package domain

import "fmt"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleSeller:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User is the authenticated caller. The only implementations are Customer and Seller.
type User interface {
	UserID() string
	Role() Role
	isUser()
}

type Customer struct {
	ID string
}

func (c Customer) UserID() string { return c.ID }
func (Customer) Role() Role       { return RoleCustomer }
func (Customer) isUser()          {}

type Seller struct {
	ID string
}

func (s Seller) UserID() string { return s.ID }
func (Seller) Role() Role       { return RoleSeller }
func (Seller) isUser()          {}

func NewUser(id string, role Role) (User, error) {
	if id == "" {
		return nil, fmt.Errorf("empty user id")
	}
	switch role {
	case RoleCustomer:
		return Customer{ID: id}, nil
	case RoleSeller:
		return Seller{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}
