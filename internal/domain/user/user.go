package user

import (
	"errors"
	"time"
)

// Role is a closed set. "unset" is a real state (a user that signed in but
// was never assigned anything) and must stay distinguishable from a failed
// role check.
type Role string

const (
	RoleUnset      Role = "unset"
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

var ErrInvalidRole = errors.New("invalid role")
var ErrNotFound = errors.New("user not found")

func (r Role) IsValid() bool {
	switch r {
	case RoleUnset, RoleStudent, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole maps raw input to a Role. Empty input maps to unset so callers
// never compare against an empty-string sentinel.
func ParseRole(raw string) (Role, error) {
	if raw == "" {
		return RoleUnset, nil
	}

	r := Role(raw)

	if !r.IsValid() {
		return RoleUnset, ErrInvalidRole
	}

	return r, nil
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type UpsertRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required,min=2,max=120"`
}
