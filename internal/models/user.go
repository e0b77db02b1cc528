package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is an operator role from the 'admin_users' table.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
)

// Operator is a verified caller of the admin endpoints.
type Operator struct {
	UserID string
	Email  string
	Role   Role
}

// Claims defines the structure of the JWT claims. The subject carries the
// operator's user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
