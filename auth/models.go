package auth

import "time"

type Role string

const (
	RoleSales      Role = "sales"
	RoleEstimator  Role = "estimator"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
)

// ValidRole reports whether role is one of the closed set. Anything else is
// rejected at the edge so an unknown role can never reach a permission check.
func ValidRole(role Role) bool {
	switch role {
	case RoleSales, RoleEstimator, RoleDispatcher, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	CompanyID    string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated caller context resolved from a verified token.
// Every tenant-scoped operation takes one.
type Actor struct {
	UserID    string
	Role      Role
	CompanyID string
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	CompanyID string `json:"companyId"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"fullName"`
	Role      Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
