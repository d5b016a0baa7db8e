package models

import "time"

// Role names a permission level.
type Role string

const (
	// RoleAdmin sees every application and every user's jobs.
	RoleAdmin Role = "admin"
	// RoleUser sees only assigned applications and own jobs.
	RoleUser Role = "user"
)

// User represents a console account.
type User struct {
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Applications []string   `json:"applications"`
	ID           int64      `json:"id"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session represents a user session.
type Session struct {
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	UserID    int64     `json:"user_id"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUserRequest contains the data for creating a user.
type CreateUserRequest struct {
	Username     string   `json:"username" binding:"required"`
	Email        string   `json:"email" binding:"required"`
	Password     string   `json:"password" binding:"required"`
	FullName     string   `json:"full_name" binding:"required"`
	Role         Role     `json:"role"`
	Applications []string `json:"applications"`
}

// UpdateUserRequest contains the data for updating a user. Empty fields are left unchanged;
// a nil Applications slice keeps the current assignments.
type UpdateUserRequest struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	Applications *[]string `json:"applications"`
}

// AuditLog is one recorded change made through the console.
type AuditLog struct {
	ID           int64     `json:"id"`
	UserID       *int64    `json:"user_id"`
	Username     string    `json:"username"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IPAddress    string    `json:"ip_address"`
	Status       int       `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
