package models

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

type User struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	Role      Role       `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// UserRef is the short form embedded in attendance and geofence responses.
type UserRef struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role,omitempty"`
}

type UserStats struct {
	Total   int64 `json:"total"`
	Student int64 `json:"student"`
	Admin   int64 `json:"admin"`
}
