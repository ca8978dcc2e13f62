package users

import "time"

// Subject identifier for user rows in authorization rules.
const Subject = "user"

// Permission names declared by the user module.
const (
	PermUserManage = "user.manage"
)

// User represents a user account.
type User struct {
	ID           int64
	Username     string
	Nickname     string
	Email        string
	Phone        string
	PasswordHash string
	Actived      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}
