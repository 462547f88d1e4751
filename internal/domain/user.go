package domain

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned by directory lookups that miss.
var ErrUserNotFound = errors.New("user not found")

// User represents a stored user record
type User struct {
	ID             string // UUID, assigned at creation
	Username       string // Unique username
	PasswordDigest string // Keyed scrypt digest (never returned in API)
	Active         bool   // Default false, not transitioned by any operation yet
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ListFilter narrows a directory listing. Zero value matches everything.
type ListFilter struct {
	Username string // exact match when non-empty
	Active   *bool  // match flag when set
}

// UserDirectory defines data access for user records.
// Username uniqueness is enforced by the backing store.
type UserDirectory interface {
	Create(user *User) error
	FindByID(id string) (*User, error)
	FindByUsername(username string) (*User, error)
	UpdatePassword(id, digest string) (*User, error)
	Delete(id string) error
	List(filter ListFilter, limit, skip int) ([]*User, int, error)
}
