// Package datastore persists user credentials. It provides a SQLite-backed
// store, an in-memory store for tests, and Credentials, which implements
// register/authenticate on top of either.
package datastore

import (
	"errors"

	"github.com/NicolasHaas/relaychat/pkg/model"
)

// ErrUserExists is returned by CreateUser when the username is taken.
var ErrUserExists = errors.New("datastore: user already exists")

// UserStore defines the persistence interface for user records.
// Implementations include the default SQLite store and MemoryStore.
type UserStore interface {
	// CreateUser inserts a user. It returns ErrUserExists if the username is
	// already registered.
	CreateUser(username, passwordHash string) (*model.User, error)
	// GetUserByUsername returns nil, nil when the user does not exist.
	GetUserByUsername(username string) (*model.User, error)
	ListUsers() ([]model.User, error)
	Close() error
}

// CredentialStore is what the chat server needs from the credential layer.
type CredentialStore interface {
	// Register returns false, nil if the username already exists.
	Register(username, password string) (bool, error)
	Authenticate(username, password string) (bool, error)
}

// Compile-time checks.
var (
	_ UserStore       = (*SQLStore)(nil)
	_ UserStore       = (*MemoryStore)(nil)
	_ CredentialStore = (*Credentials)(nil)
)
