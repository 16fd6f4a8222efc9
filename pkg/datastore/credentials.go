package datastore

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Credentials implements CredentialStore with bcrypt-hashed passwords.
type Credentials struct {
	users UserStore
	cost  int
}

// NewCredentials wraps users. A cost of 0 selects bcrypt.DefaultCost.
func NewCredentials(users UserStore, cost int) *Credentials {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Credentials{users: users, cost: cost}
}

// Users returns the underlying store.
func (c *Credentials) Users() UserStore {
	return c.users
}

// Register hashes the password and creates the user. It returns false, nil
// when the username is already taken.
func (c *Credentials) Register(username, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return false, fmt.Errorf("datastore: hash password: %w", err)
	}
	if _, err := c.users.CreateUser(username, string(hash)); err != nil {
		if errors.Is(err, ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authenticate reports whether password matches the stored hash. An unknown
// username is not an error.
func (c *Credentials) Authenticate(username, password string) (bool, error) {
	user, err := c.users.GetUserByUsername(username)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("datastore: compare password: %w", err)
	}
	return true, nil
}
