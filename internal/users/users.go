package users

import (
	"context"
	"errors"
)

// Summary is the public projection of a user that travels with call resources.
type Summary struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty" db:"avatar_url"`
}

var ErrNotFound = errors.New("users: not found")

// Directory resolves user ids. Lookup returns ErrNotFound for unknown ids.
type Directory interface {
	Lookup(ctx context.Context, id string) (Summary, error)
}

// Permissions answers whether two users may call each other.
// A block in either direction denies.
type Permissions interface {
	CanCommunicate(ctx context.Context, a, b string) (bool, error)
}
