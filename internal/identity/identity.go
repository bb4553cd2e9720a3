// Package identity carries the authenticated user that the transport layer
// hands to the collaboration core. The core trusts it verbatim.
package identity

import (
	"context"
	"strings"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// Label is the display name shown to other collaborators: full name, then
// email, then the bare id.
func (u User) Label() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		return email
	}
	return u.ID
}

// Merge fills the empty profile fields of u from other. The id is never taken
// from other.
func (u User) Merge(other User) User {
	if u.Email == "" {
		u.Email = other.Email
	}
	if u.FullName == "" {
		u.FullName = other.FullName
	}
	return u
}

type contextKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}
