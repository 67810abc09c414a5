// Package auth resolves bearer credentials to user IDs.
package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoCredential is returned when the credential is empty.
	ErrNoCredential = errors.New("auth: no credential")

	// ErrInvalidToken is returned when the credential is not recognized.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Resolver maps a credential (an Authorization header value or a bare token)
// to a user ID.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (userID string, err error)
}

// StripBearer removes a leading case-insensitive "Bearer " prefix and
// surrounding whitespace.
func StripBearer(credential string) string {
	credential = strings.TrimSpace(credential)
	const prefix = "bearer "
	if len(credential) >= len(prefix) && strings.EqualFold(credential[:len(prefix)], prefix) {
		credential = strings.TrimSpace(credential[len(prefix):])
	}
	return credential
}

// Static resolves tokens from a fixed token → user ID table.
type Static map[string]string

func (s Static) Resolve(_ context.Context, credential string) (string, error) {
	token := StripBearer(credential)
	if token == "" {
		return "", ErrNoCredential
	}
	id, ok := s[token]
	if !ok || id == "" {
		return "", ErrInvalidToken
	}
	return id, nil
}
