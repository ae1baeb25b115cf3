package auth

import (
	"context"
	"errors"
	"strings"
)

// Common errors returned by the authentication subsystem.
var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSubjectRevoked = errors.New("subject is disabled")
)

// Store abstracts the persistent token catalogue used by the authentication
// service. Implementations must be safe for concurrent use.
type Store interface {
	LookupToken(ctx context.Context, token string) (*Subject, error)
}

// Subject captures the caller identity resolved from an access token and
// passed to request handlers via context.
type Subject struct {
	ID       string
	Name     string
	Disabled bool
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)

// Config configures the authentication service.
type Config struct {
	Mode  Mode
	Seeds []Seed
}

// Seed defines a pre-provisioned access token for bootstrapping.
type Seed struct {
	Token    string
	ID       string
	Name     string
	Disabled bool
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
