package services

import (
	"errors"
	"strings"

	"smartbee/models"
)

// ErrUnauthorized is returned for a missing or unknown token.
var ErrUnauthorized = errors.New("invalid or missing token")

// Authenticator resolves a bearer token to an observer identity. Token
// issuance belongs to the external auth collaborator; the core only verifies
// presented context at connect time.
type Authenticator interface {
	Authenticate(token string) (models.Identity, error)
}

// StaticTokenAuthenticator resolves tokens from a fixed table loaded at
// startup, the deployment shape used when the auth service pre-provisions
// dashboard tokens.
type StaticTokenAuthenticator struct {
	tokens map[string]models.Identity
}

// NewStaticTokenAuthenticator parses "token:user:role" triples separated by
// commas. Malformed triples are skipped.
func NewStaticTokenAuthenticator(entries string) *StaticTokenAuthenticator {
	tokens := make(map[string]models.Identity)
	for _, entry := range strings.Split(entries, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		tokens[parts[0]] = models.Identity{UserID: parts[1], Role: parts[2]}
	}
	return &StaticTokenAuthenticator{tokens: tokens}
}

// Authenticate looks the token up, returning ErrUnauthorized when unknown.
func (a *StaticTokenAuthenticator) Authenticate(token string) (models.Identity, error) {
	identity, ok := a.tokens[token]
	if !ok {
		return models.Identity{}, ErrUnauthorized
	}
	return identity, nil
}
