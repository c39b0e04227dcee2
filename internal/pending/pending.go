// Package pending tracks in-flight OAuth handshakes. Records are keyed
// by the opaque state value, consumed at most once, and expire
// automatically if the provider never calls back.
package pending

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/finlink/finlink/internal/util"
)

// DefaultTTL is how long an unconsumed authorization stays usable.
const DefaultTTL = 10 * time.Minute

// stateHexLength is the length of the hex-encoded state token,
// carrying 32 bytes of entropy.
const stateHexLength = 64

// Authorization is one in-flight OAuth handshake.
type Authorization struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store tracks pending authorizations with automatic expiry.
//
// Consume must be atomic: two concurrent calls with the same state must
// never both receive the record.
type Store interface {
	// Begin creates a pending authorization and returns the state token
	// and PKCE code verifier for it.
	Begin(ctx context.Context, userID, provider, redirectURI string) (state, codeVerifier string, err error)

	// Consume atomically retrieves and removes the authorization for a
	// state. Returns (nil, nil) for unknown, expired, or already
	// consumed states.
	Consume(ctx context.Context, state string) (*Authorization, error)

	// Close releases backend resources.
	Close() error
}

// newAuthorization generates the state/verifier pair and record shared
// by both backends.
func newAuthorization(userID, provider, redirectURI string) (string, *Authorization, error) {
	state, err := util.CryptoRandomString(stateHexLength)
	if err != nil {
		return "", nil, fmt.Errorf("pending: generate state: %w", err)
	}

	return state, &Authorization{
		UserID:       userID,
		Provider:     provider,
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURI:  redirectURI,
		CreatedAt:    time.Now(),
	}, nil
}
