package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrRevokeNotSupported indicates the provider defines no revoke endpoint
	ErrRevokeNotSupported = errors.New("provider does not support token revocation")
)

// AccountInfo is the normalized account view every provider fetcher
// produces after a successful token exchange.
type AccountInfo struct {
	ExternalAccountID string // ID assigned by the provider
	Name              string // human-readable account name
	Type              string // free-text category ("crypto", "brokerage", ...)
}

// AccountInfoFetcher retrieves normalized account info from a provider's
// API. One implementation per provider; adding a provider means adding
// an implementation, not editing a branch.
type AccountInfoFetcher interface {
	FetchAccountInfo(ctx context.Context, client *oauth2.Config, token *oauth2.Token, apiBaseURL string) (*AccountInfo, error)
}

// ProviderConfig contains everything needed to construct a Provider.
type ProviderConfig struct {
	Name         string // unique slug, e.g. "coinbase"
	DisplayName  string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string // empty when the provider has no revoke endpoint
	APIBaseURL   string
	Scopes       []string
	Fetcher      AccountInfoFetcher
}

// ProviderInfo is the redacted, external-facing view of a provider.
type ProviderInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Scopes      []string `json:"scopes"`
}

// Provider is one configured OAuth provider. Immutable after startup.
type Provider struct {
	name        string
	displayName string
	config      *oauth2.Config
	revokeURL   string
	apiBaseURL  string
	fetcher     AccountInfoFetcher
}

// NewProvider creates a provider from explicit configuration. Use the
// per-provider constructors for the supported institutions; this form
// exists for tests and future providers.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name:        cfg.Name,
		displayName: cfg.DisplayName,
		revokeURL:   cfg.RevokeURL,
		apiBaseURL:  cfg.APIBaseURL,
		fetcher:     cfg.Fetcher,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

// Name returns the provider slug.
func (p *Provider) Name() string {
	return p.name
}

// DisplayName returns the human-readable provider name.
func (p *Provider) DisplayName() string {
	return p.displayName
}

// RevokeURL returns the provider's revoke endpoint, or "" if none.
func (p *Provider) RevokeURL() string {
	return p.revokeURL
}

// Info returns the redacted provider view for external listings.
func (p *Provider) Info() ProviderInfo {
	scopes := make([]string, len(p.config.Scopes))
	copy(scopes, p.config.Scopes)
	return ProviderInfo{
		Name:        p.name,
		DisplayName: p.displayName,
		Scopes:      scopes,
	}
}

// AuthCodeURL builds the provider's authorization URL with state, PKCE
// S256 challenge, and the exact redirect URI the callback will use.
// No network call is made.
func (p *Provider) AuthCodeURL(state, codeVerifier, redirectURI string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
}

// ExchangeCode exchanges an authorization code for tokens, presenting
// the PKCE verifier. The redirect URI must match the authorization
// request exactly.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code,
		oauth2.VerifierOption(codeVerifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// FetchAccountInfo retrieves normalized account info using the provider's
// fetcher and the freshly issued token.
func (p *Provider) FetchAccountInfo(ctx context.Context, token *oauth2.Token) (*AccountInfo, error) {
	if p.fetcher == nil {
		return nil, fmt.Errorf("provider %s has no account info fetcher", p.name)
	}
	return p.fetcher.FetchAccountInfo(ctx, p.config, token, p.apiBaseURL)
}

// RevokeForm builds the form-encoded revocation request body for the
// provider's revoke endpoint.
func (p *Provider) RevokeForm(accessToken string) string {
	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {p.config.ClientID},
		"client_secret":   {p.config.ClientSecret},
	}
	return form.Encode()
}

// ScopeString returns the space-joined scope list as sent to the provider.
func (p *Provider) ScopeString() string {
	return strings.Join(p.config.Scopes, " ")
}
