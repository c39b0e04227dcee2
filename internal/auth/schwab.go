package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Schwab OAuth endpoints. Schwab publishes no token revocation endpoint;
// disconnection is local-only for this provider.
const (
	schwabAuthURL    = "https://api.schwabapi.com/v1/oauth/authorize"
	schwabTokenURL   = "https://api.schwabapi.com/v1/oauth/token"
	schwabAPIBaseURL = "https://api.schwabapi.com"
)

// NewSchwabProvider creates the Charles Schwab OAuth provider.
func NewSchwabProvider(clientID, clientSecret string, scopes []string) *Provider {
	return NewProvider(ProviderConfig{
		Name:         "schwab",
		DisplayName:  "Charles Schwab",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      schwabAuthURL,
		TokenURL:     schwabTokenURL,
		APIBaseURL:   schwabAPIBaseURL,
		Scopes:       scopes,
		Fetcher:      &SchwabFetcher{},
	})
}

// SchwabFetcher normalizes account info from the Schwab trader API.
type SchwabFetcher struct{}

type schwabAccountNumber struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

// FetchAccountInfo retrieves the first linked Schwab account. The opaque
// hash value is used as the external account id; the plain account
// number only contributes its last digits to the display name.
func (*SchwabFetcher) FetchAccountInfo(
	ctx context.Context,
	config *oauth2.Config,
	token *oauth2.Token,
	apiBaseURL string,
) (*AccountInfo, error) {
	client := config.Client(ctx, token)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, apiBaseURL+"/trader/v1/accounts/accountNumbers", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("schwab API error: %s - %s", resp.Status, string(body))
	}

	var accounts []schwabAccountNumber
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("failed to decode account info: %w", err)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("schwab account has no linked brokerage accounts")
	}

	first := accounts[0]
	if first.HashValue == "" {
		return nil, fmt.Errorf("schwab response has no account id")
	}

	return &AccountInfo{
		ExternalAccountID: first.HashValue,
		Name:              "Schwab " + maskAccountNumber(first.AccountNumber),
		Type:              "brokerage",
	}, nil
}

// maskAccountNumber keeps only the last four digits of an account number.
func maskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "..." + number[len(number)-4:]
}
