package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Coinbase OAuth endpoints
const (
	coinbaseAuthURL    = "https://login.coinbase.com/oauth2/auth"
	coinbaseTokenURL   = "https://login.coinbase.com/oauth2/token"
	coinbaseRevokeURL  = "https://login.coinbase.com/oauth2/revoke"
	coinbaseAPIBaseURL = "https://api.coinbase.com"
)

// NewCoinbaseProvider creates the Coinbase OAuth provider.
func NewCoinbaseProvider(clientID, clientSecret string, scopes []string) *Provider {
	return NewProvider(ProviderConfig{
		Name:         "coinbase",
		DisplayName:  "Coinbase",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      coinbaseAuthURL,
		TokenURL:     coinbaseTokenURL,
		RevokeURL:    coinbaseRevokeURL,
		APIBaseURL:   coinbaseAPIBaseURL,
		Scopes:       scopes,
		Fetcher:      &CoinbaseFetcher{},
	})
}

// CoinbaseFetcher normalizes account info from the Coinbase v2 API.
type CoinbaseFetcher struct{}

// coinbase user response envelope
type coinbaseUser struct {
	Data struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// FetchAccountInfo retrieves the authenticated Coinbase user profile.
func (*CoinbaseFetcher) FetchAccountInfo(
	ctx context.Context,
	config *oauth2.Config,
	token *oauth2.Token,
	apiBaseURL string,
) (*AccountInfo, error) {
	client := config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+"/v2/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("CB-VERSION", "2024-01-01")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("coinbase API error: %s - %s", resp.Status, string(body))
	}

	var user coinbaseUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode account info: %w", err)
	}

	if user.Data.ID == "" {
		return nil, fmt.Errorf("coinbase response has no account id")
	}

	name := user.Data.Name
	if name == "" {
		name = "Coinbase Account"
	}

	return &AccountInfo{
		ExternalAccountID: user.Data.ID,
		Name:              name,
		Type:              "crypto",
	}, nil
}
