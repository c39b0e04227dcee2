package client

import (
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// NewProviderClient creates the HTTP client used for provider OAuth and
// API calls (token exchange, refresh, account info). No retry wrapping:
// these calls are driven by the oauth2 package and are not all idempotent.
func NewProviderClient(timeout time.Duration, insecureSkipVerify bool) (*http.Client, error) {
	transport := CreateOptimizedTransport(insecureSkipVerify)

	client, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(transport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider HTTP client: %w", err)
	}

	return client, nil
}

// NewRevokeClient creates an HTTP client with retry support for provider
// token revocation. Revoking an already-revoked token is a no-op at every
// supported provider, so retrying on transient failures is safe.
func NewRevokeClient(
	timeout time.Duration,
	insecureSkipVerify bool,
	maxRetries int,
	retryDelay, maxRetryDelay time.Duration,
) (*retry.Client, error) {
	client, err := NewProviderClient(timeout, insecureSkipVerify)
	if err != nil {
		return nil, err
	}

	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(client),
		retry.WithMaxRetries(maxRetries),
		retry.WithInitialRetryDelay(retryDelay),
		retry.WithMaxRetryDelay(maxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return retryClient, nil
}
