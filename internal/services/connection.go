package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/crypto"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/pending"
	"github.com/finlink/finlink/internal/store"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrAccountNotFound = errors.New("connected account not found")
	ErrAccountInactive = errors.New("connected account is disconnected")
	ErrNoRefreshToken  = errors.New("account has no refresh token")
)

// Callback error codes surfaced to the frontend redirect.
const (
	CallbackErrorInvalidState     = "invalid_state"
	CallbackErrorRedirectMismatch = "redirect_mismatch"
	CallbackErrorAccessDenied     = "access_denied"
	CallbackErrorExchange         = "exchange_failed"
	CallbackErrorAccountInfo      = "account_info_failed"
	CallbackErrorStorage          = "storage_failed"
)

// CallbackResult is the outcome of one OAuth callback. The handler
// translates it into a frontend redirect; it never carries token
// material.
type CallbackResult struct {
	Success   bool
	AccountID string
	Provider  string
	ErrorCode string
}

// ConnectionService drives the OAuth connection lifecycle: authorization
// URL generation, callback handling, token refresh, and revocation.
// All collaborators are injected; the service holds no global state.
type ConnectionService struct {
	store        *store.Store
	cipher       *crypto.TokenCipher
	registry     *auth.Registry
	pending      pending.Store
	httpClient   *http.Client
	revokeClient *retry.Client
	metrics      metrics.Recorder
	config       *config.Config
}

// NewConnectionService creates a connection service with its collaborators.
func NewConnectionService(
	s *store.Store,
	cipher *crypto.TokenCipher,
	registry *auth.Registry,
	pendingStore pending.Store,
	httpClient *http.Client,
	revokeClient *retry.Client,
	recorder metrics.Recorder,
	cfg *config.Config,
) *ConnectionService {
	return &ConnectionService{
		store:        s,
		cipher:       cipher,
		registry:     registry,
		pending:      pendingStore,
		httpClient:   httpClient,
		revokeClient: revokeClient,
		metrics:      recorder,
		config:       cfg,
	}
}

// oauthContext returns a context that makes the oauth2 package use the
// configured provider HTTP client instead of http.DefaultClient.
func (s *ConnectionService) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// GenerateAuthURL starts a connection attempt: it records a pending
// authorization and returns the provider authorization URL the browser
// should be sent to, plus the opaque state identifying the attempt.
func (s *ConnectionService) GenerateAuthURL(
	ctx context.Context,
	userID, providerName string,
) (authURL, state string, err error) {
	provider, ok := s.registry.Get(providerName)
	if !ok {
		return "", "", ErrUnknownProvider
	}

	redirectURI := s.config.CallbackRedirectURI(providerName)

	state, codeVerifier, err := s.pending.Begin(ctx, userID, providerName, redirectURI)
	if err != nil {
		s.metrics.RecordConnectAttempt(providerName, false)
		return "", "", fmt.Errorf("failed to create pending authorization: %w", err)
	}

	s.metrics.RecordConnectAttempt(providerName, true)
	return provider.AuthCodeURL(state, codeVerifier, redirectURI), state, nil
}

// HandleCallback completes (or rejects) an OAuth callback. providerError
// is the provider's error query parameter, set when the user denied
// access. The returned result is always non-nil.
func (s *ConnectionService) HandleCallback(
	ctx context.Context,
	providerName, code, state, providerError string,
) *CallbackResult {
	result := &CallbackResult{Provider: providerName}

	// Consume the state first in every path so a denied or malformed
	// callback still burns the pending authorization.
	pa, err := s.pending.Consume(ctx, state)
	if err != nil {
		log.Printf("[Connection] pending store failure for %s callback: %v", providerName, err)
	}

	if providerError != "" {
		result.ErrorCode = CallbackErrorAccessDenied
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	// Unknown, expired, or replayed state.
	if pa == nil || code == "" {
		result.ErrorCode = CallbackErrorInvalidState
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	// State issued for a different provider or redirect URI than the
	// callback route it arrived on.
	if pa.Provider != providerName ||
		pa.RedirectURI != s.config.CallbackRedirectURI(providerName) {
		log.Printf(
			"[Connection] redirect mismatch on %s callback: state was issued for %s (%s)",
			providerName,
			pa.Provider,
			pa.RedirectURI,
		)
		result.ErrorCode = CallbackErrorRedirectMismatch
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	provider, ok := s.registry.Get(providerName)
	if !ok {
		result.ErrorCode = CallbackErrorInvalidState
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	oauthCtx := s.oauthContext(ctx)

	start := time.Now()
	token, err := provider.ExchangeCode(oauthCtx, code, pa.CodeVerifier, pa.RedirectURI)
	s.metrics.RecordProviderAPICall(providerName, "exchange", time.Since(start))
	if err != nil {
		log.Printf(
			"[Connection] code exchange failed for %s: %s",
			providerName,
			retrieveErrorDetail(err),
		)
		result.ErrorCode = CallbackErrorExchange
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	start = time.Now()
	info, err := provider.FetchAccountInfo(oauthCtx, token)
	s.metrics.RecordProviderAPICall(providerName, "account_info", time.Since(start))
	if err != nil {
		log.Printf("[Connection] account info fetch failed for %s: %v", providerName, err)
		result.ErrorCode = CallbackErrorAccountInfo
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	account, err := s.upsertAccount(pa.UserID, providerName, info, token)
	if err != nil {
		log.Printf("[Connection] failed to store %s account: %v", providerName, err)
		result.ErrorCode = CallbackErrorStorage
		s.metrics.RecordCallback(providerName, false)
		return result
	}

	result.Success = true
	result.AccountID = account.ID
	s.metrics.RecordCallback(providerName, true)
	return result
}

// upsertAccount stores a freshly linked account. Re-linking the same
// external account updates tokens and reactivates it instead of
// creating a duplicate.
func (s *ConnectionService) upsertAccount(
	userID, providerName string,
	info *auth.AccountInfo,
	token *oauth2.Token,
) (*models.ConnectedAccount, error) {
	accessBlob, refreshBlob, err := s.cipher.EncryptTokenPair(
		token.AccessToken,
		token.RefreshToken,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	existing, err := s.store.GetConnectedAccountByExternalID(
		userID,
		providerName,
		info.ExternalAccountID,
	)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	if existing != nil {
		existing.AccessToken = accessBlob
		existing.RefreshToken = refreshBlob
		existing.AccessTokenExpiry = accessExpiry(token)
		existing.RefreshTokenExpiry = refreshExpiry(token)
		existing.AccountType = info.Type
		existing.IsActive = true
		existing.SyncStatus = models.SyncStatusPending
		existing.SyncError = ""
		if existing.AccountName == "" {
			existing.AccountName = info.Name
		}
		if err := s.store.UpdateConnectedAccount(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	account := &models.ConnectedAccount{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           providerName,
		ExternalAccountID:  info.ExternalAccountID,
		AccountName:        info.Name,
		AccountType:        info.Type,
		AccessToken:        accessBlob,
		RefreshToken:       refreshBlob,
		AccessTokenExpiry:  accessExpiry(token),
		RefreshTokenExpiry: refreshExpiry(token),
		IsActive:           true,
		SyncStatus:         models.SyncStatusPending,
	}
	if err := s.store.CreateConnectedAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// RefreshAccount refreshes the access token for one of the user's
// accounts. The account must be active and hold a refresh token.
func (s *ConnectionService) RefreshAccount(
	ctx context.Context,
	userID, accountID string,
) (*models.ConnectedAccount, error) {
	account, err := s.getOwnedAccount(accountID, userID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.refreshAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// refreshAccount refreshes tokens in place and persists the result.
// Failures are recorded on the account's sync status so the dashboard
// can surface them.
func (s *ConnectionService) refreshAccount(
	ctx context.Context,
	account *models.ConnectedAccount,
) error {
	if !account.HasRefreshToken() {
		return ErrNoRefreshToken
	}

	provider, ok := s.registry.Get(account.Provider)
	if !ok {
		return ErrUnknownProvider
	}

	_, refreshPlain, err := s.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	if err != nil {
		// Token material is unreadable (key rotation without migration).
		// The user must reconnect; flag the account instead of retrying
		// forever.
		_ = s.store.UpdateSyncStatus(account.ID, models.SyncStatusError, "token_decrypt_failed")
		s.metrics.RecordTokenRefresh(account.Provider, false)
		return fmt.Errorf("failed to decrypt stored tokens: %w", err)
	}

	start := time.Now()
	token, err := provider.RefreshToken(s.oauthContext(ctx), refreshPlain)
	s.metrics.RecordProviderAPICall(account.Provider, "refresh", time.Since(start))
	if err != nil {
		detail := retrieveErrorDetail(err)
		_ = s.store.UpdateSyncStatus(
			account.ID,
			models.SyncStatusError,
			"token_refresh_failed: "+detail,
		)
		s.metrics.RecordTokenRefresh(account.Provider, false)
		return fmt.Errorf("token refresh failed: %s", detail)
	}

	accessBlob, refreshBlob, err := s.cipher.EncryptTokenPair(
		token.AccessToken,
		token.RefreshToken,
	)
	if err != nil {
		s.metrics.RecordTokenRefresh(account.Provider, false)
		return fmt.Errorf("failed to encrypt refreshed tokens: %w", err)
	}

	account.AccessToken = accessBlob
	account.AccessTokenExpiry = accessExpiry(token)
	// Providers that do not rotate refresh tokens return an empty one;
	// keep the stored blob in that case.
	if token.RefreshToken != "" {
		account.RefreshToken = refreshBlob
		account.RefreshTokenExpiry = refreshExpiry(token)
	}
	account.SyncStatus = models.SyncStatusSuccess
	account.SyncError = ""

	if err := s.store.UpdateConnectedAccount(account); err != nil {
		s.metrics.RecordTokenRefresh(account.Provider, false)
		return err
	}

	s.metrics.RecordTokenRefresh(account.Provider, true)
	return nil
}

// RefreshExpiringTokens refreshes every active account whose access
// token expires within the configured buffer. One failing account never
// stops the sweep. Returns (refreshed, failed).
func (s *ConnectionService) RefreshExpiringTokens(ctx context.Context) (int, int) {
	accounts, err := s.store.ListAccountsNeedingRefresh(s.config.RefreshExpiryBuffer)
	if err != nil {
		log.Printf("[Connection] refresh sweep query failed: %v", err)
		s.metrics.RecordDatabaseQueryError("list_refresh_candidates")
		return 0, 0
	}

	var refreshed, failed int
	for i := range accounts {
		account := &accounts[i]
		if err := s.refreshAccount(ctx, account); err != nil {
			failed++
			log.Printf(
				"[Connection] sweep refresh failed for account %s (%s): %v",
				account.ID,
				account.Provider,
				err,
			)
			continue
		}
		refreshed++
	}

	if refreshed > 0 || failed > 0 {
		log.Printf("[Connection] refresh sweep done: %d refreshed, %d failed", refreshed, failed)
	}
	s.metrics.RecordRefreshSweep(refreshed, failed)
	return refreshed, failed
}

// RevokeAccess disconnects an account. The local deactivation always
// happens; provider-side revocation is best effort and its outcome is
// reported in remoteOK, independent of the local result.
func (s *ConnectionService) RevokeAccess(
	ctx context.Context,
	userID, accountID string,
) (remoteOK bool, err error) {
	account, err := s.getOwnedAccount(accountID, userID)
	if err != nil {
		return false, err
	}

	remoteOK = s.revokeRemote(ctx, account)
	s.metrics.RecordRevocation(account.Provider, remoteOK)

	if err := s.store.DeactivateByIDAndUserID(accountID, userID); err != nil {
		return remoteOK, err
	}
	return remoteOK, nil
}

// revokeRemote performs the provider-side token revocation. Returns true
// when the provider confirmed the revocation or does not support one.
func (s *ConnectionService) revokeRemote(
	ctx context.Context,
	account *models.ConnectedAccount,
) bool {
	provider, ok := s.registry.Get(account.Provider)
	if !ok || provider.RevokeURL() == "" || s.revokeClient == nil {
		return true
	}

	accessPlain, _, err := s.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	if err != nil {
		log.Printf(
			"[Connection] cannot decrypt tokens for remote revoke of account %s: %v",
			account.ID,
			err,
		)
		return false
	}

	start := time.Now()
	resp, err := s.revokeClient.Post(
		ctx,
		provider.RevokeURL(),
		retry.WithBody(
			"application/x-www-form-urlencoded",
			strings.NewReader(provider.RevokeForm(accessPlain)),
		),
	)
	s.metrics.RecordProviderAPICall(account.Provider, "revoke", time.Since(start))
	if err != nil {
		log.Printf(
			"[Connection] remote revoke failed for account %s (%s): %v",
			account.ID,
			account.Provider,
			err,
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf(
			"[Connection] remote revoke for account %s (%s) returned HTTP %d",
			account.ID,
			account.Provider,
			resp.StatusCode,
		)
		return false
	}
	return true
}

// ListAccounts returns the user's active connected accounts.
func (s *ConnectionService) ListAccounts(userID string) ([]models.ConnectedAccount, error) {
	return s.store.ListActiveAccountsByUserID(userID)
}

// GetAccount returns one of the user's accounts, active or not.
func (s *ConnectionService) GetAccount(userID, accountID string) (*models.ConnectedAccount, error) {
	return s.getOwnedAccount(accountID, userID)
}

// RenameAccount updates the user-facing display name.
func (s *ConnectionService) RenameAccount(userID, accountID, name string) error {
	if err := s.store.UpdateAccountName(accountID, userID, name); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// RequestSync marks an active account as syncing so a downstream worker
// picks it up.
func (s *ConnectionService) RequestSync(userID, accountID string) error {
	account, err := s.getOwnedAccount(accountID, userID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return ErrAccountInactive
	}
	return s.store.UpdateSyncStatus(accountID, models.SyncStatusSyncing, "")
}

func (s *ConnectionService) getOwnedAccount(
	accountID, userID string,
) (*models.ConnectedAccount, error) {
	account, err := s.store.GetConnectedAccountByIDAndUserID(accountID, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// accessExpiry converts the oauth2 token expiry to a nullable column value.
func accessExpiry(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	expiry := token.Expiry
	return &expiry
}

// refreshExpiry extracts the nonstandard refresh_token_expires_in field
// some providers return alongside the token response.
func refreshExpiry(token *oauth2.Token) *time.Time {
	raw := token.Extra("refresh_token_expires_in")
	if raw == nil {
		return nil
	}

	var seconds int64
	switch v := raw.(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		seconds = parsed
	default:
		return nil
	}

	if seconds <= 0 {
		return nil
	}
	expiry := time.Now().Add(time.Duration(seconds) * time.Second)
	return &expiry
}

// retrieveErrorDetail formats an oauth2 endpoint error with the upstream
// status and a truncated body for logs and sync errors.
func retrieveErrorDetail(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return err.Error()
	}

	body := string(retrieveErr.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", retrieveErr.Response.StatusCode, body)
}
