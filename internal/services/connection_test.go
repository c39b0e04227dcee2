package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/client"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/crypto"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/pending"
	"github.com/finlink/finlink/internal/store"
)

const testEncryptionKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

// stubFetcher implements auth.AccountInfoFetcher with canned responses.
type stubFetcher struct {
	mu   sync.Mutex
	info *auth.AccountInfo
	err  error
}

func (f *stubFetcher) FetchAccountInfo(
	_ context.Context,
	_ *oauth2.Config,
	_ *oauth2.Token,
	_ string,
) (*auth.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	return &info, nil
}

func (f *stubFetcher) set(info *auth.AccountInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	f.err = err
}

// providerBackend is a fake OAuth provider endpoint set.
type providerBackend struct {
	mu sync.Mutex

	rotateRefresh bool

	revokeStatus   int
	revokeHits     int
	lastRevokeForm url.Values
	lastTokenForm  url.Values
}

func (b *providerBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		b.mu.Lock()
		b.lastTokenForm = r.PostForm
		rotate := b.rotateRefresh
		b.mu.Unlock()

		resp := map[string]any{
			"access_token":             "new-access-token",
			"token_type":               "Bearer",
			"expires_in":               3600,
			"refresh_token_expires_in": 7776000,
		}
		if rotate {
			resp["refresh_token"] = "new-refresh-token"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/oauth/token-fail", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	mux.HandleFunc("/oauth/revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		b.mu.Lock()
		b.revokeHits++
		b.lastRevokeForm = r.PostForm
		status := b.revokeStatus
		b.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	})

	return mux
}

type testEnv struct {
	service *ConnectionService
	store   *store.Store
	pending *pending.MemoryStore
	cipher  *crypto.TokenCipher
	backend *providerBackend
	fetcher *stubFetcher
	config  *config.Config
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := &providerBackend{rotateRefresh: true}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	fetcher := &stubFetcher{
		info: &auth.AccountInfo{
			ExternalAccountID: "ext-account-1",
			Name:              "Main Wallet",
			Type:              "crypto",
		},
	}

	registry := auth.NewRegistry()
	registry.Register(auth.NewProvider(auth.ProviderConfig{
		Name:         "coinbase",
		DisplayName:  "Coinbase",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token",
		RevokeURL:    srv.URL + "/oauth/revoke",
		APIBaseURL:   srv.URL,
		Scopes:       []string{"wallet:user:read"},
		Fetcher:      fetcher,
	}))
	registry.Register(auth.NewProvider(auth.ProviderConfig{
		Name:         "schwab",
		DisplayName:  "Charles Schwab",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token",
		APIBaseURL:   srv.URL,
		Scopes:       []string{"readonly"},
		Fetcher:      fetcher,
	}))
	// A provider whose token endpoint always rejects requests, for
	// failure-path tests.
	registry.Register(auth.NewProvider(auth.ProviderConfig{
		Name:         "badbank",
		DisplayName:  "Bad Bank",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token-fail",
		APIBaseURL:   srv.URL,
		Fetcher:      fetcher,
	}))

	db, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cipher, err := crypto.NewTokenCipher(testEncryptionKey)
	require.NoError(t, err)

	pendingStore := pending.NewMemoryStore(pending.DefaultTTL)
	t.Cleanup(func() { _ = pendingStore.Close() })

	revokeClient, err := client.NewRevokeClient(
		5*time.Second,
		false,
		1,
		time.Millisecond,
		5*time.Millisecond,
	)
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:             "http://localhost:8080",
		RefreshExpiryBuffer: 10 * time.Minute,
	}

	service := NewConnectionService(
		db,
		cipher,
		registry,
		pendingStore,
		&http.Client{Timeout: 5 * time.Second},
		revokeClient,
		metrics.NewNoopMetrics(),
		cfg,
	)

	return &testEnv{
		service: service,
		store:   db,
		pending: pendingStore,
		cipher:  cipher,
		backend: backend,
		fetcher: fetcher,
		config:  cfg,
	}
}

func (e *testEnv) createUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.store.CreateUser(&models.User{
		ID:    id,
		Email: id + "@example.com",
	}))
}

// seedAccount stores an active account with encrypted token material.
func (e *testEnv) seedAccount(
	t *testing.T,
	userID, provider, externalID string,
	accessExpiry *time.Time,
) *models.ConnectedAccount {
	t.Helper()

	accessBlob, refreshBlob, err := e.cipher.EncryptTokenPair("old-access", "old-refresh")
	require.NoError(t, err)

	account := &models.ConnectedAccount{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          provider,
		ExternalAccountID: externalID,
		AccountName:       "Seeded Account",
		AccountType:       "crypto",
		AccessToken:       accessBlob,
		RefreshToken:      refreshBlob,
		AccessTokenExpiry: accessExpiry,
		IsActive:          true,
		SyncStatus:        models.SyncStatusPending,
	}
	require.NoError(t, e.store.CreateConnectedAccount(account))
	return account
}

func TestGenerateAuthURL(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")

	authURL, state, err := env.service.GenerateAuthURL(context.Background(), "u1", "coinbase")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, state, query.Get("state"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t,
		"http://localhost:8080/financial/callback/coinbase",
		query.Get("redirect_uri"),
	)
	assert.Equal(t, 1, env.pending.Len())
}

func TestGenerateAuthURLUnknownProvider(t *testing.T) {
	env := setupTestEnv(t)

	_, _, err := env.service.GenerateAuthURL(context.Background(), "u1", "vanguard")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, 0, env.pending.Len())
}

// beginAuth starts a handshake and returns the state the provider will
// send back.
func beginAuth(t *testing.T, env *testEnv, userID, provider string) string {
	t.Helper()

	_, state, err := env.service.GenerateAuthURL(context.Background(), userID, provider)
	require.NoError(t, err)
	return state
}

func TestHandleCallbackSuccess(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	state := beginAuth(t, env, "u1", "coinbase")

	result := env.service.HandleCallback(context.Background(), "coinbase", "abc", state, "")
	require.True(t, result.Success, "callback should succeed, got error %q", result.ErrorCode)
	require.NotEmpty(t, result.AccountID)

	account, err := env.store.GetConnectedAccountByIDAndUserID(result.AccountID, "u1")
	require.NoError(t, err)

	assert.Equal(t, "coinbase", account.Provider)
	assert.Equal(t, "ext-account-1", account.ExternalAccountID)
	assert.Equal(t, "Main Wallet", account.AccountName)
	assert.Equal(t, "crypto", account.AccountType)
	assert.True(t, account.IsActive)
	assert.Equal(t, models.SyncStatusPending, account.SyncStatus)
	require.NotNil(t, account.AccessTokenExpiry)
	require.NotNil(t, account.RefreshTokenExpiry)

	// Stored material must be ciphertext, not the plaintext tokens
	assert.NotContains(t, account.AccessToken, "new-access-token")
	assert.NotContains(t, account.RefreshToken, "new-refresh-token")

	access, refresh, err := env.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", access)
	assert.Equal(t, "new-refresh-token", refresh)

	// PKCE verifier must have been presented during the exchange
	env.backend.mu.Lock()
	form := env.backend.lastTokenForm
	env.backend.mu.Unlock()
	assert.NotEmpty(t, form.Get("code_verifier"))
	assert.Equal(t, "abc", form.Get("code"))
}

func TestHandleCallbackInvalidState(t *testing.T) {
	env := setupTestEnv(t)

	result := env.service.HandleCallback(
		context.Background(),
		"coinbase",
		"abc",
		"never-issued",
		"",
	)
	assert.False(t, result.Success)
	assert.Equal(t, CallbackErrorInvalidState, result.ErrorCode)
}

func TestHandleCallbackStateSingleUse(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	state := beginAuth(t, env, "u1", "coinbase")

	first := env.service.HandleCallback(context.Background(), "coinbase", "abc", state, "")
	require.True(t, first.Success)

	second := env.service.HandleCallback(context.Background(), "coinbase", "abc", state, "")
	assert.False(t, second.Success)
	assert.Equal(t, CallbackErrorInvalidState, second.ErrorCode)
}

func TestHandleCallbackRedirectMismatch(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	state := beginAuth(t, env, "u1", "coinbase")

	// State issued for coinbase presented on the schwab callback route
	result := env.service.HandleCallback(context.Background(), "schwab", "abc", state, "")
	assert.False(t, result.Success)
	assert.Equal(t, CallbackErrorRedirectMismatch, result.ErrorCode)

	// The mismatch must not have created an account
	accounts, err := env.store.ListActiveAccountsByUserID("u1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestHandleCallbackAccessDenied(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	state := beginAuth(t, env, "u1", "coinbase")

	result := env.service.HandleCallback(
		context.Background(),
		"coinbase",
		"",
		state,
		"access_denied",
	)
	assert.False(t, result.Success)
	assert.Equal(t, CallbackErrorAccessDenied, result.ErrorCode)

	// The denial must still burn the state
	assert.Equal(t, 0, env.pending.Len())
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	state := beginAuth(t, env, "u1", "badbank")

	result := env.service.HandleCallback(context.Background(), "badbank", "abc", state, "")
	assert.False(t, result.Success)
	assert.Equal(t, CallbackErrorExchange, result.ErrorCode)
}

func TestHandleCallbackAccountInfoFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	env.fetcher.set(nil, assert.AnError)
	state := beginAuth(t, env, "u1", "coinbase")

	result := env.service.HandleCallback(context.Background(), "coinbase", "abc", state, "")
	assert.False(t, result.Success)
	assert.Equal(t, CallbackErrorAccountInfo, result.ErrorCode)
}

func TestHandleCallbackRelinkUpdatesExisting(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")

	existing := env.seedAccount(t, "u1", "coinbase", "ext-account-1", nil)
	require.NoError(t, env.store.UpdateAccountName(existing.ID, "u1", "My Custom Name"))
	require.NoError(t, env.store.DeactivateByIDAndUserID(existing.ID, "u1"))

	state := beginAuth(t, env, "u1", "coinbase")
	result := env.service.HandleCallback(context.Background(), "coinbase", "abc", state, "")
	require.True(t, result.Success)

	// Re-linking must update the existing row, not create a duplicate
	assert.Equal(t, existing.ID, result.AccountID)

	account, err := env.store.GetConnectedAccountByIDAndUserID(existing.ID, "u1")
	require.NoError(t, err)
	assert.True(t, account.IsActive)
	assert.Equal(t, models.SyncStatusPending, account.SyncStatus)
	assert.Equal(t, "My Custom Name", account.AccountName, "user-chosen name survives relink")

	access, _, err := env.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", access)
}

func TestRefreshAccount(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	account, err := env.service.RefreshAccount(context.Background(), "u1", seeded.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusSuccess, account.SyncStatus)
	require.NotNil(t, account.AccessTokenExpiry)

	access, refresh, err := env.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", access)
	assert.Equal(t, "new-refresh-token", refresh)

	form := env.backend.lastTokenForm
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "old-refresh", form.Get("refresh_token"))
}

func TestRefreshAccountKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	env.backend.rotateRefresh = false
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	account, err := env.service.RefreshAccount(context.Background(), "u1", seeded.ID)
	require.NoError(t, err)

	_, refresh, err := env.cipher.DecryptTokenPair(account.AccessToken, account.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", refresh, "stored refresh token must survive a non-rotating refresh")
}

func TestRefreshAccountProviderError(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "badbank", "ext-1", nil)

	_, err := env.service.RefreshAccount(context.Background(), "u1", seeded.ID)
	require.Error(t, err)

	account, getErr := env.store.GetConnectedAccountByIDAndUserID(seeded.ID, "u1")
	require.NoError(t, getErr)
	assert.Equal(t, models.SyncStatusError, account.SyncStatus)
	assert.Contains(t, account.SyncError, "token_refresh_failed")
}

func TestRefreshAccountNoRefreshToken(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")

	accessBlob, _, err := env.cipher.EncryptTokenPair("old-access", "")
	require.NoError(t, err)

	account := &models.ConnectedAccount{
		ID:                uuid.New().String(),
		UserID:            "u1",
		Provider:          "coinbase",
		ExternalAccountID: "ext-no-refresh",
		AccessToken:       accessBlob,
		IsActive:          true,
		SyncStatus:        models.SyncStatusPending,
	}
	require.NoError(t, env.store.CreateConnectedAccount(account))

	_, err = env.service.RefreshAccount(context.Background(), "u1", account.ID)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefreshAccountWrongUser(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	env.createUser(t, "u2")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	_, err := env.service.RefreshAccount(context.Background(), "u2", seeded.ID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRefreshAccountInactive(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)
	require.NoError(t, env.store.DeactivateByIDAndUserID(seeded.ID, "u1"))

	_, err := env.service.RefreshAccount(context.Background(), "u1", seeded.ID)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestRefreshExpiringTokens(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")

	soon := time.Now().Add(2 * time.Minute)
	later := time.Now().Add(2 * time.Hour)

	due := env.seedAccount(t, "u1", "coinbase", "ext-due", &soon)
	notDue := env.seedAccount(t, "u1", "coinbase", "ext-not-due", &later)
	failing := env.seedAccount(t, "u1", "badbank", "ext-failing", &soon)

	refreshed, failed := env.service.RefreshExpiringTokens(context.Background())
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, failed)

	refreshedAccount, err := env.store.GetConnectedAccountByIDAndUserID(due.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, refreshedAccount.SyncStatus)

	untouched, err := env.store.GetConnectedAccountByIDAndUserID(notDue.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, untouched.SyncStatus)

	failedAccount, err := env.store.GetConnectedAccountByIDAndUserID(failing.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, failedAccount.SyncStatus)
}

func TestRevokeAccess(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	remoteOK, err := env.service.RevokeAccess(context.Background(), "u1", seeded.ID)
	require.NoError(t, err)
	assert.True(t, remoteOK)

	env.backend.mu.Lock()
	hits := env.backend.revokeHits
	form := env.backend.lastRevokeForm
	env.backend.mu.Unlock()

	assert.Equal(t, 1, hits)
	assert.Equal(t, "old-access", form.Get("token"))
	assert.Equal(t, "access_token", form.Get("token_type_hint"))

	account, err := env.store.GetConnectedAccountByIDAndUserID(seeded.ID, "u1")
	require.NoError(t, err)
	assert.False(t, account.IsActive)
	assert.Equal(t, models.SyncStatusDisconnected, account.SyncStatus)
}

func TestRevokeAccessRemoteFailureStillDeactivates(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	env.backend.revokeStatus = http.StatusInternalServerError
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	remoteOK, err := env.service.RevokeAccess(context.Background(), "u1", seeded.ID)
	require.NoError(t, err)
	assert.False(t, remoteOK)

	account, err := env.store.GetConnectedAccountByIDAndUserID(seeded.ID, "u1")
	require.NoError(t, err)
	assert.False(t, account.IsActive)
}

func TestRevokeAccessNoRevokeEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "schwab", "ext-1", nil)

	remoteOK, err := env.service.RevokeAccess(context.Background(), "u1", seeded.ID)
	require.NoError(t, err)
	assert.True(t, remoteOK)

	env.backend.mu.Lock()
	hits := env.backend.revokeHits
	env.backend.mu.Unlock()
	assert.Equal(t, 0, hits)

	account, err := env.store.GetConnectedAccountByIDAndUserID(seeded.ID, "u1")
	require.NoError(t, err)
	assert.False(t, account.IsActive)
}

func TestRevokeAccessUnknownAccount(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")

	_, err := env.service.RevokeAccess(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestListAndGetAccounts(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	env.createUser(t, "u2")

	mine := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)
	env.seedAccount(t, "u2", "coinbase", "ext-2", nil)

	accounts, err := env.service.ListAccounts("u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, mine.ID, accounts[0].ID)

	account, err := env.service.GetAccount("u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, account.ID)

	_, err = env.service.GetAccount("u2", mine.ID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRenameAccount(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	require.NoError(t, env.service.RenameAccount("u1", seeded.ID, "Retirement"))

	account, err := env.service.GetAccount("u1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Retirement", account.AccountName)

	assert.ErrorIs(t, env.service.RenameAccount("u1", "missing", "x"), ErrAccountNotFound)
}

func TestRequestSync(t *testing.T) {
	env := setupTestEnv(t)
	env.createUser(t, "u1")
	seeded := env.seedAccount(t, "u1", "coinbase", "ext-1", nil)

	require.NoError(t, env.service.RequestSync("u1", seeded.ID))

	account, err := env.service.GetAccount("u1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, account.SyncStatus)

	require.NoError(t, env.store.DeactivateByIDAndUserID(seeded.ID, "u1"))
	assert.ErrorIs(t, env.service.RequestSync("u1", seeded.ID), ErrAccountInactive)
}
