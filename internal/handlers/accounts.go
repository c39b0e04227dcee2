package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/models"
	"github.com/finlink/finlink/internal/services"
)

type AccountHandler struct {
	connectionService *services.ConnectionService
}

func NewAccountHandler(cs *services.ConnectionService) *AccountHandler {
	return &AccountHandler{connectionService: cs}
}

// AccountResponse is the external view of a connected account. Token
// material and provider identifiers used for dedup stay internal.
type AccountResponse struct {
	ID                string     `json:"id"`
	Provider          string     `json:"provider"`
	AccountName       string     `json:"account_name"`
	AccountType       string     `json:"account_type"`
	IsActive          bool       `json:"is_active"`
	SyncStatus        string     `json:"sync_status"`
	SyncError         string     `json:"sync_error,omitempty"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	AccessTokenExpiry *time.Time `json:"access_token_expiry,omitempty"`
	ConnectedAt       time.Time  `json:"connected_at"`
}

func toAccountResponse(account *models.ConnectedAccount) AccountResponse {
	return AccountResponse{
		ID:                account.ID,
		Provider:          account.Provider,
		AccountName:       account.AccountName,
		AccountType:       account.AccountType,
		IsActive:          account.IsActive,
		SyncStatus:        account.SyncStatus,
		SyncError:         account.SyncError,
		LastSyncAt:        account.LastSyncAt,
		AccessTokenExpiry: account.AccessTokenExpiry,
		ConnectedAt:       account.CreatedAt,
	}
}

// ListAccounts godoc
//
//	@Summary		List connected accounts
//	@Description	List the caller's active connected accounts, newest first.
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	object{accounts=[]handlers.AccountResponse}
//	@Router			/financial/accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID := middleware.GetUserID(c)

	accounts, err := h.connectionService.ListAccounts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to list accounts",
		})
		return
	}

	responses := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		responses = append(responses, toAccountResponse(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": responses})
}

// GetAccount godoc
//
//	@Summary		Get a connected account
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Account ID"
//	@Success		200	{object}	handlers.AccountResponse
//	@Failure		404	{object}	object{error=string,error_description=string}
//	@Router			/financial/accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	account, err := h.connectionService.GetAccount(userID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// RenameAccount godoc
//
//	@Summary		Rename a connected account
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string							true	"Account ID"
//	@Param			body	body		object{account_name=string}	true	"New display name"
//	@Success		200		{object}	handlers.AccountResponse
//	@Failure		400		{object}	object{error=string,error_description=string}
//	@Failure		404		{object}	object{error=string,error_description=string}
//	@Router			/financial/accounts/{id} [patch]
func (h *AccountHandler) RenameAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	accountID := c.Param("id")

	var req struct {
		AccountName string `json:"account_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.AccountName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "account_name is required",
		})
		return
	}

	if err := h.connectionService.RenameAccount(
		userID,
		accountID,
		strings.TrimSpace(req.AccountName),
	); err != nil {
		respondServiceError(c, err)
		return
	}

	account, err := h.connectionService.GetAccount(userID, accountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// DisconnectAccount godoc
//
//	@Summary		Disconnect an account
//	@Description	Revokes provider access best-effort and deactivates the account locally. Idempotent.
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Account ID"
//	@Success		200	{object}	object{disconnected=bool,remote_revoked=bool}
//	@Failure		404	{object}	object{error=string,error_description=string}
//	@Router			/financial/accounts/{id} [delete]
func (h *AccountHandler) DisconnectAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	remoteOK, err := h.connectionService.RevokeAccess(
		c.Request.Context(),
		userID,
		c.Param("id"),
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disconnected":   true,
		"remote_revoked": remoteOK,
	})
}

// RefreshAccount godoc
//
//	@Summary		Refresh account tokens
//	@Description	Exchange the stored refresh token for a fresh access token.
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Account ID"
//	@Success		200	{object}	handlers.AccountResponse
//	@Failure		404	{object}	object{error=string,error_description=string}
//	@Failure		409	{object}	object{error=string,error_description=string}	"Account disconnected or has no refresh token"
//	@Router			/financial/accounts/{id}/refresh [post]
func (h *AccountHandler) RefreshAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	account, err := h.connectionService.RefreshAccount(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// SyncAccount godoc
//
//	@Summary		Request an account sync
//	@Description	Mark the account as syncing so the sync worker picks it up.
//	@Tags			Accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Account ID"
//	@Success		202	{object}	object{sync_status=string}
//	@Failure		404	{object}	object{error=string,error_description=string}
//	@Failure		409	{object}	object{error=string,error_description=string}	"Account disconnected"
//	@Router			/financial/accounts/{id}/sync [post]
func (h *AccountHandler) SyncAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.connectionService.RequestSync(userID, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sync_status": models.SyncStatusSyncing})
}

// respondServiceError maps service errors onto HTTP status codes.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "account_not_found",
			"error_description": "No such connected account",
		})
	case errors.Is(err, services.ErrAccountInactive):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "account_disconnected",
			"error_description": "Account is disconnected; reconnect it first",
		})
	case errors.Is(err, services.ErrNoRefreshToken):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "no_refresh_token",
			"error_description": "Provider issued no refresh token; reconnect the account",
		})
	case errors.Is(err, services.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "unknown_provider",
			"error_description": "Provider is not supported",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": err.Error(),
		})
	}
}
