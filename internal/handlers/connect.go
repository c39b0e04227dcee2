package handlers

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/services"
	"github.com/finlink/finlink/internal/util"
)

type ConnectHandler struct {
	connectionService *services.ConnectionService
	config            *config.Config
}

func NewConnectHandler(cs *services.ConnectionService, cfg *config.Config) *ConnectHandler {
	return &ConnectHandler{connectionService: cs, config: cfg}
}

// Connect godoc
//
//	@Summary		Start linking an account
//	@Description	Create a pending authorization and return the provider authorization URL the browser should visit.
//	@Tags			Connections
//	@Produce		json
//	@Security		BearerAuth
//	@Param			provider	path		string											true	"Provider slug (coinbase, schwab)"
//	@Success		200			{object}	object{auth_url=string,state=string,provider=string}
//	@Failure		400			{object}	object{error=string,error_description=string}	"Unknown provider"
//	@Router			/financial/connect/{provider} [post]
func (h *ConnectHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)
	provider := c.Param("provider")

	authURL, state, err := h.connectionService.GenerateAuthURL(c.Request.Context(), userID, provider)
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "unknown_provider",
				"error_description": "Provider is not supported",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to start authorization",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
		"provider": provider,
	})
}

// Callback godoc
//
//	@Summary		OAuth callback
//	@Description	Completes the handshake started by Connect. Hit by the provider's redirect, not by API clients; always responds with a redirect to the frontend.
//	@Tags			Connections
//	@Param			provider	path	string	true	"Provider slug"
//	@Param			code		query	string	false	"Authorization code"
//	@Param			state		query	string	false	"Opaque state issued by Connect"
//	@Param			error		query	string	false	"Provider error code when the user denied access"
//	@Success		302			{string}	string	"Redirect to the frontend accounts page"
//	@Router			/financial/callback/{provider} [get]
func (h *ConnectHandler) Callback(c *gin.Context) {
	result := h.connectionService.HandleCallback(
		c.Request.Context(),
		c.Param("provider"),
		c.Query("code"),
		c.Query("state"),
		c.Query("error"),
	)

	if !result.Success {
		log.Printf(
			"[Connect] %s callback rejected (%s) client=%s",
			result.Provider,
			result.ErrorCode,
			util.GetIPFromContext(c),
		)
	}

	c.Redirect(http.StatusFound, h.frontendRedirect(result))
}

// frontendRedirect builds the browser destination carrying the callback
// outcome. Token material never appears in the URL.
func (h *ConnectHandler) frontendRedirect(result *services.CallbackResult) string {
	query := url.Values{}
	if result.Success {
		query.Set("success", "true")
		query.Set("accountId", result.AccountID)
	} else {
		query.Set("error", result.ErrorCode)
	}
	query.Set("provider", result.Provider)

	return h.config.FrontendURL + "/accounts?" + query.Encode()
}
