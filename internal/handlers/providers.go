package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finlink/finlink/internal/auth"
)

type ProviderHandler struct {
	registry *auth.Registry
}

func NewProviderHandler(registry *auth.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// ListProviders godoc
//
//	@Summary		List supported providers
//	@Description	List the financial institutions available for linking. Client credentials are never included.
//	@Tags			Providers
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	object{providers=[]object{name=string,display_name=string,scopes=[]string}}
//	@Router			/financial/providers [get]
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.registry.Infos(),
	})
}
