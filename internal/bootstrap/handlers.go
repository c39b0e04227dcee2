package bootstrap

import (
	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/handlers"
	"github.com/finlink/finlink/internal/services"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	providers *handlers.ProviderHandler
	connect   *handlers.ConnectHandler
	accounts  *handlers.AccountHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	cfg *config.Config,
	registry *auth.Registry,
	connectionService *services.ConnectionService,
) handlerSet {
	return handlerSet{
		providers: handlers.NewProviderHandler(registry),
		connect:   handlers.NewConnectHandler(connectionService, cfg),
		accounts:  handlers.NewAccountHandler(connectionService),
	}
}
