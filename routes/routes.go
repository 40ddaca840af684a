package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samabos/tymblok/controllers"
	"github.com/samabos/tymblok/middlewares"
)

// SetupRoutes wires the integration endpoints. Block, category, and inbox
// CRUD are served by a separate API service.
func SetupRoutes(e *echo.Echo, auth *middlewares.AuthMiddleware, integrations *controllers.IntegrationController) {
	e.Use(middlewares.Recovery())
	e.Use(middlewares.ErrorHandler())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", auth.RequireAuth())
	api.GET("/integrations", integrations.List)
	api.POST("/integrations/sync", integrations.SyncAll)
	api.POST("/integrations/:provider/connect", integrations.Connect)
	api.GET("/integrations/:provider/callback", integrations.Callback)
	api.POST("/integrations/:provider/sync", integrations.Sync)
	api.DELETE("/integrations/:provider", integrations.Disconnect)
}
