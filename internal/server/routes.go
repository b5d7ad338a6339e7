package server

import (
	"github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", routes.GetHealthHandler)

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Agent routes
	apiRoutes.POST("/letta/create", routes.CreateAgentHandler, middleware.RequirePermission("agent.create"))
	apiRoutes.POST("/notebook/save", routes.SaveNotebookHandler, middleware.RequirePermission("notebook.save"))

	// Analysis routes
	apiRoutes.POST("/analysis/run", routes.RunAnalysisHandler, middleware.RequirePermission("analysis.run"))
	apiRoutes.POST("/analysis/result", routes.SubmitAnalysisResultHandler, middleware.RequirePermission("analysis.submit"))
	apiRoutes.GET("/analysis/result", routes.GetAnalysisResultHandler, middleware.RequirePermission("analysis.view"))
	apiRoutes.GET("/analysis/schema", routes.GetAnalysisSchemaHandler)
}
