package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateAgentHandler creates an agent from the configured template and
// remembers it for later notebook saves and analysis runs.
func CreateAgentHandler(c echo.Context) error {
	type createAgentBody struct {
		NotebookID string         `json:"notebookId"`
		Meta       map[string]any `json:"meta"`
	}

	type createAgentResponse struct {
		OK         bool   `json:"ok"`
		Event      string `json:"event"`
		Ts         int64  `json:"ts"`
		NotebookID string `json:"notebookId,omitempty"`
		AgentID    string `json:"agentId,omitempty"`
	}

	data := new(createAgentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	logger.Info("Agent creation requested",
		"notebook_id", data.NotebookID,
		"ip", c.RealIP(),
		"user_agent", c.Request().UserAgent(),
	)

	app := c.(*middleware.AppContext).App
	if app.Relay == nil || !app.Relay.CanCreateAgents() {
		app.Session.SetAgentID("")
		return c.JSON(http.StatusOK, createAgentResponse{
			OK:         true,
			Event:      "letta.create.received",
			Ts:         time.Now().Unix(),
			NotebookID: data.NotebookID,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), relayTimeout(app))
	defer cancel()

	agentID, err := app.Relay.CreateFromTemplate(ctx)
	if err != nil {
		logger.Error("Agent creation failed", "notebook_id", data.NotebookID, "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Message: "Letta error: " + err.Error()})
	}
	app.Session.SetAgentID(agentID)
	logger.Info("Agent created", "notebook_id", data.NotebookID, "agent_id", agentID)

	return c.JSON(http.StatusOK, createAgentResponse{
		OK:         true,
		Event:      "letta.create.created",
		Ts:         time.Now().Unix(),
		NotebookID: data.NotebookID,
		AgentID:    agentID,
	})
}

func relayTimeout(app *middleware.App) time.Duration {
	if app.CallTimeout > 0 {
		return app.CallTimeout
	}
	return 30 * time.Second
}
