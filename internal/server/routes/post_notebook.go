package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

const notebookMessagePrefix = "NOTEBOOK:\n"

type notebookSaveBody struct {
	SavedAt    string         `json:"savedAt" validate:"required"`
	Report     string         `json:"report,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	Snapshot   map[string]any `json:"snapshot,omitempty"`
	AgentID    string         `json:"agentId,omitempty"`
	NotebookID string         `json:"notebookId,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// prettyJSON indents v by two spaces and leaves non-ASCII and HTML
// characters unescaped.
func prettyJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SaveNotebookHandler records a notebook save, keeps the latest snapshot and
// forwards it to the remembered agent.
func SaveNotebookHandler(c echo.Context) error {
	type notebookSaveResponse struct {
		OK        bool             `json:"ok"`
		Ts        int64            `json:"ts"`
		Received  notebookSaveBody `json:"received"`
		Forwarded bool             `json:"forwarded"`
	}

	data := new(notebookSaveBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	pretty, err := prettyJSON(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	logger.Info("Notebook save received",
		"notebook_id", data.NotebookID,
		"agent_id", data.AgentID,
		"saved_at", data.SavedAt,
	)
	if data.Report != "" {
		logger.Info("Notebook save report", "report", data.Report)
	}
	logger.Debug("Notebook save payload", "payload", string(pretty))

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if app.Snapshots != nil {
		if err := app.Snapshots.WriteSnapshot(ctx, pretty); err != nil {
			logger.Warn("Failed to write notebook snapshot", "sink", app.Snapshots.String(), "err", err)
		}
	}

	forwarded := false
	agentID, hasAgent := app.Session.AgentID()
	if app.Relay != nil && app.Relay.Configured() && hasAgent {
		relayCtx, cancel := context.WithTimeout(ctx, relayTimeout(app))
		_, err := app.Relay.SendMessage(relayCtx, agentID, notebookMessagePrefix+string(pretty))
		cancel()
		if err != nil {
			logger.Error("Failed to forward notebook save", "agent_id", agentID, "err", err)
		} else {
			forwarded = true
			logger.Info("Notebook save forwarded", "agent_id", agentID)
		}
	}

	return c.JSON(http.StatusOK, notebookSaveResponse{
		OK:        true,
		Ts:        time.Now().Unix(),
		Received:  *data,
		Forwarded: forwarded,
	})
}
