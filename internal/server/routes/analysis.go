package routes

import (
	"io"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

type analysisResponse struct {
	OK       bool                     `json:"ok"`
	Source   analysis.Provenance      `json:"source"`
	StoredAt time.Time                `json:"storedAt"`
	Result   *analysis.AnalysisResult `json:"result"`
}

func snapshotResponse(s store.Snapshot) analysisResponse {
	return analysisResponse{
		OK:       true,
		Source:   s.Provenance,
		StoredAt: s.StoredAt.UTC(),
		Result:   s.Result,
	}
}

// RunAnalysisHandler asks the agent for a fresh analysis and stores it.
// The agent id falls back to the one created last.
func RunAnalysisHandler(c echo.Context) error {
	type runAnalysisBody struct {
		AgentID string `json:"agentId"`
	}

	data := new(runAnalysisBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	agentID, err := app.Session.ResolveAgentID(data.AgentID)
	if err != nil {
		return analysisError(c, err)
	}

	snapshot, err := app.Engine.RunAnalysis(c.Request().Context(), agentID)
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(http.StatusOK, snapshotResponse(snapshot))
}

// SubmitAnalysisResultHandler stores a result pushed by an external caller.
func SubmitAnalysisResultHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	snapshot, err := app.Engine.SubmitExternalResult(c.Request().Context(), body)
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(http.StatusOK, snapshotResponse(snapshot))
}

func GetAnalysisResultHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	snapshot, err := app.Engine.LatestResult()
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(http.StatusOK, snapshotResponse(snapshot))
}

func GetAnalysisSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, analysis.Schema())
}
