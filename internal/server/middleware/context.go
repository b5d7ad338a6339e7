package middleware

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/storage"
	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"
	"github.com/OFFIS-RIT/proteus/backend/pkg/reconcile"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	Subject     string
	Role        string
	Permissions []string
}

// AgentRelay is the part of the agent service used outside of analysis runs:
// creating agents and forwarding notebook saves.
type AgentRelay interface {
	Configured() bool
	CanCreateAgents() bool
	CreateFromTemplate(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, agentID, content string) ([]byte, error)
}

// UsageReporter exposes the model usage of an agent adapter that calls a
// model directly.
type UsageReporter interface {
	GetMetrics() ai.ModelMetrics
}

type App struct {
	Engine    *reconcile.Engine
	Session   *reconcile.Session
	Relay     AgentRelay
	Snapshots storage.SnapshotSink
	Usage     UsageReporter
	// CallTimeout bounds relay calls made while serving a request.
	CallTimeout time.Duration

	Key          keyfunc.Keyfunc
	MasterAPIKey string
}

// AuthEnabled reports whether requests must carry credentials.
func (a *App) AuthEnabled() bool {
	return a.Key != nil || a.MasterAPIKey != ""
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
