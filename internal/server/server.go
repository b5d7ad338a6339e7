package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/queue"
	mid "github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/internal/storage"
	"github.com/OFFIS-RIT/proteus/backend/internal/util"
	"github.com/OFFIS-RIT/proteus/backend/pkg/agent/letta"
	"github.com/OFFIS-RIT/proteus/backend/pkg/agent/openai"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"
	"github.com/OFFIS-RIT/proteus/backend/pkg/reconcile"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store/memory"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

var corsHeaders = []string{
	echo.HeaderOrigin,
	echo.HeaderAccept,
	echo.HeaderAuthorization,
	echo.HeaderContentType,
	echo.HeaderXRequestedWith,
}

// NewEcho builds the HTTP server around app without starting it.
func NewEcho(app *mid.App, allowedOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     corsHeaders,
		AllowCredentials: true,
		// a wildcard reflects the caller's origin so credentialed requests pass
		UnsafeWildcardOriginWithAllowCredentials: slices.Contains(allowedOrigins, "*"),
	}))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)
	return e
}

// newAgent picks the adapter named by AGENT_ADAPTER. Only the Letta adapter
// can create agents and receive notebook saves, and only the openai adapter
// reports model usage.
func newAgent() (reconcile.Agent, mid.AgentRelay, mid.UsageReporter) {
	switch util.GetEnvString("AGENT_ADAPTER", "letta") {
	case "openai":
		client := openai.NewClient(openai.ClientParams{
			ChatURL:  util.GetEnv("AI_CHAT_URL"),
			ChatKey:  util.GetEnv("AI_CHAT_KEY"),
			Model:    util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini"),
			Thinking: util.GetEnv("AI_CHAT_THINKING"),
		})
		return client, nil, client
	default:
		client := letta.NewClient(letta.Config{
			BaseURL:         util.GetEnvString("LETTA_API_BASE", letta.DefaultBaseURL),
			Token:           util.GetEnvFirst("LETTA_API_KEY", "LETTA_TOKEN"),
			Project:         util.GetEnvString("LETTA_PROJECT", letta.DefaultProject),
			TemplateVersion: util.GetEnv("LETTA_TEMPLATE_VERSION"),
		})
		if !client.Configured() {
			logger.Warn("No Letta token configured, agent calls will fail")
		}
		return client, client, nil
	}
}

func engineConfig() reconcile.Config {
	defaults := reconcile.DefaultPollerConfig()
	return reconcile.Config{
		Poller: reconcile.PollerConfig{
			Interval:         util.GetEnvDuration("ANALYSIS_POLL_INTERVAL", defaults.Interval),
			Deadline:         util.GetEnvDuration("ANALYSIS_DEADLINE", defaults.Deadline),
			CallTimeout:      util.GetEnvDuration("ANALYSIS_CALL_TIMEOUT", defaults.CallTimeout),
			SubmitAttempts:   int(util.GetEnvNumeric("ANALYSIS_SUBMIT_ATTEMPTS", defaults.SubmitAttempts)),
			SubmitRetryDelay: defaults.SubmitRetryDelay,
		},
		TriggerMessage: util.GetEnv("AGENT_TRIGGER_MESSAGE"),
	}
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := engineConfig()
	var opts []reconcile.Option

	if conn := queue.Init(); conn != nil {
		defer conn.Close()
		publisher, err := queue.NewResultPublisher(conn)
		if err != nil {
			logger.Fatal("Failed to set up result events", "err", err)
		}
		opts = append(opts, reconcile.WithStoreHook(publisher.PublishStored))
	}

	snapshots, err := storage.NewSnapshotSink(ctx)
	if err != nil {
		logger.Fatal("Failed to set up snapshot storage", "err", err)
	}

	var key keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		key, err = keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
	}

	agentClient, relay, usage := newAgent()
	app := &mid.App{
		Engine:       reconcile.NewEngine(agentClient, memory.NewLatestResultSlot(), cfg, opts...),
		Session:      reconcile.NewSession(),
		Relay:        relay,
		Snapshots:    snapshots,
		Usage:        usage,
		CallTimeout:  cfg.Poller.CallTimeout,
		Key:          key,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e := NewEcho(app, util.GetEnvList("ALLOWED_ORIGIN"))
	addr := net.JoinHostPort(util.GetEnvString("HOST", "0.0.0.0"), util.GetEnvString("PORT", "8000"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "addr", addr, "snapshots", snapshots.String(), "auth", app.AuthEnabled())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
	logger.Info("Server stopped")
}
