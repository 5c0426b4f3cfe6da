// ABOUTME: Gateway orchestrator that wires store, broker, sessions, surfaces and supervisor
// ABOUTME: Implements the settings controller and manages startup and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/mcp-feedback/internal/assets"
	"github.com/2389/mcp-feedback/internal/broker"
	"github.com/2389/mcp-feedback/internal/config"
	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/mcp"
	"github.com/2389/mcp-feedback/internal/observer"
	"github.com/2389/mcp-feedback/internal/store"
	"github.com/2389/mcp-feedback/internal/supervisor"
	"github.com/2389/mcp-feedback/internal/surface"
)

// Options holds values that come from the command line rather than the
// config file.
type Options struct {
	// ConfigPath is where settings changes are saved. Empty disables saving.
	ConfigPath string
	Version    string
	Logger     *slog.Logger

	// AllowedOrigins lists extra browser origins for the surface websocket.
	AllowedOrigins []string

	// Listen replaces net.Listen for the agent endpoint.
	Listen func(network, address string) (net.Listener, error)
}

// Gateway orchestrates the mcp-feedback server components.
type Gateway struct {
	configPath string
	logger     *slog.Logger

	// cfgMu guards config and serializes settings updates.
	cfgMu  sync.Mutex
	config *config.Config
	// portMu serializes listener moves; each move targets the latest
	// configured port, so moves finishing out of order still converge.
	portMu sync.Mutex

	invocations *invocation.Store
	events      *observer.Broadcaster
	broker      *broker.Broker
	mcpServer   *mcp.Server
	surface     *surface.Handler
	supervisor  *supervisor.Supervisor

	// audit is nil when the ledger is disabled.
	audit     *store.SQLiteStore
	auditDone chan struct{}
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		configPath:  opts.ConfigPath,
		logger:      logger.With("component", "gateway"),
		config:      cfg,
		invocations: invocation.NewStore(cfg.History.MaxEntries),
		events:      observer.NewBroadcaster(logger.With("component", "broadcaster")),
	}

	settings := cfg.Settings()
	b, err := broker.New(broker.Config{
		Store:        gw.invocations,
		Publisher:    gw.events,
		Logger:       logger,
		Version:      opts.Version,
		EnabledTools: settings.EnabledTools,
		Policy:       policyFromSettings(settings),
	})
	if err != nil {
		return nil, fmt.Errorf("creating broker: %w", err)
	}
	gw.broker = b

	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Server: b.Server(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw.surface, err = surface.New(surface.Config{
		Broker:         b,
		Controller:     gw,
		Events:         gw.events,
		Logger:         logger,
		AllowedOrigins: opts.AllowedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("creating surface handler: %w", err)
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	mux.HandleFunc("/api/tool-calls", gw.handleListToolCalls)
	mux.HandleFunc("/api/audit", gw.handleListAudit)

	gw.mcpServer.RegisterRoutes(mux)
	gw.surface.RegisterRoutes(mux)
	assets.RegisterRoutes(mux)

	gw.supervisor, err = supervisor.New(supervisor.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Handler:      mux,
		Sessions:     gw.mcpServer,
		Publisher:    gw.events,
		Logger:       logger,
		RestartDelay: cfg.RestartDelay,
		AutoRestart:  cfg.AutoRestart,
		Listen:       opts.Listen,
	})
	if err != nil {
		return nil, fmt.Errorf("creating supervisor: %w", err)
	}

	if cfg.Audit.Path != "" {
		gw.audit, err = store.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing audit ledger: %w", err)
		}
	}

	return gw, nil
}

// policyFromSettings derives the broker waiting policy.
func policyFromSettings(s config.Settings) broker.Policy {
	return broker.Policy{
		Timeout:        s.Timeout,
		EnforceTimeout: s.EnforceTimeout,
		Orphan:         broker.OrphanPolicy(s.OrphanPolicy),
	}
}

// Run starts the agent endpoint and blocks until the context is canceled,
// then shuts everything down. Returns an error if the endpoint cannot bind.
func (g *Gateway) Run(ctx context.Context) error {
	g.startAuditor()

	if err := g.supervisor.Start(ctx); err != nil {
		shutdownErr := g.gracefulShutdown()
		if shutdownErr != nil {
			g.logger.Error("shutdown after failed start", "error", shutdownErr)
		}
		return fmt.Errorf("starting agent endpoint: %w", err)
	}

	<-ctx.Done()
	g.logger.Info("context canceled, initiating shutdown")

	return g.gracefulShutdown()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the agent endpoint, closes observers and flushes the
// audit ledger.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "agent endpoint shutdown", g.supervisor.Stop(ctx))

	g.events.Close()

	if g.auditDone != nil {
		select {
		case <-g.auditDone:
		case <-ctx.Done():
			g.logger.Warn("audit writer did not drain before shutdown deadline")
		}
	}
	if g.audit != nil {
		errs = appendCloseError(errs, "audit ledger close", g.audit.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Broker returns the tool broker.
func (g *Gateway) Broker() *broker.Broker {
	return g.broker
}

// Supervisor returns the lifecycle supervisor of the agent endpoint.
func (g *Gateway) Supervisor() *supervisor.Supervisor {
	return g.supervisor
}

// Settings returns the current user-adjustable settings.
func (g *Gateway) Settings() config.Settings {
	g.cfgMu.Lock()
	defer g.cfgMu.Unlock()
	return g.config.Settings()
}

// UpdateSettings validates s, saves it and applies it to the running
// components. A port change restarts the agent endpoint.
func (g *Gateway) UpdateSettings(ctx context.Context, s config.Settings) (config.Settings, error) {
	g.cfgMu.Lock()
	prevPort := g.config.Port
	next := *g.config
	if err := next.ApplySettings(s); err != nil {
		g.cfgMu.Unlock()
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	if g.configPath != "" {
		if err := next.Save(g.configPath); err != nil {
			g.cfgMu.Unlock()
			return config.Settings{}, fmt.Errorf("saving settings: %w", err)
		}
	}
	*g.config = next

	applied := next.Settings()
	g.broker.SetEnabledTools(applied.EnabledTools)
	g.broker.SetPolicy(policyFromSettings(applied))
	g.supervisor.SetAutoRestart(applied.AutoRestart)
	g.cfgMu.Unlock()

	g.logger.Info("settings updated",
		"port", applied.Port,
		"timeout", applied.Timeout,
		"enforce_timeout", applied.EnforceTimeout,
		"orphan_policy", applied.OrphanPolicy,
		"auto_restart", applied.AutoRestart,
	)

	// The running port may be a fallback, so only an edited port moves it.
	if applied.Port == prevPort {
		return applied, nil
	}
	if err := g.movePort(ctx); err != nil {
		return applied, err
	}
	return applied, nil
}

// movePort moves the listener to the configured port. Settings stay readable
// while the endpoint restarts.
func (g *Gateway) movePort(ctx context.Context) error {
	g.portMu.Lock()
	defer g.portMu.Unlock()

	g.cfgMu.Lock()
	port := g.config.Port
	g.cfgMu.Unlock()

	if err := g.supervisor.UpdatePort(ctx, port); err != nil {
		return fmt.Errorf("moving agent endpoint to port %d: %w", port, err)
	}
	return nil
}

// Restart restarts the agent endpoint on its current port.
func (g *Gateway) Restart(ctx context.Context) error {
	return g.supervisor.Restart(ctx)
}

// ServerURL returns the URL agents connect to.
func (g *Gateway) ServerURL() string {
	return g.supervisor.URL()
}
