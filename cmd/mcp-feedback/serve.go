// ABOUTME: serve command that loads the config and runs the gateway
// ABOUTME: Prints the startup banner and blocks until interrupted

package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fatih/color"

	"github.com/2389/mcp-feedback/internal/config"
	"github.com/2389/mcp-feedback/internal/gateway"
)

// ServeCmd starts the feedback server.
type ServeCmd struct {
	Host        string   `long:"host" description:"interface to listen on (overrides config)"`
	Port        int      `short:"p" long:"port" description:"agent endpoint port (overrides config)"`
	AllowOrigin []string `long:"allow-origin" description:"extra browser origin allowed to open the UI websocket"`

	app *cli
}

// loadConfig reads the config file and applies flag overrides.
func (c *ServeCmd) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Execute implements flags.Commander.
func (c *ServeCmd) Execute(_ []string) error {
	out := c.app.out
	configPath := c.app.configPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, err := c.loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, out)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Agents:    http://%s/mcp\n", addr)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "UI:        ws://%s/ui/ws\n", addr)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Timeout:   %s", cfg.Timeout)
	if cfg.EnforceTimeout {
		yellow.Fprint(out, " [enforced]")
	}
	fmt.Fprintln(out)
	if cfg.Audit.Path != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Audit:     %s\n", cfg.Audit.Path)
	}
	fmt.Fprintln(out)

	logger.Info("starting mcp-feedback",
		"config", configPath,
		"addr", addr,
		"timeout", cfg.Timeout,
		"orphan_policy", cfg.OrphanPolicy,
	)

	gw, err := gateway.New(cfg, gateway.Options{
		ConfigPath:     configPath,
		Version:        version,
		Logger:         logger,
		AllowedOrigins: c.AllowOrigin,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(c.app.ctx)
}
