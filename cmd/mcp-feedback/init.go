// ABOUTME: init command that writes a new config file interactively
// ABOUTME: Prompts for each setting with the default shown in brackets

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/2389/mcp-feedback/internal/config"
)

// InitCmd creates a new config file.
type InitCmd struct {
	Defaults bool `long:"defaults" description:"write the defaults without prompting"`
	Force    bool `long:"force" description:"overwrite an existing file"`

	app *cli
}

// Execute implements flags.Commander.
func (c *InitCmd) Execute(_ []string) error {
	out := c.app.out
	reader := bufio.NewReader(c.app.in)
	path := c.app.configPath()
	cfg := config.Defaults()

	if !c.Defaults {
		fmt.Fprintln(out, "mcp-feedback configuration setup")
		fmt.Fprintln(out, "================================")
		fmt.Fprintln(out)

		path = prompt(c, reader, "Config file path (.yaml or .toml)", path)
	}

	if _, err := os.Stat(path); err == nil && !c.Force {
		if c.Defaults {
			return fmt.Errorf("%w: %s (use --force to overwrite)", config.ErrExists, path)
		}
		if !yes(prompt(c, reader, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if !c.Defaults {
		if err := c.ask(reader, cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", path)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  mcp-feedback serve")
	return nil
}

// ask fills cfg from interactive answers.
func (c *InitCmd) ask(reader *bufio.Reader, cfg *config.Config) error {
	out := c.app.out

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	portStr := prompt(c, reader, "Agent endpoint port", strconv.Itoa(cfg.Port))
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	cfg.Port = port
	cfg.AutoRestart = yes(prompt(c, reader, "Restart automatically after a failure?", "no"))

	fmt.Fprintln(out, "\n--- Tool Calls ---")
	timeoutStr := prompt(c, reader, "Response timeout", cfg.Timeout.String())
	cfg.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", timeoutStr, err)
	}
	cfg.EnforceTimeout = yes(prompt(c, reader, "Cancel calls when the timeout passes?", "no"))
	cfg.OrphanPolicy = prompt(c, reader, "When an agent disconnects, keep or cancel its calls?", cfg.OrphanPolicy)

	fmt.Fprintln(out, "\n--- Audit Ledger ---")
	cfg.Audit.Path = prompt(c, reader, "SQLite audit database path (empty to disable)", "")

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	cfg.Logging.Level = prompt(c, reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(c, reader, "Log format (text/json)", cfg.Logging.Format)
	return nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(c *InitCmd, reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(c.app.out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(c.app.out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(c.app.out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
