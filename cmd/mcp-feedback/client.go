// ABOUTME: health and calls commands that query a running server over HTTP
// ABOUTME: Prints readiness and a table of tool calls with colored status

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mcp-feedback/internal/config"
)

// ServerFlags selects the server a client command talks to.
type ServerFlags struct {
	URL string `short:"u" long:"url" description:"server base URL (default: derived from config)"`
}

// baseURL returns the server URL from the flag or the config file.
func (f ServerFlags) baseURL(app *cli) (string, error) {
	if f.URL != "" {
		return strings.TrimRight(f.URL, "/"), nil
	}
	cfg, err := config.LoadOrDefault(app.configPath())
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port)), nil
}

// get performs a GET request and returns the status and body.
func get(ctx context.Context, rawURL string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// HealthCmd checks that a server is alive and ready.
type HealthCmd struct {
	ServerFlags

	app *cli
}

// Execute implements flags.Commander.
func (c *HealthCmd) Execute(_ []string) error {
	base, err := c.baseURL(c.app)
	if err != nil {
		return err
	}

	status, _, err := get(c.app.ctx, base+"/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	status, body, err := get(c.app.ctx, base+"/health/ready")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("not ready: %s", strings.TrimSpace(string(body)))
	}

	fmt.Fprintf(c.app.out, "healthy: %s\n", strings.TrimSpace(string(body)))
	return nil
}

// CallsCmd lists the tool calls a server knows about.
type CallsCmd struct {
	ServerFlags
	Status string `short:"s" long:"status" choice:"pending" choice:"completed" choice:"cancelled" description:"only show calls with this status"`
	JSON   bool   `long:"json" description:"print the raw JSON response"`

	app *cli
}

// toolCallRow is the part of a tool call the table shows.
type toolCallRow struct {
	ID           string          `json:"id"`
	ToolName     string          `json:"toolName"`
	Arguments    json.RawMessage `json:"arguments"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       string          `json:"status"`
	UserFeedback string          `json:"userFeedback"`
	CancelReason string          `json:"cancelReason"`
}

// summary returns the question the agent asked.
func (r toolCallRow) summary() string {
	var args struct {
		Message string `json:"message"`
		Action  string `json:"action"`
	}
	_ = json.Unmarshal(r.Arguments, &args)
	if args.Message != "" {
		return args.Message
	}
	return args.Action
}

// Execute implements flags.Commander.
func (c *CallsCmd) Execute(_ []string) error {
	base, err := c.baseURL(c.app)
	if err != nil {
		return err
	}

	endpoint := base + "/api/tool-calls"
	if c.Status != "" {
		endpoint += "?status=" + url.QueryEscape(c.Status)
	}

	status, body, err := get(c.app.ctx, endpoint)
	if err != nil {
		return fmt.Errorf("listing tool calls: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("listing tool calls: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	if c.JSON {
		_, err := c.app.out.Write(body)
		return err
	}

	var rows []toolCallRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("decoding tool calls: %w", err)
	}
	printCalls(c.app.out, rows)
	return nil
}

func printCalls(out io.Writer, rows []toolCallRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tool calls.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTOOL\tSTATUS\tCREATED\tQUESTION\tANSWER")
	fmt.Fprintln(w, "  --\t----\t------\t-------\t--------\t------")

	for _, r := range rows {
		answer := r.UserFeedback
		if r.Status == "cancelled" {
			answer = r.CancelReason
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(r.ID, 8),
			r.ToolName,
			colorStatus(r.Status),
			r.Timestamp.Local().Format("Jan 02 15:04"),
			truncate(oneLine(r.summary()), 48),
			truncate(oneLine(answer), 32),
		)
	}
	w.Flush()
}

func colorStatus(status string) string {
	switch status {
	case "pending":
		return color.YellowString(status)
	case "completed":
		return color.GreenString(status)
	case "cancelled":
		return color.RedString(status)
	default:
		return status
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
