// ABOUTME: Entry point for the mcp-feedback server and its helper commands
// ABOUTME: Parses subcommands with go-flags and runs them under a signal-aware context

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/2389/mcp-feedback/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                 __               _ _                _
  _ __ ___   ___ _ __         / _| ___  ___  __| | |__   __ _  ___| | __
 | '_ ' _ \ / __| '_ \ _____ | |_ / _ \/ _ \/ _' | '_ \ / _' |/ __| |/ /
 | | | | | | (__| |_) |_____||  _|  __/  __/ (_| | |_) | (_| | (__|   <
 |_| |_| |_|\___| .__/       |_|  \___|\___|\__,_|_.__/ \__,_|\___|_|\_\
                |_|
`

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config  string `short:"c" long:"config" description:"config file path (YAML or TOML)"`
	Version bool   `short:"v" long:"version" description:"print version and exit"`

	Serve  *ServeCmd  `command:"serve"  description:"Start the feedback server"`
	Init   *InitCmd   `command:"init"   description:"Create a new config file"`
	Health *HealthCmd `command:"health" description:"Check server health"`
	Calls  *CallsCmd  `command:"calls"  description:"List tool calls"`
}

// cli carries what every command needs besides its own flags.
type cli struct {
	ctx  context.Context
	opts *Options
	in   io.Reader
	out  io.Writer
}

// configPath resolves the config file the commands operate on.
func (c *cli) configPath() string {
	return config.ResolvePath(c.opts.Config)
}

// newOptions builds the command tree bound to app.
func newOptions(app *cli) *Options {
	opts := &Options{
		Serve:  &ServeCmd{app: app},
		Init:   &InitCmd{app: app},
		Health: &HealthCmd{app: app},
		Calls:  &CallsCmd{app: app},
	}
	app.opts = opts
	return opts
}

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	app := &cli{ctx: ctx, in: in, out: out}
	opts := newOptions(app)

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = true
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	if parser.Active == nil {
		if opts.Version {
			fmt.Fprintln(out, version)
			return nil
		}
		parser.WriteHelp(out)
		return errors.New("a command is required")
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	if err == nil {
		return
	}

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		fmt.Println(flagsErr.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
