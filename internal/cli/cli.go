package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/vk/minemods/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Subcommand names.
const (
	CmdList   = "list"
	CmdOrder  = "order"
	CmdLoad   = "load"
	CmdWatch  = "watch"
	CmdDoctor = "doctor"
	CmdSchema = "schema"
)

var commands = []string{CmdList, CmdOrder, CmdLoad, CmdWatch, CmdDoctor, CmdSchema}

// Command is a parsed invocation.
type Command struct {
	Name   string
	Config *app.Config
	// JSON selects machine-readable output.
	JSON bool
	// Interval is the polling interval of watch.
	Interval time.Duration
}

// Parse processes command-line arguments on top of the MINEMODS_*
// environment. It returns the command to run, a boolean indicating if the
// program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")

	base, err := app.LoadConfig()
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	flagSet := flag.NewFlagSet("minemods", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
minemods - mod loader tooling for the minesweeper game.

Usage:
  minemods [options] <command>

Commands:
  list     Show discovered mods and whether they are enabled.
  order    Print the resolved load order of the enabled mods.
  load     Load the enabled mods once and report the result.
  watch    Load the enabled mods and hot-reload them when files change.
  doctor   Load the enabled mods and inspect every winning asset.
  schema   Print the JSON schema of mod.json manifests.

Options:
`)
		flagSet.PrintDefaults()
	}

	rootFlag := flagSet.String("root", base.Root, "Game directory holding assets/, mods/ and config/.")
	searchFlag := flagSet.String("search-paths", strings.Join(base.SearchPaths, ","), "Comma separated mod search paths. Defaults to mods,workshop.")
	backendFlag := flagSet.String("settings-backend", base.SettingsBackend, "User settings backend. Options: 'json' or 'sqlite'.")
	settingsFlag := flagSet.String("settings-path", base.SettingsPath, "User settings file.")
	modSettingsFlag := flagSet.String("mod-settings-path", base.ModSettingsPath, "Mod settings file.")
	statusPortFlag := flagSet.Int("status-port", base.StatusPort, "Port for the HTTP status server. 0 is disabled.")
	relayFlag := flagSet.String("relay-url", base.RelayURL, "Socket.io dev relay URL. Empty is disabled.")
	relayInsecureFlag := flagSet.Bool("relay-insecure", base.RelayInsecure, "Skip TLS verification for the dev relay.")
	logFormatFlag := flagSet.String("log-format", base.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", base.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	jsonFlag := flagSet.Bool("json", false, "Print command output as JSON.")
	intervalFlag := flagSet.Duration("interval", app.DefaultWatchInterval, "Polling interval for watch.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No command provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	name := strings.ToLower(flagSet.Arg(0))
	if !slices.Contains(commands, name) {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", flagSet.Arg(0))}
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments after %s: %v", name, flagSet.Args()[1:])}
	}

	cfg := base
	cfg.Root = *rootFlag
	cfg.SearchPaths = splitList(*searchFlag)
	cfg.SettingsBackend = *backendFlag
	cfg.SettingsPath = *settingsFlag
	cfg.ModSettingsPath = *modSettingsFlag
	cfg.StatusPort = *statusPortFlag
	cfg.RelayURL = *relayFlag
	cfg.RelayInsecure = *relayInsecureFlag
	cfg.LogFormat = *logFormatFlag
	cfg.LogLevel = *logLevelFlag

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "command", name)
	return &Command{Name: name, Config: config, JSON: *jsonFlag, Interval: *intervalFlag}, false, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
