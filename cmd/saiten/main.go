package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/saiten/internal/config"
	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/mcp"
	"github.com/hpungsan/saiten/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "console": true, "import": true,
	"assignments": true, "list": true, "detail": true, "save": true,
	"autocheck": true, "status": true, "export": true,
	"delete": true, "purge": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
            _ _
  ___  __ _(_) |_ ___ _ __
 / __|/ _' | | __/ _ \ '_ \
 \__ \ (_| | | ||  __/ | | |
 |___/\__,_|_|\__\___|_| |_|

  Feedback review for programming assignments

  Usage: saiten <command> [options]
         saiten serve      web UI on http://127.0.0.1:5000
         saiten console    terminal review console
         saiten --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(os.Args) >= 2 && !isCLIMode() && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'saiten --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir, err := config.DefaultDataDir()
	if err != nil {
		return fmt.Errorf("could not determine data directory: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	database, err := db.Init(dataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	cfg, err := config.LoadWithCourse(dataDir, workDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db.ConfigurePool(database, cfg)

	serving := len(os.Args) >= 2 && os.Args[1] == "serve"
	logger := logging.New(logging.Options{
		Dir:    filepath.Join(dataDir, db.LogsDir),
		Level:  cfg.LogLevel,
		Stderr: serving,
	})
	defer logger.Close()

	backend, err := ops.NewBackend(database, cfg, logger.Logger)
	if err != nil {
		return err
	}

	if isCLIMode() {
		return newCLIApp(backend, logger.Logger).Run(os.Args)
	}

	// MCP server mode (default when stdin is piped)
	return mcp.Run(backend, Version, logger.Logger)
}
