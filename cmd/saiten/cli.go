package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/saiten/internal/client"
	"github.com/hpungsan/saiten/internal/config"
	"github.com/hpungsan/saiten/internal/console"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/mcp"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/web"
)

// maxFeedbackBytes caps a comment piped to save.
const maxFeedbackBytes = 1 << 20

func assignmentFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "assignment", Aliases: []string{"a"}, Required: true, Usage: "Assignment ID"}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(b *ops.Backend, logger *slog.Logger) *cli.App {
	logger = logging.OrDiscard(logger)
	app := &cli.App{
		Name:    "saiten",
		Usage:   "Feedback review for programming assignments",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(b, logger),
			consoleCmd(b, logger),
			importCmd(b),
			assignmentsCmd(b),
			listCmd(b),
			detailCmd(b),
			saveCmd(b),
			autocheckCmd(b),
			statusCmd(b),
			exportCmd(b),
			deleteCmd(b),
			purgeCmd(b),
			mcpCmd(b, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func serveCmd(b *ops.Backend, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web review UI and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := b.Config.Bind, b.Config.Port
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}
			srv, err := web.NewServer(b, logger, Version, bind, port)
			if err != nil {
				return outputError(err)
			}
			return web.Run(srv, logger)
		},
	}
}

func consoleCmd(b *ops.Backend, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Review an assignment in the terminal",
		Flags: []cli.Flag{
			assignmentFlag(),
			&cli.StringFlag{
				Name:    "url",
				EnvVars: []string{config.EnvURL},
				Usage:   "Review against a running server instead of the local data directory",
			},
		},
		Action: func(c *cli.Context) error {
			aid := c.String("assignment")
			opts := console.Options{
				AssignmentID:     aid,
				Debounce:         b.Config.Debounce(),
				CheckConcurrency: b.Config.CheckConcurrency,
				Logger:           logger,
			}

			var status *ops.AutoCheckStatusOutput
			if url := c.String("url"); url != "" {
				cl, err := client.New(url, nil)
				if err != nil {
					return outputError(err)
				}
				if status, err = cl.AutoCheckStatus(c.Context, aid); err != nil {
					return outputError(err)
				}
				opts.Store = cl.Assignment(aid)
				logger.Info("console started", "assignment_id", aid, "url", url)
			} else {
				var err error
				status, err = ops.AutoCheckStatus(c.Context, b, ops.AutoCheckStatusInput{AssignmentID: aid})
				if err != nil {
					return outputError(err)
				}
				opts.Store = b.Assignment(aid)
				logger.Info("console started", "assignment_id", aid)
			}
			opts.Title = status.Assignment

			if err := console.Run(c.Context, opts); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

func importCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Create an assignment from a roster CSV and a ZIP of submissions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Assignment name"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Required: true, Usage: "Source file base name, e.g. kadai01"},
			&cli.StringFlag{Name: "csv", Required: true, Usage: "Roster CSV path"},
			&cli.StringFlag{Name: "zip", Required: true, Usage: "Submissions ZIP path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportFiles(c.Context, b, ops.ImportFilesInput{
				Name:       c.String("name"),
				SourceBase: c.String("source"),
				RosterPath: c.String("csv"),
				ZipPath:    c.String("zip"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func assignmentsCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "assignments",
		Usage: "List imported assignments, newest first",
		Action: func(c *cli.Context) error {
			output, err := ops.ListAssignments(c.Context, b)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func listCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the submitted students of an assignment",
		Flags: []cli.Flag{
			assignmentFlag(),
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Value: "all", Usage: "all|reviewed|needs-review|pending|has-feedback"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, b, ops.ListInput{
				AssignmentID: c.String("assignment"),
				Filter:       c.String("filter"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func detailCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:      "detail",
		Usage:     "Show one student's submission and feedback",
		ArgsUsage: "<student id>",
		Flags:     []cli.Flag{assignmentFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Detail(c.Context, b, ops.DetailInput{
				AssignmentID: c.String("assignment"),
				StudentID:    c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func saveCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a feedback comment (--text, or piped via stdin)",
		ArgsUsage: "<student id>",
		Flags: []cli.Flag{
			assignmentFlag(),
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Feedback comment; may be empty"},
		},
		Action: func(c *cli.Context) error {
			var text string
			switch {
			case c.IsSet("text"):
				text = c.String("text")
			case stdinHasData():
				var err error
				if text, err = readStdin(maxFeedbackBytes); err != nil {
					return outputError(err)
				}
			default:
				return outputError(errors.NewInvalidRequest("feedback must be given with --text or piped via stdin"))
			}

			output, err := ops.SaveFeedback(c.Context, b, ops.SaveFeedbackInput{
				AssignmentID: c.String("assignment"),
				StudentID:    c.Args().First(),
				Feedback:     &text,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func autocheckCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:      "autocheck",
		Usage:     "Auto-check one student, or every unreviewed student when no id is given",
		ArgsUsage: "[student id]",
		Flags: []cli.Flag{
			assignmentFlag(),
			&cli.BoolFlag{Name: "force", Usage: "Re-run a batch on an already checked assignment"},
		},
		Action: func(c *cli.Context) error {
			aid := c.String("assignment")
			if sid := c.Args().First(); sid != "" {
				output, err := ops.AutoCheck(c.Context, b, ops.AutoCheckInput{AssignmentID: aid, StudentID: sid})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			stats, err := ops.AutoCheckAll(c.Context, b, ops.AutoCheckAllInput{AssignmentID: aid, Force: c.Bool("force")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(stats)
		},
	}
}

func statusCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report whether an assignment has been batch auto-checked",
		Flags: []cli.Flag{assignmentFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.AutoCheckStatus(c.Context, b, ops.AutoCheckStatusInput{AssignmentID: c.String("assignment")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func exportCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the feedback CSV of an assignment",
		Flags: []cli.Flag{
			assignmentFlag(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <data dir>/exports/feedback_<name>.csv)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, b, ops.ExportInput{
				AssignmentID: c.String("assignment"),
				Path:         c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func deleteCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an assignment and its extracted submissions",
		Flags: []cli.Flag{assignmentFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, b, ops.DeleteInput{AssignmentID: c.String("assignment")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func purgeCmd(b *ops.Backend) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Remove submission directories left behind by interrupted imports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge directories created more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, b, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func mcpCmd(b *ops.Backend, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the review tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(b, Version, logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin. Trailing newlines are
// dropped; other whitespace is part of the comment.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewPayloadTooLarge(limit, int64(len(data)))
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
