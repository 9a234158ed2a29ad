package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/roamorg/internal"
	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/models"
	pkgconfig "github.com/starford/roamorg/pkg/config"
)

// version is set at build time.
var version = "dev"

// errCommandFailed marks a command whose error status was already printed.
var errCommandFailed = errors.New("command failed")

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

// runCommand wires the application, runs fn and prints its status.
func runCommand(out io.Writer, fn func(context.Context, *commands.Runner, *cli.Command) (commands.Status, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}

		var inputErr error
		st, err := internal.Exec(ctx, func(ctx context.Context, r *commands.Runner) commands.Status {
			var st commands.Status
			st, inputErr = fn(ctx, r, cmd)
			return st
		}, opts...)
		if err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		if inputErr != nil {
			return inputErr
		}

		fmt.Fprintln(out, st.String())
		if st.Failed() {
			return errCommandFailed
		}
		return nil
	}
}

// simple adapts a Runner method without arguments.
func simple(fn func(*commands.Runner, context.Context) commands.Status) func(context.Context, *commands.Runner, *cli.Command) (commands.Status, error) {
	return func(ctx context.Context, r *commands.Runner, _ *cli.Command) (commands.Status, error) {
		return fn(r, ctx), nil
	}
}

func atPosition(fn func(*commands.Runner, context.Context, models.Position) commands.Status) func(context.Context, *commands.Runner, *cli.Command) (commands.Status, error) {
	return func(ctx context.Context, r *commands.Runner, cmd *cli.Command) (commands.Status, error) {
		pos, err := models.ParsePosition(cmd.String("at"))
		if err != nil {
			return commands.Status{}, err
		}
		return fn(r, ctx, pos), nil
	}
}

func atFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "at",
		Usage:    "Entry position as file:line (file relative to the roam directory or absolute)",
		Required: true,
	}
}

func anyDirFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "any-dir",
		Usage: "Enable even when the working directory is outside the roam directory",
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "roamorg",
		Usage:   "Organize an org-roam knowledge base: relocate and delete entries, maintain maps of content",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Check every setting and report all failures",
				Action: runCommand(out, simple((*commands.Runner).Validate)),
			},
			{
				Name:   "mkdirs",
				Usage:  "Create the configured directories",
				Action: runCommand(out, simple((*commands.Runner).MakeDirs)),
			},
			{
				Name:   "top-index",
				Usage:  "Print the top index file, creating it when missing",
				Action: runCommand(out, simple((*commands.Runner).TopIndex)),
			},
			{
				Name:   "relocate",
				Usage:  "Relocate the node linked from the headline at a position",
				Flags:  []cli.Flag{atFlag()},
				Action: runCommand(out, atPosition((*commands.Runner).Relocate)),
			},
			{
				Name:   "delete",
				Usage:  "Delete the node linked from the headline at a position and the entry",
				Flags:  []cli.Flag{atFlag()},
				Action: runCommand(out, atPosition((*commands.Runner).Delete)),
			},
			{
				Name:   "update-mocs",
				Usage:  "Refresh MOC node counters and backlinks",
				Action: runCommand(out, simple((*commands.Runner).UpdateMOCs)),
			},
			{
				Name:   "ref-backlinks",
				Usage:  "Complete the backlinks of literature notes",
				Action: runCommand(out, simple((*commands.Runner).RefBacklinks)),
			},
			{
				Name:  "mode",
				Usage: "Show or change the roamorg mode",
				Commands: []*cli.Command{
					{
						Name:  "toggle",
						Usage: "Flip the mode",
						Flags: []cli.Flag{anyDirFlag()},
						Action: runCommand(out, func(ctx context.Context, r *commands.Runner, cmd *cli.Command) (commands.Status, error) {
							return r.ModeToggle(ctx, cmd.Bool("any-dir")), nil
						}),
					},
					{
						Name:  "enable",
						Usage: "Enable the mode after validating the configuration",
						Flags: []cli.Flag{anyDirFlag()},
						Action: runCommand(out, func(ctx context.Context, r *commands.Runner, cmd *cli.Command) (commands.Status, error) {
							return r.ModeEnable(ctx, cmd.Bool("any-dir")), nil
						}),
					},
					{
						Name:   "disable",
						Usage:  "Disable the mode",
						Action: runCommand(out, simple((*commands.Runner).ModeDisable)),
					},
					{
						Name:   "status",
						Usage:  "Print the current mode",
						Action: runCommand(out, simple((*commands.Runner).ModeStatus)),
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Bring the node index up to date",
				Action: runCommand(out, simple((*commands.Runner).Sync)),
			},
			{
				Name:      "find",
				Usage:     "Look a node up by id",
				ArgsUsage: "<id>",
				Action: runCommand(out, func(ctx context.Context, r *commands.Runner, cmd *cli.Command) (commands.Status, error) {
					id := cmd.Args().First()
					if id == "" {
						return commands.Status{}, errors.New("find: node id is required")
					}
					return r.Find(ctx, id), nil
				}),
			},
			{
				Name:      "search",
				Usage:     "Search node titles and tags",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "limit", Value: "20", Usage: "Maximum number of results"},
				},
				Action: runCommand(out, func(ctx context.Context, r *commands.Runner, cmd *cli.Command) (commands.Status, error) {
					q := cmd.Args().First()
					if q == "" {
						return commands.Status{}, errors.New("search: query is required")
					}
					limit, err := strconv.Atoi(cmd.String("limit"))
					if err != nil {
						return commands.Status{}, fmt.Errorf("search: invalid limit: %w", err)
					}
					return r.Search(ctx, q, limit), nil
				}),
			},
			{
				Name:  "serve",
				Usage: "Serve the REST API and event stream",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					if err := internal.Run(ctx, opts...); err != nil {
						return fmt.Errorf("app run error: %w", err)
					}
					return nil
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve the commands as MCP tools on stdin/stdout",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.ServeMCP(ctx, opts...)
				},
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errCommandFailed) {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}
