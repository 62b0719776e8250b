// Package cli implements the dlsync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v3"

	"github.com/isometry/dlsync/internal/config"
)

const defaultConfigPath = "/etc/dlsync/dlsync.yaml"

// globals holds the flags shared by every command and the process logger.
type globals struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool

	log hclog.Logger
}

func (g *globals) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the configuration file",
			Value:       defaultConfigPath,
			Sources:     cli.EnvVars("DLSYNC_CONFIG"),
			Destination: &g.configPath,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Usage:       "Dotenv file loaded before the configuration (e.g. for DLSYNC_BIND_PASSWORD)",
			Sources:     cli.EnvVars("DLSYNC_ENV_FILE"),
			Destination: &g.envFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (trace, debug, info, warn, error); overrides log.level",
			Sources:     cli.EnvVars("DLSYNC_LOG_LEVEL"),
			Destination: &g.logLevel,
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Write logs as JSON",
			Sources:     cli.EnvVars("DLSYNC_LOG_JSON"),
			Destination: &g.logJSON,
		},
	}
}

func (g *globals) setupLogger(w io.Writer) error {
	level := hclog.Info
	if g.logLevel != "" {
		level = hclog.LevelFromString(g.logLevel)
		if level == hclog.NoLevel {
			return fmt.Errorf("unknown log level %q", g.logLevel)
		}
	}

	g.log = hclog.New(&hclog.LoggerOptions{
		Name:       "dlsync",
		Level:      level,
		Output:     w,
		JSONFormat: g.logJSON,
	})
	return nil
}

// loadConfig loads the configuration file and applies its log level unless
// one was given on the command line.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	if g.logLevel == "" {
		g.log.SetLevel(hclog.LevelFromString(cfg.Log.Level))
	}
	return cfg, nil
}

// Run executes the command line in args.
func Run(ctx context.Context, args []string, version string) error {
	g := &globals{}

	app := &cli.Command{
		Name:    "dlsync",
		Usage:   "Resolve mail recipients and distribution lists from Active Directory",
		Version: version,
		Flags:   g.flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := g.setupLogger(os.Stderr); err != nil {
				return ctx, err
			}
			g.log.Debug("Starting dlsync", "version", version, "config", g.configPath)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdServe(g),
			cmdResolve(g),
			cmdProbe(g),
			cmdValidate(g),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if g.log != nil {
			g.log.Error("Command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "dlsync:", err)
		}
		return err
	}
	return nil
}

func cmdValidate(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the configuration file and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "configuration ok: %s (base %s, refresh every %s)\n",
				cfg.Settings.URL, cfg.Settings.BaseDN, cfg.RefreshInterval())
			return nil
		},
	}
}
