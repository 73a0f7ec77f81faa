// Package cli implements the complaints command line: the HTTP server
// (serve, the default) and schema/table provisioning (migrate).
package cli

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-complaint-backend/internal/config"
	"github.com/tbourn/go-complaint-backend/internal/sysutil"
)

// App carries state shared by all subcommands.
type App struct {
	Version string
	EnvFile string

	cfg config.Config

	// listen opens the server socket; tests swap it for a pre-bound listener.
	listen func(network, addr string) (net.Listener, error)
}

// NewRootCmd builds the command tree. version is reported in logs and on
// the OpenTelemetry resource.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&App{
		Version: sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev"),
		listen:  net.Listen,
	})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "complaints",
		Short:        "Complaint tracker backend",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Run the API (same as: complaints serve)
  complaints

  # Create tables (sql) or the table keyspace (table) and exit
  STORE_BACKEND=table TABLE_DRIVER=redis complaints migrate
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd, app)
		},
	}

	cmd.PersistentFlags().StringVar(&app.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.loadConfig()
	}

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newMigrateCmd(app))
	return cmd
}

// loadConfig reads the optional dotenv file, then the environment, and sets
// up process logging.
func (a *App) loadConfig() error {
	if a.EnvFile != "" {
		if err := godotenv.Load(a.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, nil)
	log.Debug().Str("version", a.Version).Str("store", cfg.Store.Backend).Msg("config loaded")
	return nil
}
