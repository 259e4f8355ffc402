// Package cli implements the authctl command line.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const AppName = "authctl"

// Version is replaced at link time.
var Version = "dev"

type app struct {
	configFile string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCommand builds the authctl command tree. Configuration is loaded
// before every subcommand runs.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   AppName,
		Short: "Authenticate, hash and mint tokens against pluggable realms",
		Long: `authctl exercises the auth core from the command line.

Settings come from an optional YAML file, a .env file and AUTHCTL_
environment variables, for example AUTHCTL_TOKEN_SECRET.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file, skipped when missing")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "overrides log_level (trace, debug, info, warn, error)")

	root.AddCommand(
		newHashCommand(a),
		newTokenCommand(a),
		newLoginCommand(a),
		newOAuth2Command(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs authctl with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	options := []config.LoaderOption{config.WithEnvFile(a.envFile)}
	if a.configFile != "" {
		options = append(options, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(options...)
	if err != nil {
		return err
	}
	a.cfg = cfg

	levelName := cfg.LogLevel
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Str("app", AppName).
		Logger()
	return nil
}
