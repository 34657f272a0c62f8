package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/you/civicauth/internal/config"
	"github.com/you/civicauth/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the civicauth CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "civicauth",
		Short:         "Passwordless WhatsApp OTP authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"path to the YAML config (default $CIVICAUTH_CONFIG or "+config.DefaultPath+")")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// loadConfig resolves the config file from the flag, the environment or
// the default path, after loading .env.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	path := o.ConfigPath
	if path == "" {
		path = os.Getenv("CIVICAUTH_CONFIG")
	}
	if path == "" {
		path = config.DefaultPath
	}
	return config.LoadFrom(path)
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logger.New(cfg.LogLevel, cfg.Env).With(zap.String("service", "civicauth"))
}
