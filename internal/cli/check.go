package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/you/civicauth/internal/infrastructure/database"
	"github.com/you/civicauth/internal/infrastructure/repositories"
)

// NewCheckCommand creates the check command. It validates the config and
// verifies that Postgres and Redis are reachable.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var configOnly bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and test connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "✓ configuration valid")
			if configOnly {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			db, err := database.Open(cfg.DSN, cfg.TablePrefix)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			fmt.Fprintln(out, "✓ database connection successful")

			var users int64
			if err := db.WithContext(ctx).Model(&repositories.DBUser{}).Count(&users).Error; err != nil {
				fmt.Fprintf(out, "! users table not accessible (run migrate): %v\n", err)
			} else {
				fmt.Fprintf(out, "✓ users table accessible (current count: %d)\n", users)
			}

			rdb := database.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			defer rdb.Close()
			if err := rdb.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "✓ redis connection successful")
			return nil
		},
	}

	cmd.Flags().BoolVar(&configOnly, "config-only", false, "only validate the configuration")
	return cmd
}
