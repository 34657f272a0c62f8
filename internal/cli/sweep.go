package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/you/civicauth/internal/app"
	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/infrastructure/database"
	"github.com/you/civicauth/internal/infrastructure/repositories"
)

// NewSweepCommand creates the sweep command for cron driven deployments.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove OTP sessions past their retention window once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			rdb := database.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := rdb.Ping(ctx); err != nil {
				return err
			}

			store := repositories.NewRedisOTPStore(rdb.Client, auth.NewCodeHasher(cfg.OTPHashCost), repositories.OTPConfig{
				Length:      cfg.OTPLength,
				TTL:         cfg.OTPTTL,
				Cooldown:    cfg.OTPCooldown,
				MaxAttempts: cfg.OTPMaxAttempts,
				Retention:   cfg.OTPRetention,
			})
			n, err := app.NewSweeper(store, nil, cfg.SweepInterval, nil, log).SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d otp sessions\n", n)
			return nil
		},
	}
}
