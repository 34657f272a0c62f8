package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/infrastructure/database"
	"github.com/you/civicauth/internal/services"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and casbin_rule tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DSN, cfg.TablePrefix)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")

			if !seed {
				return nil
			}
			cas, err := auth.NewCasbinService(db, cfg.CasbinModelPath)
			if err != nil {
				return err
			}
			seeded, err := services.NewPolicyService(cas.E).SeedDefaults()
			if err != nil {
				return err
			}
			if seeded {
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d default policies\n", len(services.DefaultPolicies))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "policies already present, nothing seeded")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", true, "seed the default route policies into an empty table")
	return cmd
}
