package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"isoquant/adapters/postgres/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the PostgreSQL run repository schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			m := migrations.NewMigrator(db)
			switch args[0] {
			case "up":
				return m.Up(cmd.Context())
			case "down":
				return m.Down(cmd.Context())
			case "status":
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				applied := 0
				out := cmd.OutOrStdout()
				for _, st := range statuses {
					state := "pending"
					if st.Applied {
						state = "applied"
						applied++
					}
					if st.Drifted {
						state += " (checksum changed)"
					}
					fmt.Fprintf(out, "  %s: %s\n", st.Version, state)
				}
				fmt.Fprintf(out, "\n%d/%d migrations applied\n", applied, len(statuses))
				return nil
			}
			return fmt.Errorf("unknown migrate command %q", args[0])
		},
	}
	return cmd
}
