package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/gobot/internal/config"
	"github.com/gobot/internal/database"
	"github.com/gobot/internal/license"
	"github.com/gobot/internal/logging"
)

// ResetUsageCommand runs one monthly usage-reset sweep and exits. The API
// server runs the same sweep on a schedule; this command covers manual runs
// and external cron setups.
func ResetUsageCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-usage",
		Usage: "Reset usage counters for keys whose monthly window has lapsed",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			logging.Setup(cfg.Environment)

			if !cfg.HasDatabase() {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			db, err := database.NewDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			store := license.NewStorage(db)
			n, err := store.ResetDueUsage(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Reset usage on %d license key(s).\n", n)
			return nil
		},
	}
}
