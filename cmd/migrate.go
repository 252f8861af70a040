package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/gobot/internal/config"
	"github.com/gobot/internal/database"
	"github.com/gobot/internal/logging"
)

// MigrateCommand applies the database schema.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
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

			if err := database.Migrate(context.Background(), db); err != nil {
				return err
			}
			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}
