package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/gobot/internal/ai"
	"github.com/gobot/internal/analytics"
	"github.com/gobot/internal/api"
	"github.com/gobot/internal/config"
	"github.com/gobot/internal/database"
	"github.com/gobot/internal/license"
	"github.com/gobot/internal/license/payment"
	"github.com/gobot/internal/logging"
	"github.com/gobot/internal/notify"
)

// APICommand returns the CLI command for starting the API server.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the GoBot API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			logging.Setup(cfg.Environment)
			if err := config.Validate(cfg); err != nil {
				return err
			}

			deps := api.Dependencies{}

			mailer := notify.NewMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom)
			deps.Notifier = mailer

			if cfg.HasLLM() {
				gen, err := ai.NewGenerator(cfg.AnthropicAPIKey, cfg.ClaudeModel)
				if err != nil {
					return err
				}
				deps.Generator = gen
			} else {
				log.Warn().Msg("ANTHROPIC_API_KEY not set, clarify and gen-code disabled")
			}

			if cfg.HasDatabase() {
				db, err := database.NewDB(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := database.Migrate(context.Background(), db); err != nil {
					return err
				}

				store := license.NewStorage(db)
				deps.Licenses = store
				deps.Validator = license.NewValidator(store)
				deps.Analytics = analytics.NewStorage(db)

				sched := license.NewScheduler(store,
					time.Duration(cfg.UsageResetIntervalHours)*time.Hour)
				sched.Start()
				defer sched.Stop()

				if cfg.EnablePayments {
					client := payment.NewClient(cfg.StripeSecretKey, map[string]string{
						"pro":  cfg.StripeProPriceID,
						"team": cfg.StripeTeamPriceID,
					})
					deps.Checkout = client

					webhook := payment.NewStripeWebhookHandler(
						store, client, mailer, cfg.StripeWebhookSecret)
					deps.Webhook = webhook.HandleWebhook
				}
			} else {
				log.Warn().Msg("DATABASE_URL not set, license and analytics endpoints disabled")
			}

			fmt.Printf("Starting GoBot API server on port %d...\n", cfg.Port)
			return api.NewServer(cfg, deps).Start()
		},
	}
}
