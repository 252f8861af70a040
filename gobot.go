package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gobot/cmd"
)

const (
	version = "1.0.0"
)

func main() {
	app := &cli.App{
		Name:    "gobot",
		Usage:   "AI-powered Jira ticket clarification and code generation backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.MigrateCommand(),
			cmd.ResetUsageCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
