package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cppla/sharebox/config"
)

// MigrateCli applies pending schema migrations and exits.
func MigrateCli() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := config.OpenDatabase(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeDB(db)
			fmt.Fprintf(c.Root().Writer, "migrations applied (%s)\n", cfg.DBDriver)
			return nil
		},
	}
}
