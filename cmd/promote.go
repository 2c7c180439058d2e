package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// PromoteCli makes an existing account an admin with unlimited storage.
func PromoteCli() *cli.Command {
	return &cli.Command{
		Name:  "promote",
		Usage: "grant admin role and unlimited storage to an account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "email of the account to promote",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := config.OpenDatabase(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeDB(db)

			accounts := services.NewAccountService(db, utils.L(), nil, cfg.DefaultLimitBytes)
			user, err := accounts.Promote(ctx, c.String("email"))
			if errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("no account with email %q", c.String("email"))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%s is now an admin with unlimited storage\n", user.Email)
			return nil
		},
	}
}
