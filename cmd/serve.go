package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/jobs"
	"github.com/cppla/sharebox/routes"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/utils"
)

// ServeCli runs the HTTP API and the background sweeper.
func ServeCli() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("APP_PORT"),
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "listen port, overrides the configuration",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if port := c.String("port"); port != "" {
				cfg.AppPort = port
				config.Set(cfg)
			}
			return serve(ctx, cfg)
		},
	}
}

const blacklistPruneEvery = 10 * time.Minute

func serve(ctx context.Context, cfg config.AppConfig) error {
	db := config.InitDatabase()
	store, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	log := utils.L()
	svc := services.New(db, store, cfg, log)

	scheduler := jobs.NewScheduler(log.Named("jobs"))
	sweep := jobs.SweepTask(svc.Files,
		time.Duration(cfg.PendingTTLMinutes)*time.Minute,
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		log.Named("sweep"))
	if err := scheduler.Register(sweep); err != nil {
		return err
	}
	prune := jobs.BlacklistPruneTask(utils.PruneTokenBlacklist, blacklistPruneEvery, log.Named("blacklist"))
	if err := scheduler.Register(prune); err != nil {
		return err
	}
	scheduler.Start()

	r := routes.SetupRouter(db, svc)

	utils.Sugar.Infof("Starting server on port %s (graceful), storage=%s", cfg.AppPort, cfg.StorageBackend)
	return utils.GraceServer(ctx, ":"+cfg.AppPort, r,
		scheduler.Stop,
		utils.CloseRedis,
		func() { closeDB(db) },
	)
}
