// Package cmd holds the sharebox command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/storage"
	"github.com/cppla/sharebox/utils"
)

// Root returns the sharebox command. Without a subcommand it serves.
func Root() *cli.Command {
	return &cli.Command{
		Name:           "sharebox",
		Usage:          "multi-tenant file hosting with share links",
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("SHAREBOX_CONFIG"),
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/config.json",
				Usage:   "path to the JSON configuration file",
			},
		},
		Commands: []*cli.Command{
			ServeCli(),
			MigrateCli(),
			PromoteCli(),
		},
	}
}

// loadConfig reads the configuration named by --config, installs it and
// starts the logger.
func loadConfig(c *cli.Command) (config.AppConfig, error) {
	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return config.AppConfig{}, err
	}
	config.Set(cfg)
	utils.InitLogger(cfg)
	return cfg, nil
}

// openStore builds the configured blob store.
func openStore(ctx context.Context, cfg config.AppConfig, db *gorm.DB) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageDatabase, "":
		return storage.NewDBStore(db), nil
	case config.StorageS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
