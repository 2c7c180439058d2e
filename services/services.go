package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/storage"
)

// Services bundles the application services built over one database and blob store.
type Services struct {
	Accounts *AccountService
	Files    *FileService
	Quota    *QuotaAccountant
}

// New wires every service from configuration.
func New(db *gorm.DB, store storage.Store, cfg config.AppConfig, log *zap.Logger) *Services {
	quota := NewQuotaAccountant(db, cfg.QuotaStrict)
	links := NewShareRegistry(db, log, cfg.ShareCodeLength, cfg.ShareMaxAttempts)
	return &Services{
		Accounts: NewAccountService(db, log, NewRolePolicy(cfg.InitialRoles), cfg.DefaultLimitBytes),
		Files:    NewFileService(db, store, quota, NewCatalog(db), links, log),
		Quota:    quota,
	}
}
