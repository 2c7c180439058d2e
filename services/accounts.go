package services

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/models"
	"github.com/cppla/sharebox/utils"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

// AccountService registers, authenticates and promotes users.
type AccountService struct {
	db           *gorm.DB
	log          *zap.Logger
	roles        *RolePolicy
	defaultLimit int64
}

// NewAccountService returns an AccountService. defaultLimit is the ceiling
// given to plain users at registration.
func NewAccountService(db *gorm.DB, log *zap.Logger, roles *RolePolicy, defaultLimit int64) *AccountService {
	return &AccountService{db: db, log: log, roles: roles, defaultLimit: defaultLimit}
}

func (s *AccountService) limitFor(role models.Role) int64 {
	if role.BypassesQuota() {
		return models.UnlimitedStorage
	}
	return s.defaultLimit
}

// Register creates an account. The initial role is decided once, here.
func (s *AccountService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, invalid("invalid email format")
	}
	if len(password) < minPasswordLength {
		return nil, invalid("password must be at least 8 characters")
	}
	if len(password) > utils.MaxPasswordBytes {
		return nil, invalid("password must be at most 72 bytes")
	}

	db := s.db.WithContext(ctx)
	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, persistence("check email", err)
	}
	if existing > 0 {
		return nil, ErrConflict
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	role := s.roles.InitialRole(email)
	user := &models.User{
		Email:             email,
		PasswordHash:      hash,
		Role:              role,
		StorageLimitBytes: s.limitFor(role),
	}
	err = db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, persistence("insert user", err)
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password are indistinguishable.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, persistence("get user", err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrUnauthenticated
	}
	return &user, nil
}

// Get loads a user by id.
func (s *AccountService) Get(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get user", err)
	}
	return &user, nil
}

// Promote makes the account with email an admin with unlimited storage.
func (s *AccountService) Promote(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalid("email is required")
	}
	db := s.db.WithContext(ctx)
	var user models.User
	err := db.Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get user", err)
	}

	user.Role = models.RoleAdmin
	user.StorageLimitBytes = models.UnlimitedStorage
	if err := db.Model(&user).Select("role", "storage_limit_bytes", "updated_at").Updates(&user).Error; err != nil {
		return nil, persistence("promote user", err)
	}
	s.log.Info("user promoted to admin", zap.Uint("user_id", user.ID))
	return &user, nil
}
