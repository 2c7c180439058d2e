package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cppla/sharebox/models"
)

// RoleRule assigns a role at registration to an exact email or to every
// address under a domain.
type RoleRule struct {
	Email  string
	Domain string
	Role   string
}

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via the config file or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	AuthCookieName     string
	RateLimitPerMinute int
	AllowedOrigins     []string
	SharePathPrefix    string
	MaxUploadBytes     int64
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver       string
	DatabaseURI    string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxOpenConns int
	DBMaxIdleConns int
	// Redis for token revocation and registration throttling
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Registration security
	RegisterMaxPerIPPerDay     int
	RegisterAttemptCooldownSec int
	// Blob storage
	StorageBackend       string
	S3Bucket             string
	S3Region             string
	S3Endpoint           string
	S3AccessKey          string
	S3SecretKey          string
	S3PathStyle          bool
	PendingTTLMinutes    int
	SweepIntervalMinutes int
	// Quota
	DefaultLimitBytes int64
	QuotaStrict       bool
	// Share links
	ShareCodeLength  int
	ShareMaxAttempts int
	// Initial role assignment
	InitialRoles []RoleRule
}

const (
	StorageDatabase = "database"
	StorageS3       = "s3"
)

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	c, err := LoadFrom(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cfg = c
	loaded = true
	return cfg
}

// LoadFrom builds a configuration with precedence: JSON file -> defaults -> environment overrides.
func LoadFrom(path string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		return AppConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := applyEnvOverrides(&c); err != nil {
		return AppConfig{}, err
	}
	if err := c.Validate(); err != nil {
		return AppConfig{}, err
	}
	return c, nil
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set installs c as the cached configuration.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

// Validate rejects configurations the service cannot run with.
func (c AppConfig) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	switch c.StorageBackend {
	case StorageDatabase:
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("storage backend s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}
	if c.DefaultLimitBytes < 0 {
		return errors.New("quota default limit must not be negative")
	}
	if c.ShareCodeLength < 6 {
		return errors.New("share code length must be at least 6")
	}
	for _, r := range c.InitialRoles {
		if !models.Role(r.Role).Valid() {
			return fmt.Errorf("initial role rule has unknown role %q", r.Role)
		}
		if r.Email == "" && r.Domain == "" {
			return errors.New("initial role rule needs an email or a domain")
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped JSON sections into out if the file is present.
// Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt64 := func(m map[string]any, key string) int64 {
		if f, ok := m[key].(float64); ok {
			return int64(f)
		}
		return 0
	}
	getInt := func(m map[string]any, key string) int {
		return int(getInt64(m, key))
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.TokenTTLHours = getInt(app, "TokenTTLHours")
		out.AuthCookieName = getString(app, "AuthCookieName")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.SharePathPrefix = getString(app, "SharePathPrefix")
		out.MaxUploadBytes = getInt64(app, "MaxUploadBytes")
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.DBMaxOpenConns = getInt(dbs, "MaxOpenConns")
		out.DBMaxIdleConns = getInt(dbs, "MaxIdleConns")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisEnabled = getBool(rds, "Enabled")
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if rg, ok := raw["register"].(map[string]any); ok {
		out.RegisterMaxPerIPPerDay = getInt(rg, "MaxPerIPPerDay")
		out.RegisterAttemptCooldownSec = getInt(rg, "AttemptCooldownSec")
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.StorageBackend = getString(st, "Backend")
		out.S3Bucket = getString(st, "S3Bucket")
		out.S3Region = getString(st, "S3Region")
		out.S3Endpoint = getString(st, "S3Endpoint")
		out.S3AccessKey = getString(st, "S3AccessKey")
		out.S3SecretKey = getString(st, "S3SecretKey")
		out.S3PathStyle = getBool(st, "S3PathStyle")
		out.PendingTTLMinutes = getInt(st, "PendingTTLMinutes")
		out.SweepIntervalMinutes = getInt(st, "SweepIntervalMinutes")
	}

	if q, ok := raw["quota"].(map[string]any); ok {
		out.DefaultLimitBytes = getInt64(q, "DefaultLimitBytes")
		out.QuotaStrict = getBool(q, "Strict")
	}

	if sh, ok := raw["share"].(map[string]any); ok {
		out.ShareCodeLength = getInt(sh, "CodeLength")
		out.ShareMaxAttempts = getInt(sh, "MaxAttempts")
	}

	if rl, ok := raw["roles"].(map[string]any); ok {
		if arr, ok := rl["InitialRoles"].([]any); ok {
			for _, it := range arr {
				m, ok := it.(map[string]any)
				if !ok {
					continue
				}
				out.InitialRoles = append(out.InitialRoles, RoleRule{
					Email:  getString(m, "Email"),
					Domain: getString(m, "Domain"),
					Role:   getString(m, "Role"),
				})
			}
		}
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 24
	}
	if c.AuthCookieName == "" {
		c.AuthCookieName = "auth"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.SharePathPrefix == "" {
		c.SharePathPrefix = "/share/"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 4 << 30
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "sharebox"
	}
	if c.DBMaxOpenConns == 0 {
		c.DBMaxOpenConns = 20
	}
	if c.DBMaxIdleConns == 0 {
		c.DBMaxIdleConns = 5
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.StorageBackend == "" {
		c.StorageBackend = StorageDatabase
	}
	if c.S3Region == "" {
		c.S3Region = "us-east-1"
	}
	if c.PendingTTLMinutes == 0 {
		c.PendingTTLMinutes = 30
	}
	if c.SweepIntervalMinutes == 0 {
		c.SweepIntervalMinutes = 5
	}
	if c.DefaultLimitBytes == 0 {
		c.DefaultLimitBytes = 100 * 1024 * 1024
	}
	if c.ShareCodeLength == 0 {
		c.ShareCodeLength = 8
	}
	if c.ShareMaxAttempts == 0 {
		c.ShareMaxAttempts = 5
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	var errs []error
	parseInt := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = i
		}
	}
	parseInt64 := func(key string, dst *int64) {
		if v := getEnv(key, ""); v != "" {
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = i
		}
	}
	parseBool := func(key string, dst *bool) {
		if v := getEnv(key, ""); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	str := func(key string, dst *string) {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}

	str("APP_PORT", &c.AppPort)
	str("JWT_SECRET", &c.JWTSecret)
	parseInt("TOKEN_TTL_HOURS", &c.TokenTTLHours)
	str("AUTH_COOKIE_NAME", &c.AuthCookieName)
	parseInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	str("SHARE_PATH_PREFIX", &c.SharePathPrefix)
	parseInt64("MAX_UPLOAD_BYTES", &c.MaxUploadBytes)

	str("GIN_MODE", &c.GinMode)
	str("GIN_LOG_PATH", &c.GinPath)

	str("DB_DRIVER", &c.DBDriver)
	str("DATABASE_URI", &c.DatabaseURI)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	parseInt("DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns)
	parseInt("DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns)

	parseBool("REDIS_ENABLED", &c.RedisEnabled)
	str("REDIS_HOST", &c.RedisHost)
	parseInt("REDIS_PORT", &c.RedisPort)
	parseInt("REDIS_DB", &c.RedisDB)
	str("REDIS_PASSWORD", &c.RedisPassword)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	parseInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	parseInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	parseInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	parseBool("LOG_COMPRESS", &c.LogCompress)

	parseInt("REGISTER_MAX_PER_IP_PER_DAY", &c.RegisterMaxPerIPPerDay)
	parseInt("REGISTER_ATTEMPT_COOLDOWN_SEC", &c.RegisterAttemptCooldownSec)

	str("STORAGE_BACKEND", &c.StorageBackend)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_ENDPOINT", &c.S3Endpoint)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	parseBool("S3_PATH_STYLE", &c.S3PathStyle)
	parseInt("PENDING_TTL_MINUTES", &c.PendingTTLMinutes)
	parseInt("SWEEP_INTERVAL_MINUTES", &c.SweepIntervalMinutes)

	parseInt64("QUOTA_DEFAULT_LIMIT_BYTES", &c.DefaultLimitBytes)
	parseBool("QUOTA_STRICT", &c.QuotaStrict)

	parseInt("SHARE_CODE_LENGTH", &c.ShareCodeLength)
	parseInt("SHARE_MAX_ATTEMPTS", &c.ShareMaxAttempts)

	for _, email := range readListEnv("INITIAL_ADMIN_EMAILS", nil) {
		c.InitialRoles = append(c.InitialRoles, RoleRule{Email: email, Role: string(models.RoleAdmin)})
	}
	for _, email := range readListEnv("INITIAL_UNLIMITED_EMAILS", nil) {
		c.InitialRoles = append(c.InitialRoles, RoleRule{Email: email, Role: string(models.RoleUnlimited)})
	}

	return errors.Join(errs...)
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
