package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7433"
	DefaultLogLevel     = "info"
	DefaultDataDirName  = ".clubsite"
	DefaultDocumentName = "newsletter.json"
	DefaultSQLiteName   = "newsletter.db"
	DefaultBlobDirName  = "blobs"
	DefaultUsersName    = "users.yaml"
	configFileName      = ".clubsite.toml"

	DefaultStorageBackend  = "file"
	DefaultIdentityBackend = "clerk"
	DefaultSignInURL       = "/sign-in"
	DefaultSessionCookie   = "__session"

	DefaultAttachmentMaxUploadBytes int64 = 25 * 1024 * 1024
	DefaultRateLimitPerMinute             = 30
	DefaultRateLimitBurst                 = 10
	DefaultLockTTLSeconds                 = 30

	configDirEnvKey          = "CLUBSITE_CONFIG_DIR"
	trustProjectConfigEnvKey = "CLUBSITE_TRUST_PROJECT_CONFIG"
)

// StorageConfig selects where the newsletter document lives.
type StorageConfig struct {
	Backend      string `toml:"backend"`
	DocumentPath string `toml:"document_path"`
	SQLitePath   string `toml:"sqlite_path"`
	PostgresDSN  string `toml:"postgres_dsn"`
}

// IdentityConfig points at the member directory.
type IdentityConfig struct {
	Backend    string `toml:"backend"`
	BaseURL    string `toml:"base_url"`
	SecretKey  string `toml:"secret_key"`
	StaticFile string `toml:"static_file"`
	SignInURL  string `toml:"sign_in_url"`
}

// SessionConfig controls how request principals are established.
type SessionConfig struct {
	Secret          string `toml:"secret"`
	PublicKeyFile   string `toml:"public_key_file"`
	Issuer          string `toml:"issuer"`
	CookieName      string `toml:"cookie_name"`
	TrustUserHeader bool   `toml:"trust_user_header"`
}

// LockConfig enables the Redis cross-process document lock.
type LockConfig struct {
	RedisAddr  string `toml:"redis_addr"`
	TTLSeconds int    `toml:"ttl_seconds"`
	KeyPrefix  string `toml:"key_prefix"`
}

// AttachmentConfig defines runtime configuration for attachment handling.
type AttachmentConfig struct {
	MaxUploadBytes    int64    `toml:"max_upload_bytes"`
	Persist           bool     `toml:"persist"`
	BlobDir           string   `toml:"blob_dir"`
	AllowedMediaTypes []string `toml:"allowed_media_types"`
}

// RateLimitConfig bounds post submissions per client address.
type RateLimitConfig struct {
	PerMinute int `toml:"per_minute"`
	Burst     int `toml:"burst"`
}

// Config defines runtime configuration for clubsite.
type Config struct {
	APIURL                   string           `toml:"api_url"`
	LogLevel                 string           `toml:"log_level"`
	DataDir                  string           `toml:"data_dir"`
	Storage                  StorageConfig    `toml:"storage"`
	Identity                 IdentityConfig   `toml:"identity"`
	Session                  SessionConfig    `toml:"session"`
	Lock                     LockConfig       `toml:"lock"`
	Attachments              AttachmentConfig `toml:"attachments"`
	RateLimit                RateLimitConfig  `toml:"rate_limit"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
		},
		Identity: IdentityConfig{
			Backend:   DefaultIdentityBackend,
			SignInURL: DefaultSignInURL,
		},
		Session: SessionConfig{
			CookieName: DefaultSessionCookie,
		},
		Lock: LockConfig{
			TTLSeconds: DefaultLockTTLSeconds,
		},
		Attachments: AttachmentConfig{
			MaxUploadBytes: DefaultAttachmentMaxUploadBytes,
			Persist:        true,
		},
		RateLimit: RateLimitConfig{
			PerMinute: DefaultRateLimitPerMinute,
			Burst:     DefaultRateLimitBurst,
		},
	}
}

// LockTTL returns the Redis lock expiry.
func (c *Config) LockTTL() time.Duration {
	if c.Lock.TTLSeconds <= 0 {
		return DefaultLockTTLSeconds * time.Second
	}
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"log_level",
	"data_dir",
	"storage.backend",
	"storage.document_path",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"identity.backend",
	"identity.base_url",
	"identity.secret_key",
	"identity.static_file",
	"identity.sign_in_url",
	"session.secret",
	"session.public_key_file",
	"session.issuer",
	"session.cookie_name",
	"session.trust_user_header",
	"lock.redis_addr",
	"lock.ttl_seconds",
	"lock.key_prefix",
	"attachments.max_upload_bytes",
	"attachments.persist",
	"attachments.blob_dir",
	"attachments.allowed_media_types",
	"rate_limit.per_minute",
	"rate_limit.burst",
}

// secretKeys are masked by `config get` unless --reveal is given.
var secretKeys = map[string]struct{}{
	"identity.secret_key":  {},
	"session.secret":       {},
	"storage.postgres_dsn": {},
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[key]
	return ok
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "data_dir":
		return c.DataDir, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.document_path":
		return c.Storage.DocumentPath, nil
	case "storage.sqlite_path":
		return c.Storage.SQLitePath, nil
	case "storage.postgres_dsn":
		return c.Storage.PostgresDSN, nil
	case "identity.backend":
		return c.Identity.Backend, nil
	case "identity.base_url":
		return c.Identity.BaseURL, nil
	case "identity.secret_key":
		return c.Identity.SecretKey, nil
	case "identity.static_file":
		return c.Identity.StaticFile, nil
	case "identity.sign_in_url":
		return c.Identity.SignInURL, nil
	case "session.secret":
		return c.Session.Secret, nil
	case "session.public_key_file":
		return c.Session.PublicKeyFile, nil
	case "session.issuer":
		return c.Session.Issuer, nil
	case "session.cookie_name":
		return c.Session.CookieName, nil
	case "session.trust_user_header":
		return strconv.FormatBool(c.Session.TrustUserHeader), nil
	case "lock.redis_addr":
		return c.Lock.RedisAddr, nil
	case "lock.ttl_seconds":
		return strconv.Itoa(c.Lock.TTLSeconds), nil
	case "lock.key_prefix":
		return c.Lock.KeyPrefix, nil
	case "attachments.max_upload_bytes":
		return strconv.FormatInt(c.Attachments.MaxUploadBytes, 10), nil
	case "attachments.persist":
		return strconv.FormatBool(c.Attachments.Persist), nil
	case "attachments.blob_dir":
		return c.Attachments.BlobDir, nil
	case "attachments.allowed_media_types":
		return strings.Join(c.Attachments.AllowedMediaTypes, ","), nil
	case "rate_limit.per_minute":
		return strconv.Itoa(c.RateLimit.PerMinute), nil
	case "rate_limit.burst":
		return strconv.Itoa(c.RateLimit.Burst), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnvOverrides(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"CLUBSITE_API_URL", &cfg.APIURL},
		{"CLUBSITE_LOG_LEVEL", &cfg.LogLevel},
		{"CLUBSITE_DATA_DIR", &cfg.DataDir},
		{"CLUBSITE_STORAGE_BACKEND", &cfg.Storage.Backend},
		{"CLUBSITE_POSTGRES_DSN", &cfg.Storage.PostgresDSN},
		{"CLUBSITE_IDENTITY_SECRET_KEY", &cfg.Identity.SecretKey},
		{"CLUBSITE_SESSION_SECRET", &cfg.Session.Secret},
		{"CLUBSITE_REDIS_ADDR", &cfg.Lock.RedisAddr},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.env)); value != "" {
			*o.target = value
		}
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "attachments.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "lock.ttl_seconds", "rate_limit.per_minute", "rate_limit.burst":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "attachments.persist", "session.trust_user_header":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "attachments.allowed_media_types":
		return splitCSV(value), nil
	case "storage.backend":
		switch strings.ToLower(value) {
		case "file", "sqlite", "postgres":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of file, sqlite, postgres", key)
	case "identity.backend":
		switch strings.ToLower(value) {
		case "clerk", "static":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of clerk, static", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// normalize fills derived paths under DataDir and repairs invalid values.
func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.DataDir) == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.DataDir = filepath.Join(cwd, DefaultDataDirName)
		} else {
			c.DataDir = DefaultDataDirName
		}
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.DocumentPath == "" {
		c.Storage.DocumentPath = filepath.Join(c.DataDir, DefaultDocumentName)
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.DataDir, DefaultSQLiteName)
	}
	c.Identity.Backend = strings.ToLower(strings.TrimSpace(c.Identity.Backend))
	if c.Identity.Backend == "" {
		c.Identity.Backend = DefaultIdentityBackend
	}
	if c.Identity.StaticFile == "" {
		c.Identity.StaticFile = filepath.Join(c.DataDir, DefaultUsersName)
	}
	if c.Identity.SignInURL == "" {
		c.Identity.SignInURL = DefaultSignInURL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultSessionCookie
	}
	if c.Attachments.MaxUploadBytes <= 0 {
		c.Attachments.MaxUploadBytes = DefaultAttachmentMaxUploadBytes
	}
	if c.Attachments.BlobDir == "" {
		c.Attachments.BlobDir = filepath.Join(c.DataDir, DefaultBlobDirName)
	}
	c.Attachments.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Attachments.AllowedMediaTypes)
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = DefaultRateLimitPerMinute
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
