package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file used when no path is given.
const ConfigPath = "config.yaml"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverMinio = "minio"
	StorageDriverLocal = "local"

	OrphanPolicyKeep  = "keep"
	OrphanPolicyPurge = "purge"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	PublicBaseURL string `yaml:"publicBaseURL"`

	StoreDriver string `yaml:"storeDriver"`
	DatabaseURL string `yaml:"databaseURL"`

	StorageDriver  string `yaml:"storageDriver"`
	StoragePath    string `yaml:"storagePath"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioPublicURL string `yaml:"minioPublicURL"`
	ImagesBucket   string `yaml:"imagesBucket"`
	SheetsBucket   string `yaml:"sheetsBucket"`

	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDB"`
	RedisPrefix     string `yaml:"redisPrefix"`
	ProductCacheTTL string `yaml:"productCacheTTL"`

	AuthJWKSURL  string   `yaml:"authJwksURL"`
	JWTIssuer    string   `yaml:"jwtIssuer"`
	JWTAudience  string   `yaml:"jwtAudience"`
	JWTLeeway    string   `yaml:"jwtLeeway"`
	AllowedRoles []string `yaml:"allowedRoles"`

	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	CORSOrigins              []string `yaml:"corsOrigins"`
	UploadRateLimitPerMinute int      `yaml:"uploadRateLimitPerMinute"`

	MaxImageBytes     int64    `yaml:"maxImageBytes"`
	MaxSheetBytes     int64    `yaml:"maxSheetBytes"`
	MaxPreviewBytes   int64    `yaml:"maxPreviewBytes"`
	PreviewTimeout    string   `yaml:"previewTimeout"`
	SheetExtensions   []string `yaml:"sheetExtensions"`
	PreviewHosts      []string `yaml:"previewHosts"`
	SheetListLimit    int      `yaml:"sheetListLimit"`
	UploadConcurrency int      `yaml:"uploadConcurrency"`
	OrphanPolicy      string   `yaml:"orphanPolicy"`
}

// Load reads config from path (defaults to config.yaml). Values from a .env
// file next to the config or in the working directory are visible to the
// environment overrides, without replacing variables already set.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := loadDotEnv(path); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	seen := map[string]bool{}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				*dst = n
			}
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitCSV(v)
		}
	}

	setString("CATALOG_PORT", &cfg.Port)
	setString("CATALOG_LOG_LEVEL", &cfg.LogLevel)
	setString("CATALOG_PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	setString("CATALOG_STORE_DRIVER", &cfg.StoreDriver)
	setString("DATABASE_URL", &cfg.DatabaseURL)

	setString("CATALOG_STORAGE_DRIVER", &cfg.StorageDriver)
	setString("CATALOG_STORAGE_PATH", &cfg.StoragePath)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_PUBLIC_URL", &cfg.MinioPublicURL)
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	setString("MINIO_IMAGES_BUCKET", &cfg.ImagesBucket)
	setString("MINIO_SHEETS_BUCKET", &cfg.SheetsBucket)

	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setInt("REDIS_DB", &cfg.RedisDB)
	setString("REDIS_PREFIX", &cfg.RedisPrefix)
	setString("CATALOG_PRODUCT_CACHE_TTL", &cfg.ProductCacheTTL)

	setString("CATALOG_AUTH_JWKS_URL", &cfg.AuthJWKSURL)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("JWT_AUDIENCE", &cfg.JWTAudience)
	setString("JWT_LEEWAY", &cfg.JWTLeeway)
	setList("CATALOG_ALLOWED_ROLES", &cfg.AllowedRoles)

	setList("CATALOG_TRUSTED_PROXY_CIDRS", &cfg.TrustedProxyCIDRs)
	setList("CATALOG_CORS_ORIGINS", &cfg.CORSOrigins)
	setInt("CATALOG_UPLOAD_RATE_LIMIT_PER_MINUTE", &cfg.UploadRateLimitPerMinute)

	setInt64("CATALOG_MAX_IMAGE_BYTES", &cfg.MaxImageBytes)
	setInt64("CATALOG_MAX_SHEET_BYTES", &cfg.MaxSheetBytes)
	setInt64("CATALOG_MAX_PREVIEW_BYTES", &cfg.MaxPreviewBytes)
	setString("CATALOG_PREVIEW_TIMEOUT", &cfg.PreviewTimeout)
	setList("CATALOG_SHEET_EXTENSIONS", &cfg.SheetExtensions)
	setList("CATALOG_PREVIEW_HOSTS", &cfg.PreviewHosts)
	setInt("CATALOG_SHEET_LIST_LIMIT", &cfg.SheetListLimit)
	setInt("CATALOG_UPLOAD_CONCURRENCY", &cfg.UploadConcurrency)
	setString("CATALOG_ORPHAN_POLICY", &cfg.OrphanPolicy)
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageDriverMinio
	}
	if cfg.ImagesBucket == "" {
		cfg.ImagesBucket = "images"
	}
	if cfg.SheetsBucket == "" {
		cfg.SheetsBucket = "sheets"
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "catalog"
	}
	if cfg.UploadRateLimitPerMinute == 0 {
		cfg.UploadRateLimitPerMinute = 30
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	if cfg.MaxSheetBytes == 0 {
		cfg.MaxSheetBytes = 20 << 20
	}
	if cfg.MaxPreviewBytes == 0 {
		cfg.MaxPreviewBytes = cfg.MaxSheetBytes
	}
	if len(cfg.SheetExtensions) == 0 {
		cfg.SheetExtensions = []string{".xlsx", ".xls"}
	}
	if cfg.SheetListLimit == 0 {
		cfg.SheetListLimit = 100
	}
	if cfg.OrphanPolicy == "" {
		cfg.OrphanPolicy = OrphanPolicyKeep
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or CATALOG_PORT)")
	}
	if err := validateBaseURL(cfg.PublicBaseURL); err != nil {
		return err
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	switch cfg.StorageDriver {
	case StorageDriverMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioEndpoint, minioAccessKey and minioSecretKey are required for the minio storage driver")
		}
	case StorageDriverLocal:
		if strings.TrimSpace(cfg.StoragePath) == "" {
			return errors.New("config: storagePath is required for the local storage driver")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q", cfg.StorageDriver)
	}
	if cfg.ImagesBucket == cfg.SheetsBucket {
		return errors.New("config: imagesBucket and sheetsBucket must differ")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for the product cache and rate limiting")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or CATALOG_AUTH_JWKS_URL)")
	}
	if cfg.OrphanPolicy != OrphanPolicyKeep && cfg.OrphanPolicy != OrphanPolicyPurge {
		return fmt.Errorf("config: orphanPolicy must be %q or %q", OrphanPolicyKeep, OrphanPolicyPurge)
	}
	if cfg.UploadRateLimitPerMinute < 0 || cfg.UploadConcurrency < 0 || cfg.SheetListLimit < 0 {
		return errors.New("config: rate limit, upload concurrency and sheet list limit must be >= 0")
	}
	if cfg.MaxImageBytes < 0 || cfg.MaxSheetBytes < 0 || cfg.MaxPreviewBytes < 0 {
		return errors.New("config: byte limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"productCacheTTL": cfg.ProductCacheTTL,
		"previewTimeout":  cfg.PreviewTimeout,
		"jwtLeeway":       cfg.JWTLeeway,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("config: publicBaseURL is required (set in config.yaml or CATALOG_PUBLIC_BASE_URL)")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: publicBaseURL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func splitCSV(value string) []string {
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

// ParseDuration parses an optional duration string. Empty means zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid duration %q: must be >= 0", raw)
	}
	return dur, nil
}
