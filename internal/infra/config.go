package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oclite/studio/internal/secrets"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	GenerationBaseURL string
	GenerationAPIKey  string
	PollInterval      time.Duration
	MaxPolls          int

	PromptGatewayURL   string
	PromptGatewayKey   string
	PromptGatewayModel string

	CDNUploadURL string
	CDNAPIKey    string
	CDNFolder    string

	StoreBucket    string
	StoreRegion    string
	StoreEndpoint  string
	StorePathStyle bool
	StoreAccessKey string
	StoreSecretKey string

	AuthBaseURL  string
	ShareBaseURL string

	CacheDir string
	CacheTTL time.Duration

	RateLimitOps    int
	RateLimitWindow time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. API keys may be stored obfuscated (secrets.Prefix);
// STUDIO_SECRET_KEY then unlocks them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://api.runware.dev/v1"),
		PollInterval:      time.Second * time.Duration(getEnvInt("GENERATION_POLL_SECONDS", 2)),
		MaxPolls:          getEnvInt("GENERATION_MAX_POLLS", 30),

		PromptGatewayURL:   getEnv("PROMPT_GATEWAY_URL", ""),
		PromptGatewayModel: getEnv("PROMPT_GATEWAY_MODEL", "prompt-refiner-v1"),

		CDNUploadURL: getEnv("CDN_UPLOAD_URL", ""),
		CDNFolder:    getEnv("CDN_FOLDER", "generations"),

		StoreBucket:    getEnv("STORE_BUCKET", "studio-artifacts"),
		StoreRegion:    getEnv("STORE_REGION", "us-east-1"),
		StoreEndpoint:  getEnv("STORE_ENDPOINT", ""),
		StorePathStyle: getEnvBool("STORE_PATH_STYLE", false),
		StoreAccessKey: os.Getenv("STORE_ACCESS_KEY"),

		AuthBaseURL:  getEnv("AUTH_BASE_URL", ""),
		ShareBaseURL: getEnv("SHARE_BASE_URL", "https://oclite.site"),

		CacheDir: getEnv("CACHE_DIR", ""),
		CacheTTL: time.Minute * time.Duration(getEnvInt("CACHE_TTL_MINUTES", 30)),

		RateLimitOps:    getEnvInt("RATE_LIMIT_OPS", 10),
		RateLimitWindow: time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	secretKey := os.Getenv("STUDIO_SECRET_KEY")
	var err error
	if cfg.GenerationAPIKey, err = loadKey("GENERATION_API_KEY", secretKey); err != nil {
		return nil, err
	}
	if cfg.PromptGatewayKey, err = loadKey("PROMPT_GATEWAY_KEY", secretKey); err != nil {
		return nil, err
	}
	if cfg.CDNAPIKey, err = loadKey("CDN_API_KEY", secretKey); err != nil {
		return nil, err
	}
	if cfg.StoreSecretKey, err = loadKey("STORE_SECRET_KEY", secretKey); err != nil {
		return nil, err
	}

	if cfg.GenerationAPIKey == "" {
		return nil, fmt.Errorf("GENERATION_API_KEY is required")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir()
	}

	return cfg, nil
}

func loadKey(envName, secretKey string) (string, error) {
	raw := os.Getenv(envName)
	if raw == "" {
		return "", nil
	}
	decoded, err := secrets.MaybeDecode(raw, secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", envName, err)
	}
	return decoded, nil
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return base + string(os.PathSeparator) + "oclite-studio"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
