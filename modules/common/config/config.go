package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"

	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Config - every environment variable the studio server reads
type Config struct {
	// Server
	Port          string
	AppEnv        string
	LogLevel      string
	AllowedOrigin string
	ProjectsFile  string

	// Gemini / Vertex
	GeminiAPIKeys         []string
	GeminiBackend         string
	VertexProject         string
	VertexLocation        string
	VertexCredentialsJSON string
	VertexCredentialsPath string
	ImageModel            string
	VideoModel            string
	RateLimitAttempts     int

	// Video generation
	VideoPrompt     string
	VideoResolution string
	VideoCount      int
	PollInterval    time.Duration
	MaxPollAttempts int
	PollDeadline    time.Duration

	// Registry
	RegistryBackend  string
	RegistryCapacity int

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	WebPQuality           float32
}

var globalConfig *Config

// LoadConfig - read .env (if present) and the environment
func LoadConfig() (*Config, error) {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		ProjectsFile:  getEnv("PROJECTS_FILE", ""),

		GeminiAPIKeys:         apiKeys(),
		GeminiBackend:         strings.ToLower(getEnv("GEMINI_BACKEND", BackendGemini)),
		VertexProject:         getEnv("VERTEX_PROJECT", ""),
		VertexLocation:        getEnv("VERTEX_LOCATION", "us-central1"),
		VertexCredentialsJSON: getEnv("VERTEXAI_CREDENTIALS_JSON", ""),
		VertexCredentialsPath: getEnv("VERTEXAI_CREDENTIALS_PATH", ""),
		ImageModel:            getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VideoModel:            getEnv("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		RateLimitAttempts:     getEnvInt("RATE_LIMIT_ATTEMPTS", 1),

		VideoPrompt:     getEnv("VIDEO_PROMPT", "Animate this product screenshot with subtle, smooth camera motion. Keep the UI legible."),
		VideoResolution: getEnv("VIDEO_RESOLUTION", "720p"),
		VideoCount:      getEnvInt("VIDEO_COUNT", 1),
		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		MaxPollAttempts: getEnvInt("MAX_POLL_ATTEMPTS", 30),
		PollDeadline:    time.Duration(getEnvInt("POLL_DEADLINE_SECONDS", 300)) * time.Second,

		RegistryBackend:  strings.ToLower(getEnv("REGISTRY_BACKEND", RegistryMemory)),
		RegistryCapacity: getEnvInt("REGISTRY_CAPACITY", 256),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "studio-assets"),
		WebPQuality:           float32(getEnvInt("WEBP_QUALITY", 90)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// GetConfig - the configuration loaded by LoadConfig
func GetConfig() *Config {
	if globalConfig == nil {
		panic("config not loaded; call LoadConfig first")
	}
	return globalConfig
}

// validate - required values and sane ranges
func (c *Config) validate() error {
	switch c.GeminiBackend {
	case BackendGemini:
		if len(c.GeminiAPIKeys) == 0 {
			return fmt.Errorf("GEMINI_API_KEYS (or GEMINI_API_KEY) is required")
		}
	case BackendVertex:
		if c.VertexProject == "" {
			return fmt.Errorf("VERTEX_PROJECT is required when GEMINI_BACKEND=vertex")
		}
	default:
		return fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendGemini, BackendVertex, c.GeminiBackend)
	}

	switch c.RegistryBackend {
	case RegistryMemory:
	case RegistryRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required when REGISTRY_BACKEND=redis")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be %q or %q, got %q", RegistryMemory, RegistryRedis, c.RegistryBackend)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.MaxPollAttempts <= 0 {
		return fmt.Errorf("MAX_POLL_ATTEMPTS must be positive")
	}
	if c.PollDeadline <= 0 {
		return fmt.Errorf("POLL_DEADLINE_SECONDS must be positive")
	}
	if c.VideoCount <= 0 {
		return fmt.Errorf("VIDEO_COUNT must be positive")
	}
	if c.RateLimitAttempts <= 0 {
		return fmt.Errorf("RATE_LIMIT_ATTEMPTS must be positive")
	}
	if c.RegistryCapacity <= 0 {
		return fmt.Errorf("REGISTRY_CAPACITY must be positive")
	}
	if c.WebPQuality <= 0 || c.WebPQuality > 100 {
		return fmt.Errorf("WEBP_QUALITY must be within 1-100")
	}
	return nil
}

// SupabaseEnabled - both URL and service key present
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// GetRedisAddr - host:port for go-redis
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// apiKeys - GEMINI_API_KEYS (comma separated) plus the legacy single GEMINI_API_KEY
func apiKeys() []string {
	var keys []string
	seen := map[string]bool{}
	for _, raw := range append(strings.Split(os.Getenv("GEMINI_API_KEYS"), ","), os.Getenv("GEMINI_API_KEY")) {
		key := strings.TrimSpace(raw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
