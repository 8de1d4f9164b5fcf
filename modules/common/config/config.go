package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment setting the pipeline needs.
type Config struct {
	// Server
	Port string

	// Project store
	ProjectsDir string

	// Mock mode short-circuits the LLM, the image provider and storage so the
	// whole pipeline runs without external services.
	MockMode bool

	// Text LLM
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string
	LLMTimeout time.Duration

	// Image provider
	ImageProvider    string // "leonardo", "gemini" or "mock"
	ImageAPIKey      string
	ImageAPIURL      string
	GeminiAPIKey     string
	GeminiImageModel string

	// Panel generation pacing
	PollInterval    time.Duration
	MaxPollAttempts int
	PanelDelay      time.Duration

	// Supabase storage
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseBucket         string
	SupabaseStorageBaseURL string

	// Redis (job records, queue, cancellation flags)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Page composer
	FontPath   string
	PageWidth  int
	PageHeight int
	PageMargin int
}

var globalConfig *Config

// LoadConfig reads the environment (and .env if present) and validates the
// combination of providers that was selected.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	useTLS := true
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	mockMode := false
	if mockStr := os.Getenv("MOCK_MODE"); mockStr != "" {
		if parsed, err := strconv.ParseBool(mockStr); err == nil {
			mockMode = parsed
		}
	}

	globalConfig = &Config{
		Port:        getEnv("PORT", "8080"),
		ProjectsDir: getEnv("PROJECTS_DIR", "data/projects"),
		MockMode:    mockMode,

		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMTimeout: time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		ImageProvider:    getEnv("IMAGE_PROVIDER", "leonardo"),
		ImageAPIKey:      getEnv("IMAGE_API_KEY", ""),
		ImageAPIURL:      getEnv("IMAGE_API_URL", "https://cloud.leonardo.ai/api/rest/v1"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),

		PollInterval:    time.Duration(getEnvInt("PANEL_POLL_INTERVAL_SECONDS", 3)) * time.Second,
		MaxPollAttempts: getEnvInt("PANEL_MAX_POLL_ATTEMPTS", 40),
		PanelDelay:      time.Duration(getEnvInt("PANEL_DELAY_SECONDS", 3)) * time.Second,

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "comics"),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		FontPath:   getEnv("COMIC_FONT", ""),
		PageWidth:  getEnvInt("PAGE_WIDTH", 1200),
		PageHeight: getEnvInt("PAGE_HEIGHT", 1600),
		PageMargin: getEnvInt("PAGE_MARGIN", 40),
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Mock mode: %v", globalConfig.MockMode)
	log.Printf("   Image provider: %s", globalConfig.ImageProvider)
	log.Printf("   LLM model: %s", globalConfig.LLMModel)
	log.Printf("   Projects dir: %s", globalConfig.ProjectsDir)

	return globalConfig, nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// SetConfig installs a configuration directly. Used by tests.
func SetConfig(c *Config) {
	globalConfig = c
}

// validate fails fast on any missing key the selected providers need. Mock
// mode needs no external credentials at all.
func (c *Config) validate() error {
	if c.MockMode {
		return nil
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	switch c.ImageProvider {
	case "leonardo":
		if c.ImageAPIKey == "" {
			return fmt.Errorf("IMAGE_API_KEY is required for the leonardo provider")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case "mock":
		// allowed outside mock mode for local composer work
	default:
		return fmt.Errorf("unknown IMAGE_PROVIDER: %s", c.ImageProvider)
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	return nil
}

// getEnv reads an environment variable with a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer environment variable with a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr builds the redis connection address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
