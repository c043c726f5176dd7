package profile

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, openrouter, ollama) use the same config.
	LLMProvider string // Provider identifier: openai, deepseek, openrouter, ollama
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has a default per provider
	LLMModel    string // Model name: gpt-4o, deepseek-chat, etc.
	LLMTimeout  int    // LLM request timeout in seconds (default: 120)

	// Gateway fronting the club CRUD microservices.
	GatewayBaseURL string
	GatewayTimeout int // Gateway request timeout in seconds (default: 20)

	// Identity provider (Firebase-style securetoken verification).
	IdentityProjectID string

	Mode    string
	Addr    string
	Version string
	Port    int
}

// Provider default configurations for the LLM.
// Used when the base URL or model is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/gpt-4o",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("CLUBASSIST_AI_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("CLUBASSIST_AI_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("CLUBASSIST_AI_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("CLUBASSIST_AI_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("CLUBASSIST_AI_LLM_TIMEOUT_SECONDS", 120)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.GatewayBaseURL = getEnvOrDefault("CLUBASSIST_GATEWAY_BASE_URL", "")
	p.GatewayTimeout = getEnvOrDefaultInt("CLUBASSIST_GATEWAY_TIMEOUT_SECONDS", 20)
	p.IdentityProjectID = getEnvOrDefault("CLUBASSIST_IDENTITY_PROJECT_ID", "")
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.GatewayBaseURL == "" {
		return errors.New("gateway base URL is required (CLUBASSIST_GATEWAY_BASE_URL)")
	}
	parsed, err := url.Parse(p.GatewayBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.Wrapf(err, "invalid gateway base URL %q", p.GatewayBaseURL)
	}

	if p.IdentityProjectID == "" {
		return errors.New("identity project ID is required (CLUBASSIST_IDENTITY_PROJECT_ID)")
	}

	if p.LLMAPIKey == "" && p.LLMProvider != "ollama" {
		return errors.Errorf("LLM API key is required for provider %q", p.LLMProvider)
	}

	if p.GatewayTimeout <= 0 {
		p.GatewayTimeout = 20
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 120
	}

	return nil
}
