package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Chat      ChatConfig      `json:"chat"`
	Providers ProvidersConfig `json:"providers"`
	Auth      AuthConfig      `json:"auth"`
}

type ServerConfig struct {
	Host            string `json:"host" env:"GEMCHAT_SERVER_HOST"`
	Port            int    `json:"port" env:"GEMCHAT_SERVER_PORT"`
	SessionTTLHours int    `json:"session_ttl_hours" env:"GEMCHAT_SERVER_SESSION_TTL_HOURS"`
}

type ChatConfig struct {
	Provider     string           `json:"provider" env:"GEMCHAT_CHAT_PROVIDER"`
	Model        string           `json:"model" env:"GEMCHAT_CHAT_MODEL"`
	SystemPrompt string           `json:"system_prompt" env:"GEMCHAT_CHAT_SYSTEM_PROMPT"`
	WelcomeText  string           `json:"welcome_text" env:"GEMCHAT_CHAT_WELCOME_TEXT"`
	Fallbacks    []FallbackConfig `json:"fallbacks,omitempty"`
}

// FallbackConfig defines an alternative provider+model to try when the
// primary fails before streaming starts.
type FallbackConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type ProvidersConfig struct {
	Gemini    ProviderConfig `json:"gemini"`
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

type AuthConfig struct {
	Username string `json:"username" env:"GEMCHAT_AUTH_USERNAME"`
	Password string `json:"password" env:"GEMCHAT_AUTH_PASSWORD"`
}

// GetByName returns the provider config and its API-key env var for a given
// provider name. Returns a zero ProviderConfig and empty string when the name
// is not recognized.
func (p *ProvidersConfig) GetByName(name string) (ProviderConfig, string) {
	switch strings.ToLower(name) {
	case "gemini":
		return p.Gemini, "GEMCHAT_PROVIDERS_GEMINI_API_KEY"
	case "openai":
		return p.OpenAI, "GEMCHAT_PROVIDERS_OPENAI_API_KEY"
	case "anthropic":
		return p.Anthropic, "GEMCHAT_PROVIDERS_ANTHROPIC_API_KEY"
	default:
		return ProviderConfig{}, ""
	}
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            18800,
			SessionTTLHours: 24,
		},
		Chat: ChatConfig{
			Provider:     "gemini",
			Model:        "gemini-2.5-flash",
			SystemPrompt: "You are a friendly, helpful AI assistant named GemChat. Keep your answers concise but informative.",
			WelcomeText:  "Hello! I'm GemChat. How can I help you today?",
		},
		Providers: ProvidersConfig{
			Gemini:    ProviderConfig{},
			OpenAI:    ProviderConfig{},
			Anthropic: ProviderConfig{},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Support full config from env var (for containers)
	if cfgJSON := os.Getenv("GEMCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing GEMCHAT_CONFIG_JSON: %w", err)
		}
		if err := parseEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := parseEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := parseEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseEnv applies GEMCHAT_* overrides. Provider API keys and bases use
// positional env names not expressible as struct tags on the shared
// ProviderConfig type.
func parseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	applyProviderEnv(&cfg.Providers.Gemini, "GEMINI")
	applyProviderEnv(&cfg.Providers.OpenAI, "OPENAI")
	applyProviderEnv(&cfg.Providers.Anthropic, "ANTHROPIC")
	return nil
}

func applyProviderEnv(pc *ProviderConfig, name string) {
	if v := os.Getenv("GEMCHAT_PROVIDERS_" + name + "_API_KEY"); v != "" {
		pc.APIKey = v
	}
	if v := os.Getenv("GEMCHAT_PROVIDERS_" + name + "_API_BASE"); v != "" {
		pc.APIBase = v
	}
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// RequiredAPIKey returns the configured provider's credentials or an error
// naming the missing secret. Session start is fatal without it.
func (c *Config) RequiredAPIKey(provider string) (ProviderConfig, error) {
	pc, envVar := c.Providers.GetByName(provider)
	if envVar == "" {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", provider)
	}
	if pc.APIKey == "" {
		return ProviderConfig{}, fmt.Errorf("no API key for provider %q: set %s or providers.%s.api_key", provider, envVar, strings.ToLower(provider))
	}
	return pc, nil
}
