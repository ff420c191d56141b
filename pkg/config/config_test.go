package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Chat.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Chat.Model)
	assert.Equal(t, 18800, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Chat.WelcomeText)
	assert.NotEmpty(t, cfg.Chat.SystemPrompt)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"port": 9000},
		"chat": {"provider": "openai", "model": "gpt-4o", "fallbacks": [{"provider": "gemini", "model": ""}]},
		"providers": {"openai": {"api_key": "sk-test"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Chat.Provider)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	require.Len(t, cfg.Chat.Fallbacks, 1)
	assert.Equal(t, "gemini", cfg.Chat.Fallbacks[0].Provider)
	// File overrides merge over defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chat": {"model": "from-file"}}`), 0644))

	t.Setenv("GEMCHAT_CHAT_MODEL", "from-env")
	t.Setenv("GEMCHAT_PROVIDERS_GEMINI_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Chat.Model)
	assert.Equal(t, "env-key", cfg.Providers.Gemini.APIKey)
}

func TestLoadConfigFromEnvJSON(t *testing.T) {
	t.Setenv("GEMCHAT_CONFIG_JSON", `{"chat": {"provider": "anthropic"}, "auth": {"username": "u", "password": "p"}}`)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "ignored.json"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Chat.Provider)
	assert.Equal(t, "u", cfg.Auth.Username)
}

func TestRequiredAPIKey(t *testing.T) {
	cfg := DefaultConfig()

	_, err := cfg.RequiredAPIKey("gemini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMCHAT_PROVIDERS_GEMINI_API_KEY")

	cfg.Providers.Gemini.APIKey = "key"
	pc, err := cfg.RequiredAPIKey("gemini")
	require.NoError(t, err)
	assert.Equal(t, "key", pc.APIKey)

	_, err = cfg.RequiredAPIKey("nonesuch")
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Chat.Model = "saved-model"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Chat.Model)
}
