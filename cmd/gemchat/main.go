// GemChat - single-page streaming chat frontend for hosted LLM APIs.
//
// Environment variables:
//
//	GEMCHAT_CONFIG       - Config file path (default: ~/.gemchat/config.json)
//	GEMCHAT_CONFIG_JSON  - Full config JSON (alternative to config file)
//	GEMCHAT_LOG_LEVEL    - zerolog level (default: info)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nddang/gemchat/pkg/config"
	"github.com/nddang/gemchat/pkg/logger"
	"github.com/nddang/gemchat/pkg/providers"
	"github.com/nddang/gemchat/pkg/transcript"
	"github.com/nddang/gemchat/pkg/web"
)

func main() {
	if err := run(); err != nil {
		logger.ErrorCF("main", "startup failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store := transcript.NewStore(time.Duration(cfg.Server.SessionTTLHours) * time.Hour)
	srv := web.NewServer(cfg, store, provider)

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	logger.InfoCF("main", "gemchat ready", map[string]interface{}{
		"provider": cfg.Chat.Provider,
		"model":    cfg.Chat.Model,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func configPath() string {
	if path := os.Getenv("GEMCHAT_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".gemchat", "config.json")
}

// buildProvider wires the configured primary provider plus any fallback
// entries. A missing API key on the primary is fatal; a fallback without a
// key is skipped with a warning.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	primary, err := providerByName(cfg, cfg.Chat.Provider)
	if err != nil {
		return nil, err
	}

	if len(cfg.Chat.Fallbacks) == 0 {
		return primary, nil
	}

	entries := make([]providers.FallbackEntry, 0, len(cfg.Chat.Fallbacks))
	for _, fb := range cfg.Chat.Fallbacks {
		p, err := providerByName(cfg, fb.Provider)
		if err != nil {
			logger.WarnCF("main", "skipping fallback provider", map[string]interface{}{
				"provider": fb.Provider,
				"error":    err.Error(),
			})
			continue
		}
		entries = append(entries, providers.FallbackEntry{Provider: p, Model: fb.Model})
	}
	if len(entries) == 0 {
		return primary, nil
	}
	return providers.NewFallbackProvider(primary, entries), nil
}

func providerByName(cfg *config.Config, name string) (providers.Provider, error) {
	pc, err := cfg.RequiredAPIKey(name)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(name) {
	case "gemini":
		return providers.NewGeminiProvider(pc.APIKey, pc.APIBase), nil
	case "openai":
		return providers.NewOpenAIProvider(pc.APIKey, pc.APIBase), nil
	case "anthropic":
		return providers.NewAnthropicProvider(pc.APIKey, pc.APIBase), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
