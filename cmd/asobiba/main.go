// asobiba is a multi-platform conversational bot gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	adapterslack "github.com/yutakobayashidev/asobiba/pkg/adapter/slack"
	adaptertelegram "github.com/yutakobayashidev/asobiba/pkg/adapter/telegram"
	"github.com/yutakobayashidev/asobiba/pkg/api"
	"github.com/yutakobayashidev/asobiba/pkg/bus"
	"github.com/yutakobayashidev/asobiba/pkg/chat"
	"github.com/yutakobayashidev/asobiba/pkg/config"
	"github.com/yutakobayashidev/asobiba/pkg/logger"
	"github.com/yutakobayashidev/asobiba/pkg/providers"
	"github.com/yutakobayashidev/asobiba/pkg/state"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sysBus := bus.New()
	defer sysBus.Close()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	bot := chat.NewBot(store, generator, sysBus, chat.WithHistoryLimit(cfg.HistoryLimit))
	if err := registerAdapters(bot, cfg); err != nil {
		return err
	}
	if err := registerHandlers(bot); err != nil {
		return err
	}

	server := api.NewServer(cfg, bot, sysBus)
	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.InfoCF("main", "asobiba running", map[string]interface{}{
		"platforms": bot.Platforms(),
		"provider":  cfg.Provider.Name,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	return server.Stop()
}

func buildStore(ctx context.Context, cfg *config.Config) (chat.Store, error) {
	if cfg.State.Path == "" {
		return state.NewMemoryStore(), nil
	}

	store, err := state.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	if cfg.State.SweepSchedule != "" && cfg.State.SweepTTLDays > 0 {
		ttl := time.Duration(cfg.State.SweepTTLDays) * 24 * time.Hour
		go func() {
			if err := store.StartSweeper(ctx, cfg.State.SweepSchedule, ttl); err != nil && ctx.Err() == nil {
				logger.ErrorCF("main", "Subscription sweeper stopped", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}
	return store, nil
}

func buildGenerator(cfg *config.Config) (chat.Generator, error) {
	switch cfg.Provider.Name {
	case "anthropic", "":
		if cfg.Provider.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but no API key configured")
		}
		return providers.NewAnthropicProvider(cfg.Provider.AnthropicAPIKey, cfg.Provider.Model), nil
	case "openai":
		if cfg.Provider.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key configured")
		}
		return providers.NewOpenAIProvider(cfg.Provider.OpenAIAPIKey, cfg.Provider.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func registerAdapters(bot *chat.Bot, cfg *config.Config) error {
	registered := 0

	if cfg.Slack.BotToken != "" {
		adapter, err := adapterslack.New(cfg.Slack.BotToken, cfg.Slack.SigningSecret)
		if err != nil {
			return fmt.Errorf("slack adapter: %w", err)
		}
		bot.RegisterAdapter(adapter)
		registered++
	}

	if cfg.Telegram.Token != "" {
		adapter, err := adaptertelegram.New(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		bot.RegisterAdapter(adapter)
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("no platform adapters configured")
	}
	return nil
}
