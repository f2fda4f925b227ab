package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"replybot/pkg/bus"
	"replybot/pkg/channel"
	"replybot/pkg/channel/telegram"
	"replybot/pkg/config"
	"replybot/pkg/gateway"
	"replybot/pkg/history"
	"replybot/pkg/logger"
	"replybot/pkg/metrics"
	"replybot/pkg/rulestore"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Runs replybot as a channel gateway with the HTTP API, health and readiness endpoints, and rule hot reload.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		mb := bus.NewMessageBus()
		defer mb.Close()
		reg := metrics.NewRegistry()

		store, err := rulestore.Open(cfg.Rules.Path, rulestore.Options{
			MaxPatternLength: cfg.Engine.MaxPatternLength,
			Logger:           appLogger,
			OnReload:         gateway.ReloadHook(mb, reg),
		})
		if err != nil {
			log.Error("Failed to load rules", "path", cfg.Rules.Path, "error", err)
			return
		}

		hist, err := history.Open(cfg.History)
		if err != nil {
			log.Error("Failed to open history", "driver", cfg.History.Driver, "error", err)
			return
		}
		defer func() {
			if err := hist.Close(); err != nil {
				log.Warn("Failed to close history", "error", err)
			}
		}()

		resolver, err := newResolver(cfg, reg, appLogger)
		if err != nil {
			log.Error("Engine configuration invalid", "error", err)
			return
		}

		svc, err := gateway.NewService(gateway.Options{
			Config:   cfg,
			Rules:    store,
			Resolver: resolver,
			History:  hist,
			Metrics:  reg,
			Bus:      mb,
			Channels: adapters,
			Logger:   appLogger,
		})
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Gateway started",
			"channels", enabledChannelNames(adapters),
			"rules", store.Path(),
			"watch", cfg.Rules.Watch,
			"address", cfg.Gateway.Addr(),
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// enabledAdapters builds the configured channel adapters. With none enabled the
// gateway still serves its HTTP API.
func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 && log != nil {
		log.Warn("No channels are enabled, serving the HTTP API only")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
