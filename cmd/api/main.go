package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/feynman-tutor/backend/internal/config"
	"github.com/zhouzirui/feynman-tutor/backend/internal/handler"
	"github.com/zhouzirui/feynman-tutor/backend/internal/logging"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant"
	arkprovider "github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant/ark"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/assistant/vapi"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/registry"
	"github.com/zhouzirui/feynman-tutor/backend/internal/service/tutor"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		addr     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "feynman-api",
		Short:         "Relay learning conversations between users and the assistant platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Load .env file
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("no .env file loaded, continuing with system environment variables only")
			}

			cfg, err := config.Load()
			if err != nil {
				log.Error().Err(err).Msg("failed to load configuration")
				return err
			}
			if addr != "" {
				if cfg.Server.Addr, err = config.ParseAddr(addr); err != nil {
					return err
				}
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := logging.Setup(cfg.Log); err != nil {
				return fmt.Errorf("invalid log configuration: %w", err)
			}

			gateway, err := newGateway(ctx, cfg)
			if err != nil {
				log.Error().Err(err).Str("provider", cfg.Assistant.Provider).Msg("failed to initialize assistant gateway")
				return err
			}
			log.Info().Str("provider", cfg.Assistant.Provider).Msg("assistant gateway initialized")

			tutorSvc := tutor.NewService(registry.NewMemoryStore(), gateway)
			router := handler.NewRouter(cfg.Server, tutorSvc)

			return startServer(ctx, cfg.Server, router)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	return cmd
}

func newGateway(ctx context.Context, cfg *config.Config) (assistant.Gateway, error) {
	instructions := assistant.NewInstructionBuilder(cfg.Assistant.DefaultDifficulty)

	switch cfg.Assistant.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return arkprovider.NewProvider(ctx, chatModel, instructions)
	default:
		return vapi.NewClient(vapi.Config{
			BaseURL: cfg.Assistant.BaseURL,
			APIKey:  cfg.Assistant.APIKey,
			Model:   cfg.Assistant.Model,
			Timeout: cfg.Assistant.Timeout,
		}, instructions)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("Feynman learning backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
