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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Parlor/internal/adapters/http"
	"github.com/dkeye/Parlor/internal/app"
	"github.com/dkeye/Parlor/internal/app/orch"
	"github.com/dkeye/Parlor/internal/config"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/sanitize"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:          "parlor",
	Short:        "Real-time group chat server",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config-env", "", "config profile, reads config/config.<env>.yaml (default from CONFIG_ENV or dev)")
	flags.Int("port", 0, "listen port")
	flags.String("log-level", "", "debug, info, warn or error")

	_ = v.BindPFlag("config_env", flags.Lookup("config-env"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("parlor exited")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	rooms := make([]orch.RoomSpec, 0, len(cfg.Chat.Rooms))
	for _, r := range cfg.Chat.Rooms {
		rooms = append(rooms, orch.RoomSpec{ID: domain.RoomID(r.ID), Name: r.Name})
	}
	o := orch.New(orch.Options{
		HistorySize:     cfg.Chat.HistorySize,
		HistoryOnJoin:   cfg.Chat.HistoryOnJoin,
		GracePeriod:     cfg.Chat.GracePeriod,
		MaxMessageRunes: cfg.Chat.MaxMessageRunes,
		Attachments: sanitize.AttachmentPolicy{
			MaxBytes:     cfg.Chat.MaxAttachmentBytes,
			AllowedTypes: cfg.Chat.AllowedTypes,
		},
		Rooms: rooms,
	}, app.PolicyByName(cfg.Backpressure))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Parlor server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
