package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nemesis-gg/portal-relayer/config"
	"github.com/nemesis-gg/portal-relayer/internal/api"
	"github.com/nemesis-gg/portal-relayer/internal/relayer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relayer",
	Short: "Relays game asset operations between the platform and its chains",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config", "path to the config directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	config.InitLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	service, err := relayer.NewService(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		return err
	}

	healthServer := api.NewServer(cfg)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("[Main] [run] health server failed")
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Info().Str("signal", sig.String()).Msg("[Main] [run] shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("[Main] [run] failed to stop health server")
	}
	service.Stop(shutdownCtx)
	return nil
}
