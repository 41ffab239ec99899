package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/samantha-voice/internal/app"
	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/config"
	"github.com/antoniostano/samantha-voice/internal/logging"
)

func serveCmd() *cobra.Command {
	var startNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the control server and the voice listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), startNow)
		},
	}
	cmd.Flags().BoolVar(&startNow, "start", false, "start listening immediately")
	return cmd
}

func serve(parent context.Context, startNow bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup incomplete")
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.BindAddr).Str("profile", cfg.Profile).Str("voice", built.VoiceDetail).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})
	if startNow {
		g.Go(func() error {
			msg, err := built.Service.Start(gctx)
			if err != nil {
				log.Error().Err(err).Msg("start failed")
				return nil
			}
			log.Info().Msg(msg)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			terminate, err := audio.InitPortAudio()
			if err != nil {
				return err
			}
			defer terminate()
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				fmt.Fprintf(out, "%3d  %-40s  in=%d out=%d  %.0fHz  (%s)\n",
					d.Index, d.Name, d.InputChannels, d.OutputChannels, d.DefaultRate, d.HostAPI)
			}
			return nil
		},
	}
}
