package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/antoniostano/samantha-voice/internal/config"
)

var version = "dev"

func main() {
	var addr string

	root := &cobra.Command{
		Use:           "samantha",
		Short:         "Wake-word voice front-end for AI coding assistants",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "", "control server address (defaults to bind_addr)")

	client := func() (*apiClient, error) {
		if addr != "" {
			return newAPIClient(addr), nil
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return newAPIClient(cfg.BindAddr), nil
	}

	root.AddCommand(
		serveCmd(),
		startCmd(client),
		stopCmd(client),
		speakCmd(client),
		statusCmd(client),
		logCmd(client),
		devicesCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
