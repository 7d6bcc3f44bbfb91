package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/relay"
)

var flagAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the room relay that carries signaling between members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{RelayAddr: flagAddr})
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if _, ok := os.LookupEnv("LOG_LEVEL"); !ok && level == "" {
			level = "info"
		}
		log := logging.Init(level, os.Stderr)

		return relay.NewServer(cfg.Relay, log).ListenAndServe(cmd.Context())
	},
}

func init() {
	relayCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default "+config.DefaultRelayAddr+")")
}
