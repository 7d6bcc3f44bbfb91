package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/ui"
	"github.com/BioHazard786/Huddle/internal/version"
)

var (
	flagConfig   string
	flagLogLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "huddle",
	Short:   "Peer-to-peer rooms in the terminal over WebRTC",
	Long: `Huddle joins a named room and connects directly to every other member over
WebRTC. Chat, raised hands and emoji reactions travel over the peer
connections; the relay only carries signaling.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error, off")

	rootCmd.AddCommand(joinCmd, relayCmd, roomsCmd, configCmd)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func loadConfig(opts config.Options) (*config.Config, error) {
	opts.ConfigPath = flagConfig
	opts.LogLevel = flagLogLevel
	return config.Load(opts)
}
