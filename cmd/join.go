package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/dns"
	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/relay"
	"github.com/BioHazard786/Huddle/internal/rtc"
	"github.com/BioHazard786/Huddle/internal/session"
	"github.com/BioHazard786/Huddle/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/ui"
)

const (
	logFileName    = "huddle.log"
	connectTimeout = 10 * time.Second
)

var (
	flagName     string
	flagServer   string
	flagDomain   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagEncoding string
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room, creating a random one when no name is given",
	Long: `Join a room and connect directly to every member already in it.

Examples:
  huddle join
  huddle join brave-otter-ramen-wave --name alice
  huddle join standup --server ws://127.0.0.1:8080/ws
  huddle join standup --relay --turn turn.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := ""
		if len(args) == 1 {
			room = args[0]
		}
		return joinRoom(cmd.Context(), room)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name shown to other members")
	joinCmd.Flags().StringVar(&flagServer, "server", "", "signaling URL (ws:// or wss://), overrides --domain")
	joinCmd.Flags().StringVar(&flagDomain, "domain", "", "relay domain")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server host")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagRelay, "relay", false, "force traffic through the TURN server")
	joinCmd.Flags().StringVar(&flagEncoding, "payload-encoding", "", "structured payload encoding: json or msgpack")
}

func joinRoom(ctx context.Context, room string) error {
	cfg, err := loadConfig(config.Options{
		Domain:          flagDomain,
		Server:          flagServer,
		STUNServer:      flagSTUN,
		TURNServer:      flagTURN,
		TURNUser:        flagTURNUser,
		TURNPass:        flagTURNPass,
		ForceRelay:      flagRelay,
		PayloadEncoding: flagEncoding,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if room == "" {
		room = relay.GenerateRoomName()
	}

	// The room view owns the terminal, so logs go to a file.
	logPath := filepath.Join(os.TempDir(), logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logging.Init(cfg.LogLevel, logFile)

	id := signaling.NewIdentity(room, flagName)

	rtcOpts := rtc.OptionsFromConfig(cfg)
	rtcOpts.LocalID = id.UserID
	factory, err := rtc.NewFactory(rtcOpts, log)
	if err != nil {
		return err
	}

	client := signaling.NewClient(cfg.WebSocketURL(),
		signaling.WithLogger(log),
		signaling.WithResolver(dns.NewResolver()),
	)
	defer client.Close()

	presenter := ui.NewPresenter()
	coord := session.New(session.Config{
		Identity:  id,
		Signaling: client,
		Factory:   factory,
		Events:    factory.Events(),
		Capturer:  media.NewSilentCapturer(log),
		Presenter: presenter,
		Encoding:  cfg.PayloadEncoding,
		Logger:    log,
	})
	defer coord.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- coord.Run(ctx) }()

	spin := ui.NewConnectionSpinner("Connecting to " + cfg.WebSocketURL())
	spin.Start()

	select {
	case <-coord.Ready():
	case <-ctx.Done():
		spin.Stop()
		return nil
	}

	// The client outlives ctx so the coordinator can still leave on shutdown;
	// the deferred Close ends its loop.
	if err := client.Connect(context.WithoutCancel(ctx), id); err != nil {
		spin.Error("Could not reach the relay")
		return err
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	err = client.WaitConnected(waitCtx)
	waitCancel()
	switch {
	case err == nil:
		spin.Success(fmt.Sprintf("Joined %s as %s", room, id.Username))
	case errors.Is(err, context.DeadlineExceeded):
		spin.Error("Relay is slow to answer, still retrying in the background")
	default:
		spin.Stop()
		return nil
	}

	model := ui.NewRoomModel(room, id.Username, coord)
	if err := ui.Run(ctx, model, presenter); err != nil {
		return fmt.Errorf("room view: %w", err)
	}

	coord.Close()
	if err := <-runErr; err != nil {
		log.Error().Err(err).Msg("session")
	}
	ui.PrintInfof("Left %s (logs in %s)", room, logPath)
	return nil
}
