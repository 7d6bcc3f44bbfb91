package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/relay"
	"github.com/BioHazard786/Huddle/internal/ui"
	"github.com/BioHazard786/Huddle/internal/version"
)

const roomsTimeout = 5 * time.Second

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms currently open on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{Domain: flagDomain, Server: flagServer})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), roomsTimeout)
		defer cancel()

		rooms, err := fetchRooms(ctx, http.DefaultClient, cfg.RoomsURL())
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomsView(rooms))
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVar(&flagServer, "server", "", "signaling URL (ws:// or wss://), overrides --domain")
	roomsCmd.Flags().StringVar(&flagDomain, "domain", "", "relay domain")
}

func fetchRooms(ctx context.Context, client *http.Client, url string) ([]relay.RoomInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: relay answered %s", resp.Status)
	}

	var body struct {
		Rooms []relay.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return body.Rooms, nil
}
