package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/dns"
	"github.com/studystim/studystim/internal/logging"
	"github.com/studystim/studystim/internal/relay"
	"github.com/studystim/studystim/internal/ui"
)

const statsTimeout = 10 * time.Second

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the relay",
	Long: `Show the relay's active rooms and who is in them.

Examples:
  studystim rooms
  studystim rooms --target local`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog := logging.Init(logging.Options{DefaultLevel: slog.LevelWarn})
		defer closeLog()

		cfg, err := LoadClientConfig(clientOptions(cmd))
		if err != nil {
			return err
		}

		statsURL, err := cfg.StatsURL()
		if err != nil {
			return fmt.Errorf("stats url: %w", err)
		}

		stopSpinner := ui.RunSpinner("Fetching rooms...")
		stats, err := fetchStats(cmd.Context(), statsURL)
		stopSpinner()
		if err != nil {
			return err
		}

		rows := make([]ui.RoomRow, len(stats.Rooms))
		for i, r := range stats.Rooms {
			rows[i] = ui.RoomRow{ID: r.ID, Members: r.Members}
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RelayHeaderView(statsURL))
		fmt.Fprintln(cmd.OutOrStdout(), ui.RoomsView(stats.Sessions, rows, stats.MaxMembers))
		return nil
	},
}

func fetchStats(ctx context.Context, statsURL string) (*relay.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.NewResolver().DialContext
	client := &http.Client{Transport: transport}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", statsURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", statsURL, resp.Status)
	}

	var stats relay.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVar(&flagTarget, "target", "", "Relay deployment: local or remote")
	roomsCmd.Flags().StringVar(&flagServer, "server", "", "Relay websocket URL, overrides --target")
}
