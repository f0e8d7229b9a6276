package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/logging"
	"github.com/studystim/studystim/internal/ui"
)

const suggestTimeout = 30 * time.Second

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a new study room and join it",
	Long: `Ask the relay for an unused room name, print it for your study partner,
then join the room.

Examples:
  studystim create --username alice
  studystim create --target local`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog := logging.Init(logging.Options{DefaultLevel: slog.LevelError})
		defer closeLog()

		cfg, err := LoadClientConfig(clientOptions(cmd))
		if err != nil {
			return err
		}
		username, err := resolveUsername(cfg)
		if err != nil {
			return err
		}

		warnNetwork(cfg)
		session := NewSession(cfg, mediaSource(username))

		sp := ui.NewConnectionSpinner("Asking the study server for a room...")
		sp.Start()
		ctx, cancel := context.WithTimeout(context.Background(), suggestTimeout)
		roomID, err := session.Suggest(ctx)
		cancel()
		if err != nil {
			sp.Error("No room from the study server")
			session.Close()
			return fmt.Errorf("create room: %w", err)
		}
		sp.Success("Got a room name")

		fmt.Println(ui.RoomInfoView(roomID, "studystim join "+roomID))
		fmt.Println()
		return runRoomWith(session, roomID, username)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addClientFlags(createCmd)
}
