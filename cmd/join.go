package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/call"
	"github.com/studystim/studystim/internal/config"
	"github.com/studystim/studystim/internal/logging"
	"github.com/studystim/studystim/internal/ui"
)

// roomCapacity is what the room screen shows; the UI is built for pairs.
const roomCapacity = 2

var (
	flagTarget            string
	flagServer            string
	flagUsername          string
	flagSTUN              string
	flagTURN              string
	flagTURNUser          string
	flagTURNPass          string
	flagRelay             bool
	flagListenOnly        bool
	flagReconnectAttempts int
	flagReconnectDelay    time.Duration
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join a study room",
	Long: `Join a study room and open the room screen.

Type to chat. Commands: /start, /pause, /reset, /timer <minutes>, /leave.

Examples:
  studystim join calculus-pencil-calm-otter --username alice
  studystim join exam-prep --target local
  studystim join exam-prep --listen-only --relay --turn turn:turn.example.org:3478`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog := logging.Init(logging.Options{DefaultLevel: slog.LevelError})
		defer closeLog()

		cfg, err := LoadClientConfig(clientOptions(cmd))
		if err != nil {
			return err
		}
		return runRoom(cfg, args[0])
	},
}

func clientOptions(cmd *cobra.Command) config.Options {
	opts := config.Options{
		ConfigPath:     flagConfig,
		Target:         flagTarget,
		ServerURL:      flagServer,
		Username:       flagUsername,
		ReconnectDelay: flagReconnectDelay,
		STUNServer:     flagSTUN,
		TURNServer:     flagTURN,
		TURNUser:       flagTURNUser,
		TURNPass:       flagTURNPass,
		ForceRelay:     flagRelay,
	}
	if cmd.Flags().Changed("reconnect-attempts") {
		opts.MaxReconnectAttempts = &flagReconnectAttempts
	}
	return opts
}

func resolveUsername(cfg *config.ClientConfig) (string, error) {
	if name := strings.TrimSpace(cfg.Username); name != "" {
		return name, nil
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	return "", errors.New("username is required (use --username or STUDYSTIM_USERNAME)")
}

func mediaSource(username string) call.MediaSource {
	if flagListenOnly {
		return call.NoMedia{}
	}
	return call.SyntheticSource{StreamID: "studystim-" + username}
}

// warnNetwork prints what the call will do on this network before the room
// screen takes over the terminal.
func warnNetwork(cfg *config.ClientConfig) {
	if cfg.ForceRelay {
		ui.PrintWarning("Relay mode forced: audio and video go through the TURN server")
	} else if call.ShouldForceRelay() {
		if cfg.GetTURNServers() != nil {
			ui.PrintWarning("VPN or carrier-grade NAT detected: using the TURN server for the call")
		} else {
			ui.PrintWarning("VPN or carrier-grade NAT detected and no TURN server set: the call may not connect")
		}
	}
	if flagListenOnly {
		ui.PrintInfo("Listen-only: your camera and microphone stay off")
	}
}

// runRoom joins roomID and runs the room screen until the user leaves.
func runRoom(cfg *config.ClientConfig, roomID string) error {
	username, err := resolveUsername(cfg)
	if err != nil {
		return err
	}
	warnNetwork(cfg)
	return runRoomWith(NewSession(cfg, mediaSource(username)), roomID, username)
}

func runRoomWith(session *Session, roomID, username string) error {
	defer session.Close()

	model := ui.NewRoomModel(roomID, username, roomCapacity, session)
	p := tea.NewProgram(model, tea.WithAltScreen())
	session.Attach(p)

	session.Join(roomID, username)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("room screen: %w", err)
	}
	ui.PrintInfof("Left room %s", roomID)
	return nil
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTarget, "target", "", "Relay deployment: local or remote")
	cmd.Flags().StringVar(&flagServer, "server", "", "Relay websocket URL, overrides --target")
	cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Name shown to your study partner")
	cmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server(s), comma separated")
	cmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	cmd.Flags().BoolVarP(&flagListenOnly, "listen-only", "l", false, "Join the call without sending camera or microphone")
	cmd.Flags().IntVar(&flagReconnectAttempts, "reconnect-attempts", config.DefaultMaxReconnectAttempts, "Reconnect attempts before giving up")
	cmd.Flags().DurationVar(&flagReconnectDelay, "reconnect-delay", 0, "Base reconnect delay, grows with each attempt (default 2s)")
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addClientFlags(joinCmd)
}
