package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studystim/studystim/internal/config"
	"github.com/studystim/studystim/internal/logging"
	"github.com/studystim/studystim/internal/server"
)

var (
	flagPort       int
	flagMaxMembers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the study room relay server",
	Long: `Run the relay that study room members connect to.

Examples:
  studystim serve
  studystim serve --port 9000 --max-members 0
  PORT=8081 studystim serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog := logging.Init(logging.Options{DefaultLevel: slog.LevelInfo})
		defer closeLog()

		opts := config.Options{ConfigPath: flagConfig, Port: flagPort}
		if cmd.Flags().Changed("max-members") {
			opts.MaxRoomMembers = &flagMaxMembers
		}
		cfg, err := config.LoadServer(opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("starting relay", "port", cfg.Port, "max_members", cfg.MaxRoomMembers)
		return server.New(cfg).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Listen port (default 8080)")
	serveCmd.Flags().IntVarP(&flagMaxMembers, "max-members", "m", config.DefaultMaxRoomMembers, "Members allowed per room, 0 for unlimited")
}
