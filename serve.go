package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"copilot-chat/internal/card"
	"copilot-chat/internal/display"
	"copilot-chat/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat as a local web page",
	Long: `Starts a web server with a browser chat page. Each browser gets its own
conversation, kept in memory until the server stops.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8501)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	srv := web.New(web.Options{
		Sessions: web.NewSessions(sessionMaker(cfg)),
		Cards:    card.NewRenderer(logger.Named("card")),
		Logger:   logger.Named("web"),
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	display.Success(fmt.Sprintf("Serving on http://%s", addr))
	display.Info("Agent:", cfg.AgentIdentifier)
	fmt.Fprintf(display.Out, "  %sPress Ctrl+C to stop%s\n\n", display.Dim, display.Reset)

	logger.Info("web server starting", zap.String("addr", addr))
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	display.Success("Server stopped")
	return nil
}
