package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"

	"copilot-chat/internal/agent"
	"copilot-chat/internal/auth"
	"copilot-chat/internal/config"
	"copilot-chat/internal/display"
	"copilot-chat/internal/session"
	"copilot-chat/internal/stream"
	"copilot-chat/internal/tui"
)

const version = "0.1.0"

const logFile = "copilot-chat.log"

var (
	activeProfile string
	verbose       bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "copilot-chat",
	Short: "Chat with a Microsoft Copilot Studio agent",
	Long: `copilot-chat talks to a Copilot Studio agent from the terminal or a local
web page. Answers stream in live, with numbered citations, adaptive cards and
follow-up suggestions.

Run without arguments to start the interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&activeProfile, "profile", "", "Use a named config profile")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		display.Error(err.Error())
		os.Exit(1)
	}
}

// newLogger builds the process logger. The interactive chat owns the
// terminal, so it logs to a file; other commands log to stderr.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case cmd.Name() == "serve":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	if cmd == cmd.Root() {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
		path := filepath.Join(dir, logFile)
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	return cfg.Build()
}

// ─── Wiring ──────────────────────────────────────────────────────────────────

// loadConfig loads the active profile and checks that it can reach an agent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clientFactory builds agent clients for cfg. All clients share one token
// source so refreshes are serialized and persisted once.
func clientFactory(cfg *config.Config, tokens oauth2.TokenSource) session.ClientFactory {
	return func(ctx context.Context) (agent.Client, error) {
		base := cfg.BaseURL
		if base == "" {
			var err error
			base, err = agent.EnvironmentURL(cfg.EnvironmentID, cfg.AgentIdentifier)
			if err != nil {
				return nil, err
			}
		}
		return agent.NewHTTPClient(agent.Options{
			BaseURL: base,
			Tokens:  tokens,
			Logger:  logger.Named("agent"),
		}), nil
	}
}

// sessionMaker returns a constructor for sessions that talk to cfg's agent.
func sessionMaker(cfg *config.Config) func() *session.Session {
	tokens := auth.TokenSource(context.Background(), cfg, logger.Named("auth"))
	factory := clientFactory(cfg, tokens)
	aggregator := stream.New(cfg.TurnTimeout, logger.Named("stream"))
	return func() *session.Session {
		return session.New(session.Options{
			Factory:        factory,
			Aggregator:     aggregator,
			ConnectTimeout: cfg.ConnectTimeout,
			Logger:         logger.Named("session"),
		})
	}
}

// ─── interactive ─────────────────────────────────────────────────────────────

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return tui.Run(tui.Options{
		Session: sessionMaker(cfg)(),
		Version: version,
		Agent:   cfg.AgentIdentifier,
		User:    cfg.Username,
		Logger:  logger,
	})
}
