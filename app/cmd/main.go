package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ustawy/app/chat"
	"ustawy/app/server"
	"ustawy/app/tui"
	"ustawy/config"
	"ustawy/logger"
)

var (
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "ustawy",
	Short:         "Legal assistant chat over the indexed regulations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web chat and the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := load(os.Stdout)
		if err != nil {
			return err
		}
		backend, err := server.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		return server.NewServer(cfg, backend).Run(ctx)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// the terminal belongs to the chat view, logs go to stderr at warn level
		cfg, err := load(os.Stderr)
		if err != nil {
			return err
		}
		backend, err := server.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		session := chat.NewSession(backend.Engine, backend.Settings)
		_, err = tea.NewProgram(tui.New(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd, chatCmd)
}

func load(out io.Writer) (*config.Config, error) {
	cfg, err := config.Load(envFile, configFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if out == os.Stderr && logger.ParseLevel(level) < slog.LevelWarn {
		level = "warn"
	}
	logger.New(logger.Config{Level: level, Format: cfg.Log.Format, Output: out})
	return cfg, nil
}

func closeBackend(b *server.Backend) {
	if err := b.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("ustawy failed", "error", err)
		stop()
		os.Exit(1)
	}
}
