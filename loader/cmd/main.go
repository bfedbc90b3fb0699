package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ustawy/config"
	"ustawy/loader/service"
	"ustawy/logger"
	"ustawy/model"
	"ustawy/store"
)

var (
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "loader",
	Short:         "Index legal documents into the vector store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index every supported file in dir (defaults to LOADER_DATA_DIR)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
			dir := cfg.Loader.DataDir
			if len(args) == 1 {
				dir = args[0]
			}
			stats, err := svc.IngestDir(ctx, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (%d unchanged, %d stale removed), %d chunks into %q\n",
				stats.Documents, stats.Skipped, stats.Removed, stats.Chunks, svc.Collection())
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch LOADER_SOURCE_DIR and index files dropped into it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, _ *config.Config, svc *service.Service) error {
			_, err := svc.Run(ctx)
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	rootCmd.AddCommand(ingestCmd, watchCmd)
}

func withService(ctx context.Context, fn func(context.Context, *config.Config, *service.Service) error) error {
	cfg, err := config.Load(envFile, configFile)
	if err != nil {
		return err
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	embedder, err := model.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	tok, err := model.NewTokenizer()
	if err != nil {
		slog.Warn("tiktoken unavailable, counting words instead", "error", err)
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing store", "error", err)
		}
	}()

	return fn(ctx, cfg, service.New(cfg, st, embedder, tok))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("loader failed", "error", err)
		stop()
		os.Exit(1)
	}
}
