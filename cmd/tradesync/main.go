package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tradesync/config"
	"github.com/unkn0wn-root/tradesync/internal/app"
)

var (
	cfgPath string
	envPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:           "tradesync",
	Short:         "Cached brokerage API access and live order streams",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "tradesync.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(fetchCmd, streamCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("tradesync failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// setup loads configuration, installs the tint handler as the default slog
// logger and builds the App.
func setup(ctx context.Context) (*app.App, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if isDebug || cfg.Log.Level == "debug" {
		level = slog.LevelDebug
		cfg.Log.Level = "debug"
	} else if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, err
	}
	sl := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(sl)

	return app.New(ctx, cfg, sl)
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}
