// Command acpdemo exercises the SDK end to end: an echo agent served
// over stdio or WebSocket, and a driver client that connects, opens a
// session, and streams a prompt.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:          "acpdemo",
		Short:        "Agent Client Protocol demo peers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	root.AddCommand(newAgentCmd())
	root.AddCommand(newClientCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes slog to stderr so stdout stays clean for the
// stdio transport.
func setupLogging(level string) error {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
