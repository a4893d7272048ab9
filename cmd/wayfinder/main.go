// Command wayfinder runs the hands-free pedestrian guidance service and a
// device simulator for driving it without a phone.
//
// Usage:
//
//	wayfinder serve --config wayfinder.yaml
//	wayfinder simulate --route walk.geojson --url ws://localhost:8080/ws/device
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-wayfinder/internal/log"
)

var (
	debug    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "wayfinder",
	Short: "Hands-free pedestrian navigation guidance",
	Long: `wayfinder guides a walking user to a destination with speech and
vibration only. A phone connects over websocket, streams location and
orientation, and renders the announcements the engine produces.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

// initLogging sets up the global logger. Flags win over the configured level.
func initLogging(configured string) {
	level := configured
	switch {
	case debug:
		level = "debug"
	case logLevel != "":
		level = logLevel
	}
	log.Init(level)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
