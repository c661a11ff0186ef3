// Package cli implements the scalewatch command-line interface using
// Cobra. `serve` runs the bridge daemon; the other subcommands talk to
// a running daemon over its HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scalewatch",
	Short: "scalewatch — LoRaWAN weight-telemetry bridge",
	Long: `scalewatch bridges weight-sensing LoRaWAN nodes to live dashboards
and a durable per-device record log.

It subscribes to a Things Stack application over MQTT, normalizes every
uplink into a canonical record, fans it out to live subscribers, keeps a
bounded recent-history window, and appends each record to a per-device
CSV log. Downlink commands (tare etc.) go back out over the same broker
connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
