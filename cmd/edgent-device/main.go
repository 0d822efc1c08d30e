// Edgent-device runs the provisioning engine as a host simulation.
//
// The radios are in-memory stubs, everything above them is real: the
// captive portal with its DNS responder and mDNS advertisement, the BLE
// GATT transport, the websocket cloud client and the OTA writer. Use it
// together with edgent-cfg and edgent-cloud to exercise a full
// provisioning round trip on one machine.
//
// Usage:
//
//	edgent-device [command] [flags]
//
// See 'edgent-device --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	settingsPath string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "edgent-device",
	Short: "Edgent device simulator",
	Long: `Runs the Edgent provisioning engine on the host.

The device starts in configuration mode until it holds a validated
configuration, then joins the network and connects to the cloud.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", "", "Settings file (YAML); EDGENT_* environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $EDGENT_LOG_LEVEL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("edgent-device"))
	},
}
