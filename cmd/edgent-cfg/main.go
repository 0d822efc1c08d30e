// Edgent-cfg configures edgent devices through their captive portal.
//
// Join the device's hotspot, then discover it, inspect it and send it
// Wi-Fi credentials and a cloud token. The tool talks plain HTTP to the
// portal; it needs no access to the device itself.
//
// Usage:
//
//	edgent-cfg [command] [flags]
//
// See 'edgent-cfg --help' for available commands.
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

var rootCmd = &cobra.Command{
	Use:   "edgent-cfg",
	Short: "Edgent device configuration utility",
	Long: `Configure Edgent devices over their configuration portal.

A device waiting for configuration runs a Wi-Fi hotspot named after it
(e.g. "Edgent Lamp-4F2K"). Join that hotspot, then run 'edgent-cfg info'
to check the device is reachable and 'edgent-cfg provision' to set it up,
or run 'edgent-cfg wizard' for an interactive setup.`,
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
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("edgent-cfg"))
	},
}
