package main

import (
	"context"
	"os"

	"github.com/muurk/edgent/internal/client"
	"github.com/muurk/edgent/internal/discovery"
	"github.com/muurk/edgent/internal/ui"
	"github.com/muurk/edgent/internal/wizard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	wizardToken string
	wizardHost  string
	wizardPort  int
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup: discover, pick a network, provision",
	Long: `Walk through device setup interactively.

The wizard discovers devices in configuration mode, lists the networks the
chosen device can see and sends the credentials you enter. Use --token to
prefill the device token.`,
	RunE: runWizard,
}

func init() {
	f := wizardCmd.Flags()
	f.StringVar(&wizardToken, "token", "", "Prefill the device token")
	f.StringVar(&wizardHost, "host", "", "Cloud server host sent with the configuration")
	f.IntVar(&wizardPort, "cloud-port", 0, "Cloud server port sent with the configuration")
	f.DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for devices")

	rootCmd.AddCommand(wizardCmd)
}

func runWizard(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ui.ErrNotTerminal
	}

	final, err := wizard.Run(cmd.Context(), wizard.Config{
		Discover: func(ctx context.Context) ([]*discovery.Device, error) {
			return discovery.ScanForDevices(ctx, scanTimeout)
		},
		Connect: func(d *discovery.Device) wizard.Device {
			c := client.NewClientWithURL(d.BaseURL())
			c.SetTimeout(timeout)
			c.SetRetry(retries, client.DefaultRetryDelay)
			return c
		},
		Token: wizardToken,
		Host:  wizardHost,
		Port:  wizardPort,
	})
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	switch final.Screen {
	case wizard.ScreenSuccess:
		p.PrintSuccess("Device provisioned")
	case wizard.ScreenFailure:
		p.PrintError("Setup failed", final.Err, client.GetTroubleshootingHint(final.Err))
		return final.Err
	}
	return nil
}
