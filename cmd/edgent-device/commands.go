package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/machine"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	transportKind string
	cloudCA       string
	insecure      bool
	forceYes      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated device",
	Long: `Run the provisioning engine until interrupted.

Signals:
  SIGUSR1  reset the stored configuration (like a long button press)
  SIGUSR2  toggle the "button held" input, which keeps the device in ERROR`,
	Example: `  # Portal on unprivileged ports, talking to a local development cloud
  EDGENT_PORTAL_HTTP_ADDR=:8080 EDGENT_PORTAL_DNS_ADDR=:5353 \
    edgent-device run --cloud-ca cloud.pem

  # Provision over the BLE transport instead
  edgent-device run --transport ble`,
	RunE: runDevice,
}

func init() {
	runCmd.Flags().StringVar(&transportKind, "transport", "", "Configuration transport (portal, ble); overrides settings")
	runCmd.Flags().StringVar(&cloudCA, "cloud-ca", "", "PEM file with extra root certificates for the cloud endpoint")
	runCmd.Flags().BoolVar(&insecure, "insecure", false, "Skip cloud certificate verification")
	resetCmd.Flags().BoolVarP(&forceYes, "yes", "y", false, "Do not ask for confirmation")
}

func loadSettings() (config.Settings, error) {
	s, err := config.LoadSettings(settingsPath)
	if err != nil {
		return config.Settings{}, err
	}
	if transportKind != "" {
		s.Transport = transportKind
		if err := s.Validate(); err != nil {
			return config.Settings{}, err
		}
	}
	return s, nil
}

func runDevice(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	tlsConfig, err := cloudTLSConfig(cloudCA, insecure)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev := newDevice(settings, tlsConfig)
	go dev.handleSignals(ctx)

	for {
		err := dev.boot(ctx)
		if errors.Is(err, machine.ErrRestart) {
			logging.Info("Restarting")
			continue
		}
		if errors.Is(err, context.Canceled) {
			logging.Info("Stopped")
			return nil
		}
		return err
	}
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored configuration record",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		store := config.NewFileStore(settings.StorePath)
		rec, err := store.Load()
		if err != nil {
			return err
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if rec == nil {
			p.PrintWarning("No configuration stored",
				ui.Field{Key: "Record", Value: store.Path()},
				ui.Field{Key: "Boot mode", Value: state.WaitConfig.String()},
			)
			return nil
		}

		p.PrintHeader(settings.DeviceName(), "edgent-device show", recordFields(store.Path(), rec)...)
		return nil
	},
}

func recordFields(path string, rec *config.Record) []ui.Field {
	fields := []ui.Field{
		{Key: "Record", Value: path},
		{Key: "Boot mode", Value: machine.InitialMode(rec).String()},
		{Key: "Valid", Value: strconv.FormatBool(rec.Has(config.FlagValid))},
		{Key: "WiFi SSID", Value: rec.WiFiSSID},
		{Key: "WiFi password", Value: logging.Secret(rec.WiFiPass)},
		{Key: "Token", Value: logging.Secret(rec.CloudToken)},
		{Key: "Cloud", Value: fmt.Sprintf("%s:%d", rec.CloudHost, rec.CloudPort)},
	}
	if rec.Has(config.FlagStaticIP) {
		fields = append(fields,
			ui.Field{Key: "Static IP", Value: rec.StaticIP},
			ui.Field{Key: "Mask", Value: rec.StaticMask},
			ui.Field{Key: "Gateway", Value: rec.StaticGW},
			ui.Field{Key: "DNS", Value: rec.StaticDNS},
		)
	}
	fields = append(fields,
		ui.Field{Key: "Last error", Value: fmt.Sprintf("%d (%s)", int(rec.LastError), rec.LastError)},
		ui.Field{Key: "Firmware", Value: rec.FirmwareVersion},
	)
	return fields
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory-reset the stored configuration record",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		store := config.NewFileStore(settings.StorePath)

		if !forceYes && !ui.Confirm(cmd.OutOrStdout(), cmd.InOrStdin(), "Reset device configuration",
			"Erases the stored Wi-Fi credentials and device token",
			"The device returns to configuration mode on next start",
		) {
			return nil
		}

		if err := resetRecord(store); err != nil {
			return err
		}
		logging.Info("Configuration reset", zap.String("path", store.Path()))
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration reset", ui.Field{Key: "Record", Value: store.Path()})
		return nil
	},
}

// resetRecord erases the stored record. The next start finds no record and
// boots from the settings defaults in configuration mode.
func resetRecord(store *config.FileStore) error {
	return store.Remove()
}
