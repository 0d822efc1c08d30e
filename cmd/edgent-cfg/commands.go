package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/muurk/edgent/internal/client"
	"github.com/muurk/edgent/internal/discovery"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/ui"
	"github.com/spf13/cobra"
)

// Common flags
var (
	deviceAddr  string
	deviceName  string
	devicePort  int
	timeout     time.Duration
	retries     int
	jsonOutput  bool
	logLevel    string
	scanTimeout time.Duration
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&deviceAddr, "device", client.DefaultAddress, "Portal address of the device")
	pf.StringVar(&deviceName, "name", "", "Find the device by hotspot name or UID over mDNS instead of --device")
	pf.IntVar(&devicePort, "port", 80, "Portal HTTP port")
	pf.DurationVar(&timeout, "timeout", client.DefaultTimeout, "HTTP request timeout")
	pf.IntVar(&retries, "retries", client.DefaultMaxRetries, "Retries for read-only requests")
	pf.BoolVar(&jsonOutput, "json", false, "Print JSON instead of formatted output")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $EDGENT_LOG_LEVEL")

	discoverCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for devices")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(updateCmd)
}

// newClient resolves the target device and returns a portal client for it.
func newClient(ctx context.Context) (*client.Client, error) {
	host, port := deviceAddr, devicePort
	if deviceName != "" {
		s := discovery.NewScanner()
		d, err := s.WaitForDevice(ctx, deviceName)
		if err != nil {
			return nil, err
		}
		host, port = d.IP, d.Port
	}

	c := client.NewClientWithURL((&discovery.Device{IP: host, Port: port}).BaseURL())
	c.SetTimeout(timeout)
	c.SetRetry(retries, client.DefaultRetryDelay)
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints a failure box and returns err so the exit status is set.
func fail(cmd *cobra.Command, title string, err error) error {
	if !jsonOutput {
		ui.NewPrinter(cmd.OutOrStdout()).PrintError(title, err, client.GetTroubleshootingHint(err))
	}
	return err
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find devices in configuration mode over mDNS",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := discovery.ScanForDevices(cmd.Context(), scanTimeout)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), devices)
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if len(devices) == 0 {
			p.PrintWarning("No devices found",
				ui.Field{Key: "Listened", Value: scanTimeout.String()},
				ui.Field{Key: "Hint", Value: "join the device hotspot or use --device"},
			)
			return nil
		}

		rows := make([][]string, 0, len(devices))
		for _, d := range devices {
			rows = append(rows, []string{d.Name, d.Addr(), d.TemplateID, d.Firmware, d.UID})
		}
		p.PrintTable([]string{"NAME", "ADDRESS", "TEMPLATE", "FIRMWARE", "UID"}, rows)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the device's board information",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		info, err := c.BoardInfo(cmd.Context())
		if err != nil {
			return fail(cmd, "Board info", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), info)
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintHeader(info.SSID, c.BaseURL, boardFields(info)...)
		return nil
	},
}

func boardFields(info *transport.BoardInfo) []ui.Field {
	fields := []ui.Field{
		{Key: "Board", Value: info.Board},
		{Key: "Template", Value: info.TemplateID},
		{Key: "Firmware", Value: info.FirmwareType + " " + info.FirmwareVersion},
		{Key: "MAC", Value: info.MAC},
	}
	if info.UID != "" {
		fields = append(fields, ui.Field{Key: "UID", Value: info.UID})
	}
	if info.BSSID != "" {
		fields = append(fields, ui.Field{Key: "BSSID", Value: info.BSSID})
	}
	return append(fields,
		ui.Field{Key: "Last error", Value: lastError(info.LastError)},
		ui.Field{Key: "Wi-Fi scan", Value: strconv.FormatBool(info.WiFiScan)},
		ui.Field{Key: "Static IP", Value: strconv.FormatBool(info.StaticIP)},
	)
}

func lastError(code int) string {
	switch code {
	case 0:
		return "none"
	case 700:
		return "700 (configuration rejected)"
	case 701:
		return "701 (could not join Wi-Fi)"
	case 702:
		return "702 (could not reach cloud)"
	case 703:
		return "703 (invalid token)"
	case 801:
		return "801 (internal error)"
	default:
		return strconv.Itoa(code)
	}
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List Wi-Fi networks the device can see",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		nets, err := c.Scan(cmd.Context())
		if err != nil {
			return fail(cmd, "Wi-Fi scan", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), nets)
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintTable(
			[]string{"SSID", "SIGNAL", "RSSI", "SECURITY", "CH", "BSSID"},
			networkRows(nets),
		)
		return nil
	},
}

func networkRows(nets []scan.Network) [][]string {
	rows := make([][]string, 0, len(nets))
	for _, n := range nets {
		rows = append(rows, []string{
			n.SSID,
			ui.SignalBars(n.RSSI),
			strconv.Itoa(n.RSSI),
			n.Security,
			strconv.Itoa(n.Channel),
			n.BSSID,
		})
	}
	return rows
}

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase the device configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetForce && !ui.Confirm(cmd.OutOrStdout(), cmd.InOrStdin(), "Reset device configuration",
			"Erases the device's Wi-Fi credentials and token",
			"The device restarts into configuration mode",
		) {
			return nil
		}
		return simpleCommand(cmd, "Reset", (*client.Client).Reset)
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleCommand(cmd, "Reboot", (*client.Client).Reboot)
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "yes", "y", false, "Do not ask for confirmation")
}

func simpleCommand(cmd *cobra.Command, title string, call func(*client.Client, context.Context) (*client.Result, error)) error {
	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	res, err := call(c, cmd.Context())
	if err != nil {
		return fail(cmd, title, err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess(title, ui.Field{Key: "Device", Value: res.Msg})
	return nil
}

var updateCmd = &cobra.Command{
	Use:   "update <image>",
	Short: "Upload a firmware image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}

		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		// Uploads over a soft AP are slow; the read timeout alone is too short.
		c.SetTimeout(0)

		r := ui.NewRunner(ui.RunnerConfig{
			Title:   "Firmware update",
			Command: "edgent-cfg update",
			Params: []ui.Field{
				{Key: "Device", Value: c.BaseURL},
				{Key: "Image", Value: filepath.Base(args[0])},
				{Key: "Size", Value: fmt.Sprintf("%d bytes", st.Size())},
			},
			Steps:  []string{"Upload image"},
			Hint:   client.GetTroubleshootingHint,
			Output: cmd.OutOrStdout(),
		})
		return r.Run(func(onStep ui.StepCallback) ([]ui.Field, error) {
			onStep(1, ui.StepRunning, "")
			if err := c.Update(cmd.Context(), filepath.Base(args[0]), f); err != nil {
				onStep(1, ui.StepFailed, "")
				return nil, err
			}
			onStep(1, ui.StepComplete, "device restarting")
			return nil, nil
		})
	},
}
