package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/edgent/internal/client"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	prov      client.Provision
	noSave    bool
	skipCheck bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Send Wi-Fi credentials and a cloud token to the device",
	Long: `Send Wi-Fi credentials, the device token and the cloud endpoint to a
device in configuration mode.

The device checks the network is visible, then leaves configuration mode
and tries to connect. If it cannot, it reopens its hotspot and reports the
failure through 'edgent-cfg info' (last error).

Leave --pass empty on a terminal to be prompted for the password.`,
	Example: `  edgent-cfg provision --ssid HomeNet --token 0123456789abcdef0123456789abcdef
  edgent-cfg provision --ssid Lab --pass secret --token ... --ip 10.0.0.20 --mask 255.255.255.0 --gw 10.0.0.1`,
	RunE: runProvision,
}

func init() {
	f := provisionCmd.Flags()
	f.StringVar(&prov.SSID, "ssid", "", "Wi-Fi network name (required)")
	f.StringVar(&prov.Password, "pass", "", "Wi-Fi password")
	f.StringVar(&prov.Token, "token", "", "Device auth token (required)")
	f.StringVar(&prov.Host, "host", "", "Cloud server host (device default when empty)")
	f.IntVar(&prov.Port, "cloud-port", 0, "Cloud server port (device default when 0)")
	f.StringVar(&prov.IP, "ip", "", "Static IPv4 address")
	f.StringVar(&prov.Mask, "mask", "", "Static netmask")
	f.StringVar(&prov.GW, "gw", "", "Static gateway")
	f.StringVar(&prov.DNS, "dns", "", "Static primary DNS")
	f.StringVar(&prov.DNS2, "dns2", "", "Static secondary DNS")
	f.BoolVar(&noSave, "no-save", false, "Do not persist the configuration until the cloud accepts it")
	f.BoolVar(&skipCheck, "skip-check", false, "Do not check the network is visible before sending")

	_ = provisionCmd.MarkFlagRequired("ssid")
	_ = provisionCmd.MarkFlagRequired("token")
}

func runProvision(cmd *cobra.Command, args []string) error {
	if prov.Password == "" && !cmd.Flags().Changed("pass") {
		pass, err := ui.ReadPassword(fmt.Sprintf("Password for %s (empty for open network): ", prov.SSID))
		if err != nil && !errors.Is(err, ui.ErrNotTerminal) {
			return err
		}
		prov.Password = pass
	}
	prov.Save = !noSave

	if err := prov.Validate(); err != nil {
		return fail(cmd, "Invalid configuration", err)
	}

	c, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	params := []ui.Field{
		{Key: "Device", Value: c.BaseURL},
		{Key: "SSID", Value: prov.SSID},
		{Key: "Token", Value: logging.Secret(prov.Token)},
	}
	if prov.Host != "" {
		params = append(params, ui.Field{Key: "Cloud", Value: cloudAddr(prov.Host, prov.Port)})
	}
	if prov.IP != "" {
		params = append(params, ui.Field{Key: "Static IP", Value: prov.IP})
	}

	r := ui.NewRunner(ui.RunnerConfig{
		Title:   "Provision device",
		Command: "edgent-cfg provision",
		Params:  params,
		Steps: []string{
			"Read board info",
			"Check network is visible",
			"Send configuration",
		},
		Hint:   client.GetTroubleshootingHint,
		Output: cmd.OutOrStdout(),
	})

	return r.Run(func(onStep ui.StepCallback) ([]ui.Field, error) {
		ctx := cmd.Context()

		onStep(1, ui.StepRunning, "")
		info, err := c.BoardInfo(ctx)
		if err != nil {
			onStep(1, ui.StepFailed, "")
			return nil, err
		}
		onStep(1, ui.StepComplete, info.SSID)

		switch {
		case skipCheck:
			onStep(2, ui.StepSkipped, "--skip-check")
		case !info.WiFiScan:
			onStep(2, ui.StepSkipped, "device cannot scan")
		default:
			onStep(2, ui.StepRunning, "")
			nets, err := c.Scan(ctx)
			if err != nil {
				onStep(2, ui.StepFailed, "")
				return nil, err
			}
			n, ok := findNetwork(nets, prov.SSID)
			if !ok {
				onStep(2, ui.StepFailed, "")
				return nil, fmt.Errorf("network %q is not visible to the device (%d networks seen)", prov.SSID, len(nets))
			}
			onStep(2, ui.StepComplete, fmt.Sprintf("%s %d dBm", ui.SignalBars(n.RSSI), n.RSSI))
		}

		onStep(3, ui.StepRunning, "")
		res, err := c.Provision(ctx, &prov)
		if err != nil {
			onStep(3, ui.StepFailed, "")
			return nil, err
		}
		logging.Debug("Configuration accepted", zap.String("msg", res.Msg))
		onStep(3, ui.StepComplete, res.Msg)

		return []ui.Field{
			{Key: "Device", Value: info.SSID},
			{Key: "Network", Value: prov.SSID},
			{Key: "Next", Value: "the device leaves configuration mode and connects"},
		}, nil
	})
}

func findNetwork(nets []scan.Network, ssid string) (scan.Network, bool) {
	for _, n := range nets {
		if n.SSID == ssid {
			return n, true
		}
	}
	return scan.Network{}, false
}

func cloudAddr(host string, port int) string {
	if port == 0 {
		return host
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + strconv.Itoa(port)
	}
	return host + ":" + strconv.Itoa(port)
}
