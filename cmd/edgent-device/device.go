package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/muurk/edgent/internal/cloud"
	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/discovery"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/machine"
	"github.com/muurk/edgent/internal/ota"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/radio/stub"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/session"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/transport/ble"
	"github.com/muurk/edgent/internal/transport/portal"
	"github.com/muurk/edgent/internal/wait"
	"go.uber.org/zap"
)

// maxImageSize bounds firmware uploads to the simulated flash.
const maxImageSize = 16 << 20

// simNetworks is what the stub radio reports when scanning.
var simNetworks = []radio.ScanEntry{
	{SSID: "Home", BSSID: "02:11:22:33:44:01", RSSI: -48, Security: radio.SecWPA2, Channel: 6},
	{SSID: "Office", BSSID: "02:11:22:33:44:02", RSSI: -71, Security: radio.SecWPA2WPA3, Channel: 11},
	{SSID: "Cafe", BSSID: "02:11:22:33:44:03", RSSI: -83, Security: radio.SecOpen, Channel: 1},
}

// device owns what survives a simulated restart: the settings and the
// current state context, which the signal handler pokes.
type device struct {
	settings  config.Settings
	tlsConfig *tls.Config
	mac       string
	rc        atomic.Pointer[state.Context]
}

func newDevice(s config.Settings, tlsConfig *tls.Config) *device {
	// Stable identity derived from the template, so restarts keep the same
	// hotspot name and MAC.
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.Device.TemplateID+"/"+s.Device.TemplateName))
	if s.Device.UID == "" {
		s.Device.UID = strings.ToUpper(fmt.Sprintf("%02x%02x", id[14], id[15]))
	}
	if s.OTAPath == "" {
		s.OTAPath = filepath.Join(filepath.Dir(s.StorePath), "firmware.bin")
	}
	return &device{
		settings:  s,
		tlsConfig: tlsConfig,
		mac:       fmt.Sprintf("02:ED:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3]),
	}
}

// boot wires a fresh engine around the stored record and runs it until it
// stops or requests a restart.
func (d *device) boot(ctx context.Context) error {
	s := d.settings
	store := config.NewFileStore(s.StorePath)

	rec, err := store.Load()
	if err != nil {
		return err
	}
	if rec == nil {
		def := s.Default()
		rec = &def
	}

	rc := state.New(machine.InitialMode(rec), s.MaxRetries)
	d.rc.Store(rc)

	wifi := stub.NewWiFi(d.mac)
	wifi.SetNetworks(simNetworks)

	// A client is always associated with the simulated hotspot.
	waiter := wait.Waiter{
		Pump: func() {
			if wifi.Mode() == radio.ModeAP && wifi.StationCount() == 0 {
				wifi.SetStations(1)
			}
		},
	}

	tr, err := d.transport(wifi, rc, waiter)
	if err != nil {
		return err
	}

	sess := session.New(session.Config{
		Settings: s,
		WiFi:     wifi,
		Scanner:  scan.New(wifi, waiter, s.Timeouts.Scan),
		Store:    store,
		State:    rc,
	}, rec)

	cl := cloud.NewWSClient(cloud.Options{TLS: s.Cloud.TLS, TLSConfig: d.tlsConfig})
	defer cl.Disconnect()

	logging.Info("Booting",
		zap.String("device", s.DeviceName()),
		zap.String("transport", tr.Name()),
		zap.Stringer("mode", rc.Mode()),
		zap.String("record", store.Path()),
	)

	m := machine.New(machine.Config{
		Settings:  s,
		State:     rc,
		Store:     store,
		Record:    rec,
		WiFi:      wifi,
		Transport: tr,
		Session:   sess,
		Cloud:     cl,
		Waiter:    waiter,
	})
	return m.Run(ctx)
}

func (d *device) transport(wifi *stub.WiFi, rc *state.Context, waiter wait.Waiter) (transport.Transport, error) {
	s := d.settings
	switch s.Transport {
	case config.TransportBLE:
		return ble.New(ble.Config{
			Peripheral: stub.NewPeripheral(),
			WiFi:       wifi,
			Waiter:     waiter,
			Name:       s.DeviceName(),
			MTU:        s.BLE.MTU,
			QueueDepth: s.BLE.QueueDepth,
		}), nil
	default:
		p, err := portal.New(portal.Config{
			WiFi:     wifi,
			Settings: s.Portal,
			Name:     s.DeviceName(),
			TXT:      discovery.TXTRecords(s.Device.TemplateID, s.Device.FirmwareVersion, s.Device.UID),
			Updater:  ota.NewFileUpdater(s.OTAPath, maxImageSize),
			State:    rc,
			Waiter:   waiter,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// cloudTLSConfig builds the client TLS config for wss:// endpoints.
func cloudTLSConfig(caPath string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if insecure {
		logging.Warn("Cloud certificate verification disabled")
		cfg.InsecureSkipVerify = true
	}
	if caPath == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cloud CA: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
