package machine

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/muurk/edgent/internal/cloud"
	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/session"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/wait"
	"go.uber.org/zap"
)

// ErrRestart is returned by Step and Run when the device must restart.
var ErrRestart = errors.New("restart requested")

const (
	// staDelay lets the last configuration response leave before the
	// radio is switched.
	staDelay = time.Second
	// radioOffSettle is the pause between switching the radio off and on.
	radioOffSettle = 100 * time.Millisecond
	// runningPoll bounds one RUNNING step.
	runningPoll = time.Second
)

// Metadata keys announced to the cloud after the first successful handshake.
const (
	MetaDeviceUID   = "Device UID"
	MetaHotspotName = "Hotspot Name"
	MetaNetwork     = "Network"

	// EventFirmwareUpdated is sent when a new firmware reaches the cloud.
	EventFirmwareUpdated = "sys_ota"
)

// Config wires a Machine to its collaborators.
type Config struct {
	Settings  config.Settings
	State     *state.Context
	Store     config.Store
	Record    *config.Record
	WiFi      radio.WiFi
	Transport transport.Transport
	Session   *session.Session
	Cloud     cloud.Client
	// Waiter supplies the clock, poll interval and pump. Cancellation is
	// set per wait by the machine.
	Waiter wait.Waiter
}

// Machine is the connectivity state machine.
type Machine struct {
	settings  config.Settings
	rc        *state.Context
	store     config.Store
	record    *config.Record
	wifi      radio.WiFi
	transport transport.Transport
	session   *session.Session
	cloud     cloud.Client
	waiter    wait.Waiter
}

// New returns a machine. cfg.Record is shared with the session and must not
// be nil.
func New(cfg Config) *Machine {
	w := cfg.Waiter
	if w.Clock == nil {
		w.Clock = wait.SystemClock{}
	}
	if w.Interval <= 0 {
		w.Interval = wait.DefaultInterval
	}
	return &Machine{
		settings:  cfg.Settings,
		rc:        cfg.State,
		store:     cfg.Store,
		record:    cfg.Record,
		wifi:      cfg.WiFi,
		transport: cfg.Transport,
		session:   cfg.Session,
		cloud:     cfg.Cloud,
		waiter:    w,
	}
}

// InitialMode is the boot mode for a stored record: a validated
// configuration goes straight to the network, anything else waits for
// provisioning.
func InitialMode(rec *config.Record) state.Mode {
	if rec != nil && rec.Has(config.FlagValid) {
		return state.ConnectingNet
	}
	return state.WaitConfig
}

// Run steps the machine until the context is done or a restart is due.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if err := m.Step(ctx); err != nil {
			return err
		}
	}
}

// Step runs the handler of the current mode once.
func (m *Machine) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.restartDue() {
		return ErrRestart
	}

	var err error
	switch mode := m.rc.Mode(); mode {
	case state.WaitConfig, state.Configuring:
		err = m.configMode(ctx)
	case state.SwitchToSTA:
		m.switchToSTA(m.waitIn(ctx, mode))
	case state.ConnectingNet:
		m.connectNet(m.waitIn(ctx, mode))
	case state.ConnectingCloud:
		m.connectCloud(m.waitIn(ctx, mode))
	case state.Running:
		m.running(m.waitIn(ctx, mode))
	case state.Error:
		err = m.errorMode(m.waitIn(ctx, mode))
	case state.ResetConfig:
		err = m.resetConfig()
	default:
		logging.Error("Unknown mode, waiting for configuration", zap.Stringer("mode", mode))
		m.rc.SetMode(state.WaitConfig)
	}
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.restartDue() {
		return ErrRestart
	}
	return nil
}

func (m *Machine) restartDue() bool {
	return m.rc.RestartDue(m.waiter.Clock.Now())
}

// waitIn returns a waiter cancelled when the mode leaves mode.
func (m *Machine) waitIn(ctx context.Context, mode state.Mode) wait.Waiter {
	w := m.waiter
	w.Cancelled = func() bool {
		return !m.rc.Is(mode) || ctx.Err() != nil || m.restartDue()
	}
	return w
}

// configMode serves the configuration transport for as long as the machine
// stays in WAIT_CONFIG or CONFIGURING.
func (m *Machine) configMode(ctx context.Context) error {
	if err := m.transport.Attach(ctx); err != nil {
		logging.Error("Failed to attach configuration transport",
			zap.String("transport", m.transport.Name()),
			zap.Error(err),
		)
		m.fail(config.ErrInternal)
		return nil
	}
	defer func() {
		if err := m.transport.Detach(); err != nil {
			logging.Warn("Failed to detach configuration transport", zap.Error(err))
		}
	}()

	m.session.Reset()
	logging.Info("Waiting for configuration",
		zap.String("transport", m.transport.Name()),
		zap.String("device", m.settings.DeviceName()),
	)

	w := m.waiter
	w.Cancelled = func() bool { return ctx.Err() != nil || m.restartDue() }
	for m.rc.Mode().IsConfig() {
		m.serveTransport()
		if !m.rc.Mode().IsConfig() {
			break
		}
		if w.Sleep(w.Interval) == wait.Cancelled {
			break
		}
	}
	return nil
}

// serveTransport handles every queued command and applies the detach rule.
func (m *Machine) serveTransport() {
	t := m.transport
	t.Poll()
	for t.HasMessage() {
		cmd := t.Receive()
		if cmd == nil {
			break
		}
		m.session.Handle(t, cmd)
		if !m.rc.Mode().IsConfig() {
			return
		}
	}
	// Finishes a request the session left unanswered.
	t.Poll()

	if m.rc.Is(state.Configuring) && !t.PeerConnected() {
		m.rc.SetMode(state.WaitConfig)
	}
}

func (m *Machine) switchToSTA(w wait.Waiter) {
	logging.Info("Switching to STA")

	if w.Sleep(staDelay) == wait.Cancelled {
		return
	}
	if err := m.wifi.SetMode(radio.ModeOff); err != nil {
		logging.Warn("Failed to switch radio off", zap.Error(err))
	}
	if w.Sleep(radioOffSettle) == wait.Cancelled {
		return
	}
	if err := m.wifi.SetMode(radio.ModeSTA); err != nil {
		logging.Warn("Failed to switch radio to STA", zap.Error(err))
	}
	m.rc.SetMode(state.ConnectingNet)
}

func (m *Machine) connectNet(w wait.Waiter) {
	rec := m.record
	logging.Info("Connecting to WiFi", zap.String("ssid", rec.WiFiSSID))

	// The hostname only sticks while the station interface is up.
	if err := m.wifi.SetMode(radio.ModeSTA); err != nil {
		logging.Warn("Failed to enable STA", zap.Error(err))
	}
	if err := m.wifi.SetHostname(m.settings.Hostname()); err != nil {
		logging.Warn("Failed to set hostname", zap.Error(err))
	}

	if rec.Has(config.FlagStaticIP) {
		cfg, err := staticConfig(rec)
		if err == nil {
			err = m.wifi.ConfigureStatic(cfg)
		}
		if err != nil {
			logging.Error("Failed to configure static IP", zap.Error(err))
			m.fail(config.ErrConfig)
			return
		}
	}

	if err := m.wifi.Begin(rec.WiFiSSID, rec.WiFiPass); err != nil {
		logging.Warn("Failed to start association", zap.Error(err))
	}

	switch w.Until(m.settings.Timeouts.NetConnect, m.wifi.Connected) {
	case wait.Completed:
		logging.Info("WiFi connected",
			zap.String("ssid", rec.WiFiSSID),
			zap.Bool("static_ip", rec.Has(config.FlagStaticIP)),
		)
		m.rc.NetRetries = m.settings.MaxRetries
		m.rc.SetMode(state.ConnectingCloud)

	case wait.Cancelled:
		m.wifi.Disconnect()

	case wait.TimedOut:
		m.rc.NetRetries--
		logging.Warn("WiFi connection timed out", zap.Int("retries_left", m.rc.NetRetries))
		if m.rc.NetRetries <= 0 {
			m.fail(config.ErrNetwork)
		}
	}
}

func (m *Machine) connectCloud(w wait.Waiter) {
	rec := m.record
	c := m.cloud

	c.Configure(rec.CloudToken, rec.CloudHost, rec.CloudPort)
	if err := c.Connect(); err != nil {
		logging.Warn("Failed to start cloud connection", zap.Error(err))
	}

	out := w.Until(m.settings.Timeouts.CloudConnect, func() bool {
		return !m.wifi.Connected() || c.TokenInvalid() || c.Connected()
	})
	if out == wait.Cancelled {
		c.Disconnect()
		return
	}

	switch {
	case c.TokenInvalid():
		logging.Warn("Cloud rejected the auth token")
		m.setLastError(config.ErrToken)
		m.rc.SetMode(state.WaitConfig)

	case !m.wifi.Connected():
		logging.Warn("WiFi link lost while connecting to cloud")
		c.Disconnect()
		m.rc.SetMode(state.ConnectingNet)

	case c.Connected():
		m.rc.SetMode(state.Running)
		m.rc.CloudRetries = m.settings.MaxRetries
		m.announce()

	default:
		c.Disconnect()
		m.rc.CloudRetries--
		logging.Warn("Cloud connection timed out", zap.Int("retries_left", m.rc.CloudRetries))
		if m.rc.CloudRetries <= 0 {
			m.fail(config.ErrCloud)
		}
	}
}

// announce runs once a handshake succeeded: a firmware change is reported
// and invalidates the record, and an invalid record is marked VALID and
// described to the cloud.
func (m *Machine) announce() {
	rec := m.record
	fw := m.settings.Device.FirmwareVersion

	if rec.FirmwareVersion != fw {
		logging.Info("Firmware updated",
			zap.String("from", rec.FirmwareVersion),
			zap.String("to", fw),
		)
		if err := m.cloud.SendEvent(EventFirmwareUpdated, "Firmware updated to "+fw); err != nil {
			logging.Warn("Failed to send firmware event", zap.Error(err))
		}
		rec.FirmwareVersion = fw
		rec.SetFlag(config.FlagValid, false)
	}

	if rec.Has(config.FlagValid) {
		return
	}

	rec.LastError = config.ErrNone
	rec.SetFlag(config.FlagValid, true)
	m.save()

	meta := []struct{ key, value string }{
		{MetaDeviceUID, m.settings.Device.UID},
		{MetaHotspotName, m.settings.DeviceName()},
		{MetaNetwork, rec.WiFiSSID},
	}
	for _, kv := range meta {
		if err := m.cloud.SetMetadata(kv.key, kv.value); err != nil {
			logging.Warn("Failed to send metadata", zap.String("key", kv.key), zap.Error(err))
		}
	}
}

func (m *Machine) running(w wait.Waiter) {
	out := w.Until(runningPoll, func() bool {
		return !m.wifi.Connected() || !m.cloud.Connected()
	})
	if out != wait.Completed {
		return
	}

	if !m.wifi.Connected() {
		logging.Warn("WiFi link lost")
		m.cloud.Disconnect()
		m.rc.SetMode(state.ConnectingNet)
		return
	}
	logging.Warn("Cloud session lost")
	m.rc.SetMode(state.ConnectingCloud)
}

// errorMode dwells in ERROR, longer while the button is held, and then asks
// for a restart. A mode change during the dwell ends it without restarting.
func (m *Machine) errorMode(w wait.Waiter) error {
	logging.Warn("Provisioning error",
		zap.Stringer("last_error", m.record.LastError),
		zap.Duration("restart_in", m.settings.Timeouts.ErrorDwell),
	)

	out := w.Sleep(m.settings.Timeouts.ErrorDwell)
	for out == wait.TimedOut && m.rc.ButtonHeld() {
		out = w.Sleep(w.Interval)
	}
	if out == wait.Cancelled {
		return nil
	}

	logging.Info("Restarting after error")
	return ErrRestart
}

func (m *Machine) resetConfig() error {
	logging.Info("Resetting configuration")

	*m.record = m.settings.Default()
	m.save()
	m.rc.SetMode(state.WaitConfig)

	if m.settings.RestartOnReset {
		return ErrRestart
	}
	return nil
}

// fail records code and enters ERROR.
func (m *Machine) fail(code config.ErrorCode) {
	m.setLastError(code)
	m.rc.SetMode(state.Error)
}

func (m *Machine) setLastError(code config.ErrorCode) {
	logging.Info("Last error", zap.Stringer("code", code))
	m.record.LastError = code
	m.save()
}

func (m *Machine) save() {
	if err := m.store.Save(m.record); err != nil {
		logging.Error("Failed to save configuration", zap.Error(err))
	}
}

// staticConfig converts the record's static network override. Only the
// address itself is mandatory.
func staticConfig(rec *config.Record) (radio.StaticConfig, error) {
	ip, err := netip.ParseAddr(rec.StaticIP)
	if err != nil {
		return radio.StaticConfig{}, fmt.Errorf("invalid static IP %q: %w", rec.StaticIP, err)
	}
	cfg := radio.StaticConfig{IP: ip}

	optional := []struct {
		value string
		dst   *netip.Addr
	}{
		{rec.StaticMask, &cfg.Mask},
		{rec.StaticGW, &cfg.Gateway},
		{rec.StaticDNS, &cfg.DNS},
		{rec.StaticDNS2, &cfg.DNS2},
	}
	for _, o := range optional {
		if o.value == "" {
			continue
		}
		a, err := netip.ParseAddr(o.value)
		if err != nil {
			return radio.StaticConfig{}, fmt.Errorf("invalid address %q: %w", o.value, err)
		}
		*o.dst = a
	}
	return cfg, nil
}
