package session

import (
	"errors"
	"time"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"go.uber.org/zap"
)

// rebootDelay lets the reboot response leave the device first.
const rebootDelay = 50 * time.Millisecond

// Response messages shared with the portal's JSON API.
const (
	msgConnecting = "Trying to connect..."
	msgSaved      = "Configuration saved"
	msgInvalid    = "Configuration invalid"
	msgReset      = "Configuration reset"
	msgRebooting  = "Rebooting"
	msgUnknown    = "Unknown command"
)

// Scanner produces ranked scan results, giving up early when cancelled
// reports true.
type Scanner interface {
	ScanUntil(cancelled func() bool) ([]scan.Network, error)
}

// Config wires a Session to its collaborators.
type Config struct {
	Settings config.Settings
	WiFi     radio.WiFi
	Scanner  Scanner
	Store    config.Store
	State    *state.Context
}

// Session handles configuration commands for whichever transport is
// attached. It runs on the main loop only.
type Session struct {
	settings config.Settings
	wifi     radio.WiFi
	scanner  Scanner
	store    config.Store
	rc       *state.Context

	// record is the working record, shared with the state machine.
	record *config.Record
	staged config.Fields
}

// New returns a session editing rec.
func New(cfg Config, rec *config.Record) *Session {
	return &Session{
		settings: cfg.Settings,
		wifi:     cfg.WiFi,
		scanner:  cfg.Scanner,
		store:    cfg.Store,
		rc:       cfg.State,
		record:   rec,
	}
}

// Reset forgets staged fields. Called when a configuration mode is entered.
func (s *Session) Reset() {
	s.staged = config.Fields{}
}

// Staged returns the fields staged by set commands so far
func (s *Session) Staged() config.Fields {
	return s.staged
}

// Handle executes one command and sends its responses on t. Malformed
// commands are logged and dropped.
func (s *Session) Handle(t transport.Transport, cmd transport.Command) {
	msg, err := decode(cmd)
	if err != nil {
		logging.Warn("Dropping command",
			zap.String("transport", t.Name()),
			zap.Error(err),
		)
		return
	}

	switch msg.Type {
	case "info":
		s.info(t)
	case "set":
		s.set(t, msg)
	case "connect":
		s.connect(t)
	case "config":
		s.config(t, msg)
	case "scan":
		s.scan(t)
	case "reset":
		s.rc.SetMode(state.ResetConfig)
		s.send(t, transport.Response{Type: transport.TypeResetOK, Status: transport.StatusOK, Msg: msgReset})
	case "reboot":
		s.send(t, transport.Response{Type: transport.TypeReboot, Status: transport.StatusOK, Msg: msgRebooting})
		s.rc.ScheduleRestart(rebootDelay)
	default:
		logging.Warn("Unknown command", zap.String("type", msg.Type))
		s.send(t, transport.Response{Type: transport.TypeError, Status: transport.StatusError, Msg: msgUnknown})
	}
}

// BoardInfo describes the device as reported by the info command.
func (s *Session) BoardInfo() *transport.BoardInfo {
	d := s.settings.Device
	tmpl := d.TemplateID
	if tmpl == "" {
		tmpl = "Unknown"
	}
	return &transport.BoardInfo{
		Board:           d.TemplateName,
		TemplateID:      tmpl,
		FirmwareType:    d.FirmwareType,
		FirmwareVersion: d.FirmwareVersion,
		UID:             d.UID,
		SSID:            s.settings.DeviceName(),
		BSSID:           s.wifi.APBSSID(),
		MAC:             s.wifi.MAC(),
		LastError:       int(s.record.LastError),
		WiFiScan:        true,
		StaticIP:        true,
	}
}

func (s *Session) info(t transport.Transport) {
	s.rc.SetMode(state.Configuring)
	s.send(t, transport.Response{Type: transport.TypeInfo, Info: s.BoardInfo()})
}

func (s *Session) set(t transport.Transport, msg message) {
	staged, err := overlay(s.staged, msg.Fields)
	if err != nil {
		logging.Warn("Rejected set command", zap.Error(err))
		s.send(t, transport.Response{Type: transport.TypeSetFail, Status: transport.StatusError, Msg: err.Error()})
		return
	}
	s.staged = staged
	s.send(t, transport.Response{Type: transport.TypeSetOK})
}

func (s *Session) connect(t transport.Transport) {
	saved, err := s.apply(s.staged)
	if err != nil {
		s.send(t, transport.Response{Type: transport.TypeConnectFail, Status: transport.StatusError, Msg: msgInvalid})
		return
	}
	s.send(t, transport.Response{Type: transport.TypeConnecting, Status: transport.StatusOK, Msg: connectMsg(saved)})
	s.switchToSTA()
}

// config is the portal's one-shot set + connect. Fields not supplied keep
// their template defaults.
func (s *Session) config(t transport.Transport, msg message) {
	fields, err := overlay(config.Fields{}, msg.Fields)
	if err == nil {
		var saved bool
		saved, err = s.apply(fields)
		if err == nil {
			s.send(t, transport.Response{Type: transport.TypeConfig, Status: transport.StatusOK, Msg: connectMsg(saved)})
			s.switchToSTA()
			return
		}
	}
	logging.Warn("Rejected configuration", zap.Error(err))
	s.send(t, transport.Response{Type: transport.TypeConfig, Status: transport.StatusError, Msg: msgInvalid})
}

// apply validates fields as a complete candidate and swaps it in. With
// Save set, the record is persisted and marked VALID before any
// connection attempt.
func (s *Session) apply(f config.Fields) (saved bool, err error) {
	rec, err := config.Candidate(s.settings.Default(), f)
	if err != nil {
		logging.Info("Configuration invalid",
			zap.String("ssid", f.SSID),
			zap.String("token", logging.Secret(f.Token)),
		)
		return false, err
	}

	logging.Info("Applying configuration",
		zap.String("ssid", rec.WiFiSSID),
		zap.String("token", logging.Secret(rec.CloudToken)),
		zap.String("host", rec.CloudHost),
		zap.Int("port", rec.CloudPort),
		zap.Bool("static_ip", rec.Has(config.FlagStaticIP)),
	)

	if f.Save {
		rec.SetFlag(config.FlagValid, true)
		if err := s.store.Save(&rec); err != nil {
			logging.Error("Failed to save configuration", zap.Error(err))
		}
	}

	*s.record = rec
	return f.Save, nil
}

// switchToSTA hands over to the state machine with the impatient retry
// budget used after manual configuration.
func (s *Session) switchToSTA() {
	s.rc.NetRetries = 1
	s.rc.CloudRetries = 1
	s.rc.SetMode(state.SwitchToSTA)
}

func connectMsg(saved bool) string {
	if saved {
		return msgSaved
	}
	return msgConnecting
}

func (s *Session) scan(t transport.Transport) {
	s.send(t, transport.Response{Type: transport.TypeScanStart})

	// an external mode change (reset, button) aborts the scan
	mode := s.rc.Mode()
	nets, err := s.scanner.ScanUntil(func() bool { return s.rc.Mode() != mode })
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrTimeout):
			logging.Warn("Scan timed out")
		case errors.Is(err, scan.ErrCancelled):
			logging.Info("Scan aborted by mode change", zap.Stringer("mode", s.rc.Mode()))
		default:
			logging.Error("Scan failed", zap.Error(err))
		}
	}
	for i := range nets {
		s.send(t, transport.Response{Type: transport.TypeScan, Network: &nets[i]})
	}

	s.send(t, transport.Response{Type: transport.TypeScanEnd})
}

func (s *Session) send(t transport.Transport, r transport.Response) {
	if err := t.Send(r); err != nil {
		logging.Warn("Failed to send response",
			zap.String("transport", t.Name()),
			zap.String("type", r.Type),
			zap.Error(err),
		)
	}
}
