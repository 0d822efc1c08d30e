package machine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/radio/stub"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/session"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/transport/ble"
	"github.com/muurk/edgent/internal/wait"
)

const token = "0123456789abcdef0123456789abcdef"

type fixture struct {
	m        *Machine
	rc       *state.Context
	store    *config.MemoryStore
	rec      *config.Record
	wifi     *stub.WiFi
	cloud    *fakeCloud
	tr       *scripted
	clock    *wait.ManualClock
	settings config.Settings
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.Device.TemplateID = "TMPL1234"
	s.Device.TemplateName = "Lamp"
	s.Device.UID = "4F2K"
	s.Device.FirmwareVersion = "1.2.3"
	s.MaxRetries = 3
	return s
}

// validRecord is a record that completed a handshake on the current firmware.
func validRecord() *config.Record {
	rec := testSettings().Default()
	rec.WiFiSSID = "Home"
	rec.WiFiPass = "secret"
	rec.CloudToken = token
	rec.SetFlag(config.FlagValid, true)
	return &rec
}

func newFixture(t *testing.T, rec *config.Record, tr transport.Transport, opts ...func(*config.Settings)) *fixture {
	t.Helper()

	settings := testSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if rec == nil {
		d := settings.Default()
		rec = &d
	}

	clock := wait.NewManualClock(time.Unix(0, 0))
	waiter := wait.Waiter{Clock: clock}
	wifi := stub.NewWiFi("AA:BB:CC:00:11:22")
	store := config.NewMemoryStore(rec)
	rc := state.New(InitialMode(rec), settings.MaxRetries)
	cl := newFakeCloud()

	f := &fixture{rc: rc, store: store, rec: rec, wifi: wifi, cloud: cl, clock: clock, settings: settings}
	if tr == nil {
		f.tr = &scripted{peer: true}
		tr = f.tr
	}

	sess := session.New(session.Config{
		Settings: settings,
		WiFi:     wifi,
		Scanner:  scan.New(wifi, waiter, 0),
		Store:    store,
		State:    rc,
	}, rec)

	f.m = New(Config{
		Settings:  settings,
		State:     rc,
		Store:     store,
		Record:    rec,
		WiFi:      wifi,
		Transport: tr,
		Session:   sess,
		Cloud:     cl,
		Waiter:    waiter,
	})
	return f
}

func (f *fixture) step(t *testing.T) error {
	t.Helper()
	return f.m.Step(context.Background())
}

func (f *fixture) mustStep(t *testing.T, want state.Mode) {
	t.Helper()
	if err := f.step(t); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := f.rc.Mode(); got != want {
		t.Fatalf("mode = %s, want %s", got, want)
	}
}

// associate brings the stub radio onto the configured network.
func (f *fixture) associate() {
	_ = f.wifi.SetMode(radio.ModeSTA)
	_ = f.wifi.Begin(f.rec.WiFiSSID, f.rec.WiFiPass)
	f.wifi.Connected()
}

func (f *fixture) stored(t *testing.T) *config.Record {
	t.Helper()
	rec, err := f.store.Load()
	if err != nil || rec == nil {
		t.Fatalf("store.Load() = %v, %v", rec, err)
	}
	return rec
}

// stepUntilIdle runs one config-mode Step, cancelling once the transport
// queue is drained and the loop goes to sleep.
func (f *fixture) stepUntilIdle(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.clock.OnSleep = func(time.Time) { cancel() }
	defer func() { f.clock.OnSleep = nil }()
	return f.m.Step(ctx)
}

func TestInitialMode(t *testing.T) {
	tests := []struct {
		name string
		rec  *config.Record
		want state.Mode
	}{
		{"no record", nil, state.WaitConfig},
		{"unvalidated", &config.Record{WiFiSSID: "Home", CloudToken: token}, state.WaitConfig},
		{"valid", validRecord(), state.ConnectingNet},
	}

	for _, tt := range tests {
		if got := InitialMode(tt.rec); got != tt.want {
			t.Errorf("%s: InitialMode() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestProvisioningEndToEnd(t *testing.T) {
	f := newFixture(t, nil, nil)
	if !f.rc.Is(state.WaitConfig) {
		t.Fatalf("empty record should boot into WAIT_CONFIG, got %s", f.rc.Mode())
	}

	f.tr.push(
		`{"t":"info"}`,
		`{"t":"set","ssid":"Home","pass":"secret","blynk":"`+token+`"}`,
		`{"t":"connect"}`,
	)
	f.mustStep(t, state.SwitchToSTA)

	if got := f.tr.types(); !reflect.DeepEqual(got, []string{"info", "set_ok", "connecting"}) {
		t.Fatalf("responses = %v", got)
	}
	if info := f.tr.sent[0].Info; info == nil || info.FirmwareVersion != "1.2.3" {
		t.Errorf("info response = %+v, want fw_ver 1.2.3", f.tr.sent[0].Info)
	}
	if f.tr.attaches != 1 || f.tr.detaches != 1 {
		t.Errorf("attaches = %d, detaches = %d, want 1/1", f.tr.attaches, f.tr.detaches)
	}
	if f.rc.NetRetries != 1 || f.rc.CloudRetries != 1 {
		t.Errorf("retries = %d/%d, want 1/1 after manual configuration", f.rc.NetRetries, f.rc.CloudRetries)
	}

	f.mustStep(t, state.ConnectingNet)
	if f.wifi.Mode() != radio.ModeSTA {
		t.Errorf("radio mode = %s, want sta", f.wifi.Mode())
	}
	calls := f.wifi.Calls()
	off := slices.Index(calls, "mode off")
	if off < 0 || !slices.Contains(calls[off:], "mode sta") {
		t.Errorf("SWITCH_TO_STA should cycle the radio off then STA, calls = %v", calls)
	}

	f.mustStep(t, state.ConnectingCloud)
	if f.wifi.Joined() != "Home" || f.wifi.Hostname() != "Edgent-Lamp-4F2K" {
		t.Errorf("joined %q as %q", f.wifi.Joined(), f.wifi.Hostname())
	}
	if f.rc.NetRetries != f.settings.MaxRetries {
		t.Errorf("NetRetries = %d, want refill to %d", f.rc.NetRetries, f.settings.MaxRetries)
	}

	f.mustStep(t, state.Running)
	if f.cloud.token != token || f.cloud.host != f.settings.Cloud.Host {
		t.Errorf("cloud configured with %q@%s", f.cloud.token, f.cloud.host)
	}
	if f.rc.CloudRetries != f.settings.MaxRetries {
		t.Errorf("CloudRetries = %d, want refill to %d", f.rc.CloudRetries, f.settings.MaxRetries)
	}

	stored := f.stored(t)
	if !stored.Has(config.FlagValid) || stored.LastError != config.ErrNone || stored.WiFiSSID != "Home" {
		t.Errorf("stored record = %+v, want VALID with no error", stored)
	}
	wantMeta := map[string]string{
		MetaDeviceUID:   "4F2K",
		MetaHotspotName: "Edgent Lamp-4F2K",
		MetaNetwork:     "Home",
	}
	if !reflect.DeepEqual(f.cloud.meta, wantMeta) {
		t.Errorf("metadata = %v, want %v", f.cloud.meta, wantMeta)
	}
	if len(f.cloud.events) != 0 {
		t.Errorf("unexpected events %v on matching firmware", f.cloud.events)
	}
}

func TestMalformedSetLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil, nil)
	before := *f.rec

	f.tr.push(
		`{"t":"info"}`,
		`{"t":"set","ssid":"First"}`,
		`{"t":"set","ssid":"Second","bogus":"x"}`,
	)
	if err := f.stepUntilIdle(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step() error = %v, want context.Canceled", err)
	}

	last := f.tr.sent[len(f.tr.sent)-1]
	if last.Type != transport.TypeSetFail || !last.Failed() {
		t.Errorf("last response = %+v, want set_fail", last)
	}
	if *f.rec != before {
		t.Errorf("record changed: %+v", *f.rec)
	}
	if f.tr.detaches != 1 {
		t.Errorf("transport should be detached when the step ends, detaches = %d", f.tr.detaches)
	}
}

func TestConfiguringFallsBackWithoutPeer(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.tr.peer = false
	f.tr.push(`{"t":"info"}`)

	_ = f.stepUntilIdle(t)
	if !f.rc.Is(state.WaitConfig) {
		t.Errorf("mode = %s, want WAIT_CONFIG once the peer is gone", f.rc.Mode())
	}
}

func TestAttachFailureIsInternalError(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.tr.attachErr = errors.New("radio busy")

	f.mustStep(t, state.Error)
	if f.rec.LastError != config.ErrInternal {
		t.Errorf("LastError = %s, want INTERNAL", f.rec.LastError)
	}
}

func TestRebootCommandRestarts(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.tr.push(`{"t":"reboot"}`)

	if err := f.step(t); !errors.Is(err, ErrRestart) {
		t.Fatalf("Step() error = %v, want ErrRestart", err)
	}
	if got := f.tr.types(); !reflect.DeepEqual(got, []string{"reboot"}) {
		t.Errorf("responses = %v", got)
	}
	if f.tr.detaches != 1 {
		t.Error("transport should be detached before restarting")
	}
}

func TestResetCommand(t *testing.T) {
	f := newFixture(t, validRecord(), nil, func(s *config.Settings) { s.RestartOnReset = false })
	f.rc.SetMode(state.WaitConfig)
	f.tr.push(`{"t":"reset"}`)

	f.mustStep(t, state.ResetConfig)
	f.mustStep(t, state.WaitConfig)

	if *f.rec != f.settings.Default() {
		t.Errorf("record = %+v, want factory default", *f.rec)
	}
	if f.stored(t).Has(config.FlagValid) {
		t.Error("reset record should be persisted without VALID")
	}
}

func TestResetConfigRestarts(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.rc.SetMode(state.ResetConfig)

	if err := f.step(t); !errors.Is(err, ErrRestart) {
		t.Fatalf("Step() error = %v, want ErrRestart", err)
	}
	if !f.rc.Is(state.WaitConfig) {
		t.Errorf("mode = %s, want WAIT_CONFIG", f.rc.Mode())
	}
}

func TestNetworkErrorAfterMaxRetries(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.wifi.ConnectPolls = -1

	for i := 1; i < f.settings.MaxRetries; i++ {
		f.mustStep(t, state.ConnectingNet)
		if want := f.settings.MaxRetries - i; f.rc.NetRetries != want {
			t.Fatalf("after %d timeouts NetRetries = %d, want %d", i, f.rc.NetRetries, want)
		}
		if f.rec.LastError != config.ErrNone {
			t.Fatalf("LastError set before the budget ran out: %s", f.rec.LastError)
		}
	}
	f.mustStep(t, state.Error)

	if got := f.stored(t).LastError; got != config.ErrNetwork {
		t.Errorf("stored LastError = %s, want NETWORK", got)
	}
	begins := 0
	for _, c := range f.wifi.Calls() {
		if c == "begin Home" {
			begins++
		}
	}
	if begins != f.settings.MaxRetries {
		t.Errorf("association attempts = %d, want %d", begins, f.settings.MaxRetries)
	}
	if want := time.Duration(f.settings.MaxRetries) * f.settings.Timeouts.NetConnect; f.clock.Slept() < want {
		t.Errorf("slept %s, want at least %s", f.clock.Slept(), want)
	}
}

func TestStaticIP(t *testing.T) {
	rec := validRecord()
	rec.SetFlag(config.FlagStaticIP, true)
	rec.StaticIP = "192.168.1.50"
	rec.StaticMask = "255.255.255.0"
	rec.StaticGW = "192.168.1.1"

	t.Run("applied", func(t *testing.T) {
		cp := *rec
		f := newFixture(t, &cp, nil)
		f.mustStep(t, state.ConnectingCloud)

		st := f.wifi.Static()
		if st == nil || st.IP.String() != "192.168.1.50" || st.Gateway.String() != "192.168.1.1" {
			t.Errorf("static config = %+v", st)
		}
		if st != nil && st.DNS.IsValid() {
			t.Errorf("unset DNS should stay invalid, got %s", st.DNS)
		}
	})

	t.Run("radio refuses", func(t *testing.T) {
		cp := *rec
		f := newFixture(t, &cp, nil)
		f.wifi.StaticErr = errors.New("dhcp client busy")
		f.mustStep(t, state.Error)

		if f.rec.LastError != config.ErrConfig {
			t.Errorf("LastError = %s, want CONFIG", f.rec.LastError)
		}
		if f.wifi.Joined() != "" {
			t.Error("association must not start after a static IP failure")
		}
	})

	t.Run("unparsable", func(t *testing.T) {
		cp := *rec
		cp.StaticIP = "not-an-ip"
		f := newFixture(t, &cp, nil)
		f.mustStep(t, state.Error)

		if f.rec.LastError != config.ErrConfig {
			t.Errorf("LastError = %s, want CONFIG", f.rec.LastError)
		}
	})
}

func TestNetModeChangeAbortsAssociation(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.wifi.ConnectPolls = -1
	f.clock.OnSleep = func(time.Time) { f.rc.SetMode(state.ResetConfig) }

	f.mustStep(t, state.ResetConfig)
	if calls := f.wifi.Calls(); calls[len(calls)-1] != "disconnect" {
		t.Errorf("aborted association should disconnect, calls = %v", calls)
	}
	if f.rc.NetRetries != f.settings.MaxRetries {
		t.Errorf("cancellation must not consume a retry, NetRetries = %d", f.rc.NetRetries)
	}
}

func TestTokenInvalidGoesToWaitConfig(t *testing.T) {
	for _, retries := range []int{1, 3, 500} {
		f := newFixture(t, validRecord(), nil)
		f.associate()
		f.rc.SetMode(state.ConnectingCloud)
		f.rc.CloudRetries = retries
		f.cloud.rejectToken = true

		f.mustStep(t, state.WaitConfig)
		if got := f.stored(t).LastError; got != config.ErrToken {
			t.Errorf("retries %d: stored LastError = %s, want TOKEN", retries, got)
		}
		if f.rc.CloudRetries != retries {
			t.Errorf("retries %d: token rejection must not consume a retry, got %d", retries, f.rc.CloudRetries)
		}
	}
}

func TestCloudErrorAfterMaxRetries(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.associate()
	f.rc.SetMode(state.ConnectingCloud)
	f.cloud.connectAfter = -1

	for i := 1; i < f.settings.MaxRetries; i++ {
		f.mustStep(t, state.ConnectingCloud)
	}
	f.mustStep(t, state.Error)

	if f.rec.LastError != config.ErrCloud {
		t.Errorf("LastError = %s, want CLOUD", f.rec.LastError)
	}
	if f.cloud.disconnects != f.settings.MaxRetries {
		t.Errorf("timed out attempts should be abandoned, disconnects = %d", f.cloud.disconnects)
	}
}

func TestCloudLinkLost(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.associate()
	f.rc.SetMode(state.ConnectingCloud)
	f.cloud.connectAfter = -1
	f.wifi.DropLink()

	f.mustStep(t, state.ConnectingNet)
	if f.rc.CloudRetries != f.settings.MaxRetries {
		t.Errorf("link loss must not consume a cloud retry, got %d", f.rc.CloudRetries)
	}
}

func TestFirmwareUpdateRevalidates(t *testing.T) {
	rec := validRecord()
	rec.FirmwareVersion = "1.0.0"
	rec.LastError = config.ErrCloud

	f := newFixture(t, rec, nil)
	f.associate()
	f.rc.SetMode(state.ConnectingCloud)

	f.mustStep(t, state.Running)

	if want := []string{"sys_ota=Firmware updated to 1.2.3"}; !reflect.DeepEqual(f.cloud.events, want) {
		t.Errorf("events = %v, want %v", f.cloud.events, want)
	}
	stored := f.stored(t)
	if stored.FirmwareVersion != "1.2.3" || !stored.Has(config.FlagValid) || stored.LastError != config.ErrNone {
		t.Errorf("stored record = %+v", stored)
	}
	if len(f.cloud.meta) != 3 {
		t.Errorf("metadata should be re-announced after a firmware change, got %v", f.cloud.meta)
	}
}

func TestValidRecordSkipsAnnouncement(t *testing.T) {
	f := newFixture(t, validRecord(), nil)
	f.associate()
	f.rc.SetMode(state.ConnectingCloud)
	saves := f.store.Saves()

	f.mustStep(t, state.Running)
	if len(f.cloud.meta) != 0 || len(f.cloud.events) != 0 {
		t.Errorf("nothing to announce for a valid record, meta %v events %v", f.cloud.meta, f.cloud.events)
	}
	if f.store.Saves() != saves {
		t.Error("valid record should not be rewritten")
	}
}

func TestRunning(t *testing.T) {
	t.Run("cloud lost", func(t *testing.T) {
		f := newFixture(t, validRecord(), nil)
		f.associate()
		f.rc.SetMode(state.Running)
		f.cloud.connected = false

		f.mustStep(t, state.ConnectingCloud)
	})

	t.Run("link lost", func(t *testing.T) {
		f := newFixture(t, validRecord(), nil)
		f.associate()
		f.rc.SetMode(state.Running)
		f.cloud.connected = true
		f.wifi.DropLink()

		f.mustStep(t, state.ConnectingNet)
		if f.cloud.disconnects != 1 {
			t.Errorf("cloud session should be dropped with the link, disconnects = %d", f.cloud.disconnects)
		}
	})

	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t, validRecord(), nil)
		f.associate()
		f.rc.SetMode(state.Running)
		f.cloud.connected = true

		f.mustStep(t, state.Running)
		if f.clock.Slept() < runningPoll {
			t.Errorf("a healthy RUNNING step should wait %s, slept %s", runningPoll, f.clock.Slept())
		}
	})
}

func TestErrorDwell(t *testing.T) {
	t.Run("restart after dwell", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.rc.SetMode(state.Error)

		if err := f.step(t); !errors.Is(err, ErrRestart) {
			t.Fatalf("Step() error = %v, want ErrRestart", err)
		}
		if f.clock.Slept() < f.settings.Timeouts.ErrorDwell {
			t.Errorf("slept %s, want at least %s", f.clock.Slept(), f.settings.Timeouts.ErrorDwell)
		}
	})

	t.Run("extended while button held", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.rc.SetMode(state.Error)
		f.rc.SetButtonHeld(true)
		release := time.Unix(0, 0).Add(f.settings.Timeouts.ErrorDwell + 3*time.Second)
		f.clock.OnSleep = func(now time.Time) {
			if !now.Before(release) {
				f.rc.SetButtonHeld(false)
			}
		}

		if err := f.step(t); !errors.Is(err, ErrRestart) {
			t.Fatalf("Step() error = %v, want ErrRestart", err)
		}
		if f.clock.Slept() < f.settings.Timeouts.ErrorDwell+3*time.Second {
			t.Errorf("slept %s, dwell should last until the button is released", f.clock.Slept())
		}
	})

	t.Run("mode change ends dwell", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.rc.SetMode(state.Error)
		f.clock.OnSleep = func(time.Time) { f.rc.SetMode(state.ResetConfig) }

		f.mustStep(t, state.ResetConfig)
	})
}

func TestRunStopsOnContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.clock.OnSleep = func(now time.Time) {
		if now.After(time.Unix(0, 0).Add(time.Second)) {
			cancel()
		}
	}

	if err := f.m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

// decodeStream splits concatenated notifications back into responses.
func decodeStream(t *testing.T, chunks [][]byte) []map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(bytes.Join(chunks, nil)))
	var out []map[string]any
	for {
		var m map[string]any
		if err := dec.Decode(&m); err == io.EOF {
			return out
		} else if err != nil {
			t.Fatalf("decode notifications: %v", err)
		}
		out = append(out, m)
	}
}

func TestProvisioningOverBLE(t *testing.T) {
	p := stub.NewPeripheral()
	tr := ble.New(ble.Config{Peripheral: p, Name: "Edgent Lamp-4F2K"})
	f := newFixture(t, nil, tr)

	rx := ble.RXUUID.String()
	central := false
	f.clock.OnSleep = func(time.Time) {
		if central {
			return
		}
		central = true
		p.Connect()
		_ = p.Write(rx, []byte(`{"t":"info"}`))
		_ = p.Write(rx, []byte(`{"t":"set","ssid":"Home","blynk":"`+token+`"}`))
		_ = p.Write(rx, []byte(`{"t":"connect"}`))
	}

	f.mustStep(t, state.SwitchToSTA)
	f.clock.OnSleep = nil

	msgs := decodeStream(t, p.Notified(ble.TXUUID.String()))
	var types []string
	for _, m := range msgs {
		types = append(types, m["t"].(string))
	}
	if !reflect.DeepEqual(types, []string{"info", "set_ok", "connecting"}) {
		t.Fatalf("notified = %v", types)
	}
	if msgs[0]["fw_ver"] != "1.2.3" {
		t.Errorf("info fw_ver = %v", msgs[0]["fw_ver"])
	}
	if p.Advertising() {
		t.Error("BLE should stop advertising after leaving configuration")
	}

	f.mustStep(t, state.ConnectingNet)
	f.mustStep(t, state.ConnectingCloud)
	f.mustStep(t, state.Running)
	if !f.stored(t).Has(config.FlagValid) {
		t.Error("record should be VALID after the handshake")
	}
}
