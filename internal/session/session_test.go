package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/radio/stub"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/state"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/wait"
)

const token = "0123456789abcdef0123456789abcdef"

// recorder is a transport that records every response.
type recorder struct {
	sent []transport.Response
}

func (r *recorder) Name() string                       { return "test" }
func (r *recorder) Attach(context.Context) error       { return nil }
func (r *recorder) Detach() error                      { return nil }
func (r *recorder) Poll()                              {}
func (r *recorder) HasMessage() bool                   { return false }
func (r *recorder) Receive() transport.Command         { return nil }
func (r *recorder) PeerConnected() bool                { return true }
func (r *recorder) Send(resp transport.Response) error { r.sent = append(r.sent, resp); return nil }

func (r *recorder) last(t *testing.T) transport.Response {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("no response sent")
	}
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	session *Session
	tr      *recorder
	rc      *state.Context
	store   *config.MemoryStore
	wifi    *stub.WiFi
	record  *config.Record
	clk     *wait.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := config.DefaultSettings()
	settings.Device.TemplateID = "TMPL1234"
	settings.Device.TemplateName = "Lamp"
	settings.Device.UID = "4F2K"
	settings.Device.FirmwareVersion = "1.2.3"

	wifi := stub.NewWiFi("AA:BB:CC:00:11:22")
	rc := state.New(state.WaitConfig, 500)
	store := config.NewMemoryStore(nil)
	rec := &config.Record{WiFiSSID: "Old", CloudToken: strings.Repeat("o", 32), LastError: config.ErrNetwork}
	clk := wait.NewManualClock(time.Unix(0, 0))
	scanner := scan.New(wifi, wait.Waiter{Clock: clk}, 0)

	s := New(Config{
		Settings: settings,
		WiFi:     wifi,
		Scanner:  scanner,
		Store:    store,
		State:    rc,
	}, rec)

	return &fixture{session: s, tr: &recorder{}, rc: rc, store: store, wifi: wifi, record: rec, clk: clk}
}

func (f *fixture) handle(cmd string) {
	f.session.Handle(f.tr, transport.Command(cmd))
}

func TestInfo(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"t":"info"}`)

	if f.rc.Mode() != state.Configuring {
		t.Errorf("mode = %s, want CONFIGURING", f.rc.Mode())
	}
	resp := f.tr.last(t)
	if resp.Type != transport.TypeInfo || resp.Info == nil {
		t.Fatalf("response = %+v", resp)
	}
	info := resp.Info
	if info.FirmwareVersion != "1.2.3" || info.TemplateID != "TMPL1234" || info.MAC != "AA:BB:CC:00:11:22" {
		t.Errorf("info = %+v", info)
	}
	if info.SSID != "Edgent Lamp-4F2K" || info.LastError != 701 || !info.WiFiScan || !info.StaticIP {
		t.Errorf("info = %+v", info)
	}
}

func TestInfo_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	f.session.settings.Device.TemplateID = ""
	if got := f.session.BoardInfo().TemplateID; got != "Unknown" {
		t.Errorf("TemplateID = %q, want Unknown", got)
	}
}

func TestSetConnect(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"set","ssid":"Home","pass":"secret","blynk":"` + token + `","host":"cloud.example.com","port":8443}`)
	if got := f.tr.last(t).Type; got != transport.TypeSetOK {
		t.Fatalf("set response = %s", got)
	}
	if f.record.WiFiSSID != "Old" {
		t.Fatal("set must only stage fields")
	}

	f.handle(`{"t":"connect"}`)
	resp := f.tr.last(t)
	if resp.Type != transport.TypeConnecting || resp.Msg != "Trying to connect..." {
		t.Fatalf("connect response = %+v", resp)
	}

	want := config.Record{
		WiFiSSID:        "Home",
		WiFiPass:        "secret",
		CloudToken:      token,
		CloudHost:       "cloud.example.com",
		CloudPort:       8443,
		FirmwareVersion: "1.2.3",
	}
	if *f.record != want {
		t.Errorf("record = %+v, want %+v", *f.record, want)
	}
	if f.rc.Mode() != state.SwitchToSTA {
		t.Errorf("mode = %s, want SWITCH_TO_STA", f.rc.Mode())
	}
	if f.rc.NetRetries != 1 || f.rc.CloudRetries != 1 {
		t.Errorf("retries = %d/%d, want 1/1", f.rc.NetRetries, f.rc.CloudRetries)
	}
	if f.store.Saves() != 0 {
		t.Error("connect without save must not persist")
	}
	if f.record.Has(config.FlagValid) {
		t.Error("VALID must wait for a cloud handshake")
	}
}

func TestConnect_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  string
	}{
		{"nothing staged", ""},
		{"short token", `{"t":"set","ssid":"Home","blynk":"short"}`},
		{"long token", `{"t":"set","ssid":"Home","blynk":"` + token + `x"}`},
		{"empty ssid", `{"t":"set","ssid":"","blynk":"` + token + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := *f.record
			f.rc.NetRetries, f.rc.CloudRetries = 7, 9

			if tt.set != "" {
				f.handle(tt.set)
			}
			f.handle(`{"t":"connect"}`)

			resp := f.tr.last(t)
			if resp.Type != transport.TypeConnectFail || resp.Msg != "Configuration invalid" {
				t.Errorf("response = %+v", resp)
			}
			if *f.record != before {
				t.Errorf("record changed: %+v", *f.record)
			}
			if f.rc.Mode() != state.WaitConfig || f.rc.NetRetries != 7 || f.rc.CloudRetries != 9 {
				t.Error("a rejected connect must not touch mode or retry counters")
			}
		})
	}
}

func TestSet_UnknownFieldLeavesStagedUntouched(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"set","ssid":"Home","blynk":"` + token + `"}`)
	staged := f.session.Staged()

	f.handle(`{"t":"set","ssid":"Evil","bogus":1}`)
	if got := f.tr.last(t).Type; got != transport.TypeSetFail {
		t.Fatalf("response = %s, want set_fail", got)
	}
	if f.session.Staged() != staged {
		t.Errorf("staged = %+v, want %+v", f.session.Staged(), staged)
	}

	f.handle(`{"t":"set","ssid":{"nested":true}}`)
	if got := f.tr.last(t).Type; got != transport.TypeSetFail {
		t.Errorf("non-scalar value: response = %s, want set_fail", got)
	}

	f.handle(`{"t":"connect"}`)
	if f.record.WiFiSSID != "Home" {
		t.Errorf("ssid = %q, want the value staged before the failed set", f.record.WiFiSSID)
	}
}

// Forced save marks the record VALID before any handshake. This is the one
// documented exception to "VALID implies a proven cloud connection".
func TestConnect_ForcedSaveSetsValidOptimistically(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"set","ssid":"Home","blynk":"` + token + `","save":true}`)
	f.handle(`{"t":"connect"}`)

	if got := f.tr.last(t).Msg; got != "Configuration saved" {
		t.Errorf("msg = %q", got)
	}
	if !f.record.Has(config.FlagValid) {
		t.Error("forced save should set VALID")
	}
	stored, _ := f.store.Load()
	if stored == nil || !stored.Has(config.FlagValid) || stored.WiFiSSID != "Home" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestConnect_StaticIP(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"set","ssid":"Home","blynk":"` + token + `","ip":"10.0.0.5","mask":"255.255.255.0","gw":"10.0.0.1","dns":"1.1.1.1"}`)
	f.handle(`{"t":"connect"}`)

	if !f.record.Has(config.FlagStaticIP) || f.record.StaticIP != "10.0.0.5" || f.record.StaticGW != "10.0.0.1" {
		t.Errorf("record = %+v", *f.record)
	}
}

func TestConfigOneShot(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"config","ssid":"Home","blynk":"` + token + `","port":"443","save":true}`)
	resp := f.tr.last(t)
	if resp.Type != transport.TypeConfig || resp.Status != transport.StatusOK || resp.Msg != "Configuration saved" {
		t.Fatalf("response = %+v", resp)
	}
	if f.record.WiFiSSID != "Home" || f.rc.Mode() != state.SwitchToSTA {
		t.Error("valid config should apply and switch to STA")
	}

	f2 := newFixture(t)
	before := *f2.record
	f2.handle(`{"t":"config","ssid":"Home","blynk":"nope"}`)
	resp = f2.tr.last(t)
	if resp.Status != transport.StatusError || !resp.Failed() {
		t.Errorf("response = %+v", resp)
	}
	if *f2.record != before {
		t.Error("invalid config changed the record")
	}
}

func TestScan(t *testing.T) {
	f := newFixture(t)
	var nets []radio.ScanEntry
	for i := 0; i < 20; i++ {
		nets = append(nets, radio.ScanEntry{SSID: fmt.Sprintf("n%d", i), RSSI: -90 + i})
	}
	f.wifi.SetNetworks(nets)

	f.handle(`{"t":"scan"}`)

	sent := f.tr.sent
	if len(sent) != 17 {
		t.Fatalf("sent %d responses, want scan_start + 15 + scan_end", len(sent))
	}
	if sent[0].Type != transport.TypeScanStart || sent[16].Type != transport.TypeScanEnd {
		t.Errorf("bracketing = %s ... %s", sent[0].Type, sent[16].Type)
	}
	if sent[1].Network.SSID != "n19" {
		t.Errorf("first network = %s, want the strongest", sent[1].Network.SSID)
	}
}

func TestScan_Timeout(t *testing.T) {
	f := newFixture(t)
	f.wifi.ScanPolls = -1

	f.handle(`{"t":"scan"}`)
	if len(f.tr.sent) != 2 || f.tr.sent[1].Type != transport.TypeScanEnd {
		t.Errorf("sent = %v, want an empty bracket", f.tr.sent)
	}
}

func TestScan_AbortedByModeChange(t *testing.T) {
	f := newFixture(t)
	f.wifi.ScanPolls = -1
	f.clk.OnSleep = func(now time.Time) {
		if now.Sub(time.Unix(0, 0)) >= 100*time.Millisecond {
			f.rc.SetMode(state.ResetConfig)
		}
	}

	f.handle(`{"t":"scan"}`)
	if len(f.tr.sent) != 2 || f.tr.sent[1].Type != transport.TypeScanEnd {
		t.Errorf("sent = %v, want an empty bracket", f.tr.sent)
	}
	if f.clk.Slept() >= time.Second {
		t.Errorf("scan waited %v after the mode change", f.clk.Slept())
	}
	if f.wifi.ScanDeletes() != 1 {
		t.Errorf("ScanDelete called %d times, want 1", f.wifi.ScanDeletes())
	}
}

func TestResetReboot(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"reset"}`)
	if f.rc.Mode() != state.ResetConfig || f.tr.last(t).Type != transport.TypeResetOK {
		t.Error("reset should request RESET_CONFIG and answer reset_ok")
	}

	f.handle(`{"t":"reboot"}`)
	if !f.rc.RestartPending() {
		t.Error("reboot should schedule a restart")
	}
	if f.tr.last(t).Msg != "Rebooting" {
		t.Errorf("reboot response = %+v", f.tr.last(t))
	}
}

func TestUnknownAndMalformed(t *testing.T) {
	f := newFixture(t)

	f.handle(`{"t":"dance"}`)
	if got := f.tr.last(t).Type; got != transport.TypeError {
		t.Errorf("unknown type response = %s, want error", got)
	}

	n := len(f.tr.sent)
	for _, cmd := range []string{`{"t":`, `not json`, `{"ssid":"x"}`, `{"t":42}`, `[]`} {
		f.handle(cmd)
	}
	if len(f.tr.sent) != n {
		t.Errorf("malformed commands must be dropped silently, got %v", f.tr.sent[n:])
	}
}

func TestScalar(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"text"`, "text", true},
		{`8443`, "8443", true},
		{`1.5`, "1.5", true},
		{`true`, "true", true},
		{`false`, "false", true},
		{`null`, "", true},
		{`{}`, "", false},
		{`[1]`, "", false},
	}
	for _, tt := range tests {
		got, ok := scalar([]byte(tt.in))
		if got != tt.want || ok != tt.ok {
			t.Errorf("scalar(%s) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// The record changes if and only if the final staged token is exactly 32
// characters and the ssid is non-empty.
func TestRecordMutatedOnlyByValidSubmission(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		f := newFixture(t)
		before := *f.record

		var ssid, tok string
		for j := 0; j < 1+rng.Intn(3); j++ {
			ssid = []string{"", "Home", "Cafe"}[rng.Intn(3)]
			tok = strings.Repeat("k", []int{0, 31, 32, 33}[rng.Intn(4)])
			f.handle(fmt.Sprintf(`{"t":"set","ssid":%q,"blynk":%q}`, ssid, tok))
			if rng.Intn(4) == 0 {
				f.handle(`{"t":"set","junk":"x"}`)
			}
		}
		f.handle(`{"t":"connect"}`)

		valid := len(tok) == 32 && ssid != ""
		changed := *f.record != before
		if changed != valid {
			t.Fatalf("iteration %d: ssid=%q token len=%d changed=%v", i, ssid, len(tok), changed)
		}
	}
}

func TestStoreFailureStillApplies(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("flash error")

	f.handle(`{"t":"config","ssid":"Home","blynk":"` + token + `","save":"1"}`)
	if f.record.WiFiSSID != "Home" {
		t.Error("a failed save should not block the connection attempt")
	}
}

func TestConfig_SaveValues(t *testing.T) {
	tests := []struct {
		save string
		want bool
	}{
		{`"1"`, true},
		{`"true"`, true},
		{`true`, true},
		{`2`, true},
		{`"false"`, false},
		{`"no"`, false},
		{`"off"`, false},
		{`"0"`, false},
		{`""`, false},
		{`false`, false},
	}

	for _, tt := range tests {
		t.Run(tt.save, func(t *testing.T) {
			f := newFixture(t)
			f.handle(`{"t":"config","ssid":"Home","blynk":"` + token + `","save":` + tt.save + `}`)

			if f.record.WiFiSSID != "Home" {
				t.Fatalf("record not applied: %+v", *f.record)
			}
			if got := f.record.Has(config.FlagValid); got != tt.want {
				t.Errorf("VALID = %v, want %v", got, tt.want)
			}
			if saved := f.store.Saves() > 0; saved != tt.want {
				t.Errorf("persisted = %v, want %v", saved, tt.want)
			}
		})
	}
}
