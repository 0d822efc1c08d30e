package stub

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"github.com/muurk/edgent/internal/radio"
)

func TestWiFi_Association(t *testing.T) {
	w := NewWiFi("AA:BB:CC:DD:EE:FF")
	w.ConnectPolls = 2

	if err := w.Begin("Home", "pw"); err == nil {
		t.Fatal("Begin() outside STA mode should fail")
	}

	_ = w.SetMode(radio.ModeSTA)
	if err := w.Begin("Home", "pw"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if w.Connected() {
			t.Fatalf("associated after %d polls, want 3", i+1)
		}
	}
	if !w.Connected() {
		t.Fatal("should associate on the third poll")
	}

	w.DropLink()
	if w.Connected() {
		t.Error("Connected() = true after DropLink")
	}
}

func TestWiFi_AcceptRejects(t *testing.T) {
	w := NewWiFi("00:00:00:00:00:01")
	w.Accept = func(ssid, pass string) bool { return pass == "right" }
	_ = w.SetMode(radio.ModeSTA)

	_ = w.Begin("Home", "wrong")
	for i := 0; i < 5; i++ {
		if w.Connected() {
			t.Fatal("rejected credentials must never associate")
		}
	}

	_ = w.Begin("Home", "right")
	if !w.Connected() {
		t.Error("accepted credentials should associate")
	}
}

func TestWiFi_Scan(t *testing.T) {
	w := NewWiFi("00:00:00:00:00:01")
	w.ScanPolls = 1
	w.SetNetworks([]radio.ScanEntry{{SSID: "a", RSSI: -40}, {SSID: "b", RSSI: -70}})

	if w.ScanComplete() >= 0 {
		t.Fatal("no scan started yet")
	}
	_ = w.StartScan()
	if n := w.ScanComplete(); n >= 0 {
		t.Fatalf("ScanComplete() = %d, want running", n)
	}
	if n := w.ScanComplete(); n != 2 {
		t.Fatalf("ScanComplete() = %d, want 2", n)
	}
	if got := w.ScanResult(1).SSID; got != "b" {
		t.Errorf("ScanResult(1).SSID = %q, want b", got)
	}

	w.ScanDelete()
	if got := w.ScanResult(0); got.SSID != "" {
		t.Errorf("results should be released after ScanDelete, got %+v", got)
	}
	if w.ScanDeletes() != 1 {
		t.Errorf("ScanDeletes() = %d, want 1", w.ScanDeletes())
	}
}

func TestWiFi_AP(t *testing.T) {
	w := NewWiFi("00:00:00:00:00:01")
	addr := netip.MustParseAddr("192.168.4.1")

	if err := w.StartAP("dev", addr); err == nil {
		t.Fatal("StartAP() outside AP mode should fail")
	}
	_ = w.SetMode(radio.ModeAP)
	if err := w.StartAP("dev", addr); err != nil {
		t.Fatal(err)
	}
	w.SetStations(2)
	if w.StationCount() != 2 {
		t.Errorf("StationCount() = %d, want 2", w.StationCount())
	}

	_ = w.SetMode(radio.ModeOff)
	if ssid, _ := w.AP(); ssid != "" || w.StationCount() != 0 {
		t.Error("turning the radio off should drop the AP and its stations")
	}
}

func TestWiFi_StaticErr(t *testing.T) {
	w := NewWiFi("00:00:00:00:00:01")
	w.StaticErr = errors.New("rejected")
	if err := w.ConfigureStatic(radio.StaticConfig{}); err == nil {
		t.Error("ConfigureStatic() should return StaticErr")
	}
	if w.Static() != nil {
		t.Error("failed static config must not be applied")
	}
}

func TestPeripheral(t *testing.T) {
	p := NewPeripheral()
	var connects, disconnects int
	var written []byte

	_ = p.Init("dev", radio.PeripheralEvents{
		OnConnect:    func() { connects++ },
		OnDisconnect: func() { disconnects++ },
	})
	err := p.AddService(radio.Service{
		UUID: "svc",
		Characteristics: []radio.Characteristic{
			{UUID: "rx", Properties: radio.PropWriteNoResponse, OnWrite: func(v []byte) { written = v }},
			{UUID: "tx", Properties: radio.PropNotify},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddService(radio.Service{UUID: "svc"}); err == nil {
		t.Error("duplicate service should be rejected")
	}

	_ = p.Advertise("svc")
	if !p.Advertising() {
		t.Fatal("Advertising() = false")
	}

	if err := p.Notify("tx", []byte("x")); err == nil {
		t.Error("Notify() without a central should fail")
	}

	p.Connect()
	if connects != 1 || p.Advertising() {
		t.Error("Connect() should fire OnConnect and stop advertising")
	}

	if err := p.Write("rx", []byte(`{"t":"info"}`)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written, []byte(`{"t":"info"}`)) {
		t.Errorf("OnWrite got %q", written)
	}
	if err := p.Write("tx", []byte("x")); err == nil {
		t.Error("writing a notify-only characteristic should fail")
	}

	p.ExchangeMTU(185)
	if p.MTU() != 185 {
		t.Errorf("MTU() = %d, want 185", p.MTU())
	}
	_ = p.Notify("tx", []byte("hello"))
	if got := p.Notified("tx"); len(got) != 1 || string(got[0]) != "hello" {
		t.Errorf("Notified() = %q", got)
	}

	p.Disconnect()
	if disconnects != 1 || p.MTU() != DefaultMTU {
		t.Error("Disconnect() should fire OnDisconnect and reset the MTU")
	}
}
