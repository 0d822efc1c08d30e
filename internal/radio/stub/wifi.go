package stub

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/muurk/edgent/internal/radio"
)

// WiFi is an in-memory station/AP radio.
type WiFi struct {
	mu sync.Mutex

	mode     radio.Mode
	hostname string
	static   *radio.StaticConfig
	mac      string

	joinedSSID string
	joinedPass string
	assocLeft  int
	connected  bool
	joining    bool

	networks  []radio.ScanEntry
	scanLeft  int
	scanning  bool
	scanReady bool
	deletes   int

	apSSID   string
	apAddr   netip.Addr
	stations int

	calls []string

	// ConnectPolls is how many calls to Connected an association takes.
	// A negative value never associates.
	ConnectPolls int
	// Accept decides whether a set of credentials can associate. Nil
	// accepts everything.
	Accept func(ssid, pass string) bool
	// ScanPolls is how many calls to ScanComplete report a running scan.
	// A negative value never completes.
	ScanPolls int
	// StaticErr is returned by ConfigureStatic.
	StaticErr error
}

// NewWiFi returns a radio with the given MAC address that associates on the
// first poll.
func NewWiFi(mac string) *WiFi {
	return &WiFi{mac: mac}
}

var _ radio.WiFi = (*WiFi)(nil)

func (w *WiFi) record(format string, args ...any) {
	w.calls = append(w.calls, fmt.Sprintf(format, args...))
}

func (w *WiFi) SetMode(m radio.Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("mode %s", m)
	if m != radio.ModeSTA {
		w.connected = false
		w.joining = false
	}
	if m != radio.ModeAP {
		w.apSSID = ""
		w.stations = 0
	}
	w.mode = m
	return nil
}

func (w *WiFi) SetHostname(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("hostname %s", name)
	w.hostname = name
	return nil
}

func (w *WiFi) ConfigureStatic(cfg radio.StaticConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("static %s", cfg.IP)
	if w.StaticErr != nil {
		return w.StaticErr
	}
	w.static = &cfg
	return nil
}

func (w *WiFi) Begin(ssid, pass string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("begin %s", ssid)
	if w.mode != radio.ModeSTA {
		return fmt.Errorf("stub: begin in mode %s", w.mode)
	}
	w.joinedSSID, w.joinedPass = ssid, pass
	w.joining = true
	w.connected = false
	w.assocLeft = w.ConnectPolls
	return nil
}

func (w *WiFi) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connected || !w.joining {
		return w.connected
	}
	if w.Accept != nil && !w.Accept(w.joinedSSID, w.joinedPass) {
		return false
	}
	if w.assocLeft < 0 {
		return false
	}
	if w.assocLeft > 0 {
		w.assocLeft--
		return false
	}
	w.connected = true
	w.joining = false
	return true
}

func (w *WiFi) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("disconnect")
	w.connected = false
	w.joining = false
}

func (w *WiFi) StartScan() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("scan")
	w.scanning = true
	w.scanReady = false
	w.scanLeft = w.ScanPolls
	return nil
}

func (w *WiFi) ScanComplete() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scanReady {
		return len(w.networks)
	}
	if !w.scanning || w.scanLeft < 0 {
		return -1
	}
	if w.scanLeft > 0 {
		w.scanLeft--
		return -1
	}
	w.scanning = false
	w.scanReady = true
	return len(w.networks)
}

func (w *WiFi) ScanResult(i int) radio.ScanEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.scanReady || i < 0 || i >= len(w.networks) {
		return radio.ScanEntry{}
	}
	return w.networks[i]
}

func (w *WiFi) ScanDelete() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scanReady = false
	w.deletes++
}

func (w *WiFi) StartAP(ssid string, addr netip.Addr) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("ap %s", ssid)
	if w.mode != radio.ModeAP {
		return fmt.Errorf("stub: start AP in mode %s", w.mode)
	}
	w.apSSID = ssid
	w.apAddr = addr
	return nil
}

func (w *WiFi) StationCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stations
}

func (w *WiFi) APBSSID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.apSSID == "" {
		return ""
	}
	return w.mac
}

func (w *WiFi) MAC() string {
	return w.mac
}

// SetNetworks replaces the networks reported by the next scan.
func (w *WiFi) SetNetworks(nets []radio.ScanEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.networks = append([]radio.ScanEntry(nil), nets...)
}

// SetStations sets the number of stations associated with the soft AP.
func (w *WiFi) SetStations(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stations = n
}

// DropLink simulates losing the station link.
func (w *WiFi) DropLink() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.joining = false
}

// Mode returns the current radio mode
func (w *WiFi) Mode() radio.Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Hostname returns the last hostname set
func (w *WiFi) Hostname() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hostname
}

// Static returns the applied static configuration, or nil.
func (w *WiFi) Static() *radio.StaticConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.static
}

// Joined returns the SSID passed to the last Begin
func (w *WiFi) Joined() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.joinedSSID
}

// AP returns the SSID and address of the running soft AP.
func (w *WiFi) AP() (string, netip.Addr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.apSSID, w.apAddr
}

// ScanDeletes counts calls to ScanDelete
func (w *WiFi) ScanDeletes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deletes
}

// Calls returns the log of triggering calls, e.g. "mode sta" or "begin Home".
func (w *WiFi) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}
