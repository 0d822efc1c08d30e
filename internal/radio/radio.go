package radio

import (
	"errors"
	"net/netip"
)

// ErrUnsupported is returned by radios that lack an optional capability.
var ErrUnsupported = errors.New("radio: operation not supported")

// Mode selects what the Wi-Fi radio is doing.
type Mode int

const (
	ModeOff Mode = iota
	ModeAP
	ModeSTA
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeAP:
		return "ap"
	case ModeSTA:
		return "sta"
	default:
		return "unknown"
	}
}

// Security is the raw authentication mode reported for a scanned network.
type Security int

const (
	SecOpen Security = iota
	SecWEP
	SecWPA
	SecWPA2
	SecWPAWPA2
	SecWPA2Enterprise
	SecWPA3
	SecWPA2WPA3
	SecWAPI
	SecUnknown
)

// ScanEntry is one raw network as reported by the radio.
type ScanEntry struct {
	SSID     string
	BSSID    string
	RSSI     int
	Security Security
	Channel  int
}

// StaticConfig is a static IPv4/IPv6 network configuration.
type StaticConfig struct {
	IP      netip.Addr
	Mask    netip.Addr
	Gateway netip.Addr
	DNS     netip.Addr
	DNS2    netip.Addr
}

// WiFi is the station/access-point radio.
//
// Every trigger returns immediately; results are polled. Implementations
// must be safe for use by one goroutine at a time plus concurrent calls to
// StationCount from HTTP handlers.
type WiFi interface {
	SetMode(m Mode) error
	SetHostname(name string) error
	ConfigureStatic(cfg StaticConfig) error

	// Begin starts associating with a network.
	Begin(ssid, pass string) error
	Connected() bool
	Disconnect()

	// StartScan triggers an asynchronous scan.
	StartScan() error
	// ScanComplete returns the number of networks found, or a negative
	// value while the scan is still running.
	ScanComplete() int
	ScanResult(i int) ScanEntry
	// ScanDelete releases the raw scan results.
	ScanDelete()

	// StartAP brings up the soft access point.
	StartAP(ssid string, addr netip.Addr) error
	StationCount() int
	APBSSID() string

	MAC() string
}

// Properties of a GATT characteristic.
type Properties uint8

const (
	PropWrite Properties = 1 << iota
	PropWriteNoResponse
	PropNotify
	PropRead
)

// Characteristic describes one characteristic of a GATT service.
type Characteristic struct {
	UUID       string
	Properties Properties
	// OnWrite receives the value written by the central.
	OnWrite func(value []byte)
}

// Service describes a GATT service to register with the peripheral.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// PeripheralEvents are callbacks invoked from the BLE stack's own context.
type PeripheralEvents struct {
	OnConnect    func()
	OnDisconnect func()
	OnMTU        func(mtu int)
}

// Peripheral is a BLE GATT server.
type Peripheral interface {
	Init(name string, events PeripheralEvents) error
	AddService(svc Service) error
	Advertise(serviceUUID string) error
	StopAdvertising() error
	// Notify sends value on a notify characteristic.
	Notify(charUUID string, value []byte) error
	// MTU is the currently negotiated ATT MTU.
	MTU() int
	Close() error
}

// System is the collaborator loop the engine pumps during every wait.
type System interface {
	Pump()
}

// SystemFunc adapts a plain function to System.
type SystemFunc func()

func (f SystemFunc) Pump() { f() }
