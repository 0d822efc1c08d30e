package config

import (
	"errors"
	"net/netip"
	"strconv"
)

const (
	// MaxFieldLen bounds the SSID, password and host fields of a Record.
	MaxFieldLen = 64

	// TokenLen is the exact length of a cloud auth token.
	TokenLen = 32
)

// ErrInvalidRecord is returned when a candidate record fails validation.
var ErrInvalidRecord = errors.New("configuration invalid")

// Flags is the bit set persisted with a Record.
type Flags uint8

const (
	// FlagValid marks a configuration that has reached the cloud at least once.
	FlagValid Flags = 1 << iota
	// FlagStaticIP selects the static network override.
	FlagStaticIP
)

// ErrorCode is the last provisioning error surfaced to configuration clients.
type ErrorCode int

// Values match the codes reported by deployed firmware in "last_error".
const (
	ErrNone     ErrorCode = 0
	ErrConfig   ErrorCode = 700
	ErrNetwork  ErrorCode = 701
	ErrCloud    ErrorCode = 702
	ErrToken    ErrorCode = 703
	ErrInternal ErrorCode = 801
)

// String returns the short name of the error code
func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "NONE"
	case ErrConfig:
		return "CONFIG"
	case ErrNetwork:
		return "NETWORK"
	case ErrCloud:
		return "CLOUD"
	case ErrToken:
		return "TOKEN"
	case ErrInternal:
		return "INTERNAL"
	default:
		return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
	}
}

// Record is the persisted provisioning configuration.
// A single instance exists per device.
type Record struct {
	WiFiSSID string `yaml:"wifi_ssid"`
	WiFiPass string `yaml:"wifi_pass"`

	CloudToken string `yaml:"cloud_token"`
	CloudHost  string `yaml:"cloud_host"`
	CloudPort  int    `yaml:"cloud_port"`

	// Static network override, used only when FlagStaticIP is set.
	StaticIP   string `yaml:"static_ip,omitempty"`
	StaticMask string `yaml:"static_mask,omitempty"`
	StaticGW   string `yaml:"static_gw,omitempty"`
	StaticDNS  string `yaml:"static_dns,omitempty"`
	StaticDNS2 string `yaml:"static_dns2,omitempty"`

	Flags     Flags     `yaml:"flags"`
	LastError ErrorCode `yaml:"last_error"`

	// FirmwareVersion is the firmware that last completed a cloud handshake.
	FirmwareVersion string `yaml:"firmware_version"`
}

// Has reports whether flag f is set
func (r *Record) Has(f Flags) bool {
	return r.Flags&f != 0
}

// SetFlag sets or clears flag f
func (r *Record) SetFlag(f Flags, on bool) {
	if on {
		r.Flags |= f
	} else {
		r.Flags &^= f
	}
}

// Validate checks the invariants a record must hold before it can replace
// the working configuration.
func (r *Record) Validate() error {
	if len(r.CloudToken) != TokenLen {
		return ErrInvalidRecord
	}
	if r.WiFiSSID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Bounded truncates s to the record's field bound.
func Bounded(s string) string {
	if len(s) > MaxFieldLen {
		return s[:MaxFieldLen]
	}
	return s
}

// ParseAddr returns the canonical form of an IP address string and whether it
// parsed. Empty strings never parse.
func ParseAddr(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
