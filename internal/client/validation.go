package client

import (
	"fmt"
	"net/netip"
)

const (
	// TokenLength is the exact length of a device auth token.
	TokenLength = 32

	// MaxSSIDLength is the 802.11 SSID limit.
	MaxSSIDLength = 32

	// MaxFieldLength is the longest value the device stores per field.
	MaxFieldLength = 64
)

// ValidateToken checks a device auth token.
func ValidateToken(token string) error {
	if len(token) != TokenLength {
		return NewValidationError(fmt.Sprintf("token must be %d characters, got %d", TokenLength, len(token)))
	}
	return nil
}

// ValidateSSID checks a network name.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("ssid cannot be empty")
	}
	if len(ssid) > MaxSSIDLength {
		return NewValidationError(fmt.Sprintf("ssid must be at most %d bytes, got %d", MaxSSIDLength, len(ssid)))
	}
	return nil
}

// ValidatePort checks a cloud port. Zero means "device default".
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return NewValidationError(fmt.Sprintf("port must be between 1 and 65535, got %d", port))
	}
	return nil
}

// ValidateAddr checks an optional IPv4 address field.
func ValidateAddr(field, value string) error {
	if value == "" {
		return nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil || !addr.Is4() {
		return NewValidationError(fmt.Sprintf("%s: %q is not an IPv4 address", field, value))
	}
	return nil
}

// Validate checks the request with the same rules the device applies.
func (p *Provision) Validate() error {
	if err := ValidateSSID(p.SSID); err != nil {
		return err
	}
	if err := ValidateToken(p.Token); err != nil {
		return err
	}
	if len(p.Password) > MaxFieldLength {
		return NewValidationError(fmt.Sprintf("password must be at most %d bytes", MaxFieldLength))
	}
	if len(p.Host) > MaxFieldLength {
		return NewValidationError(fmt.Sprintf("host must be at most %d bytes", MaxFieldLength))
	}
	if err := ValidatePort(p.Port); err != nil {
		return err
	}

	if p.IP == "" && (p.Mask != "" || p.GW != "" || p.DNS != "" || p.DNS2 != "") {
		return NewValidationError("static addressing requires ip")
	}
	for _, f := range []struct{ name, value string }{
		{"ip", p.IP},
		{"mask", p.Mask},
		{"gw", p.GW},
		{"dns", p.DNS},
		{"dns2", p.DNS2},
	} {
		if err := ValidateAddr(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}
