package discovery

import (
	"fmt"
	"strconv"
	"time"
)

// Device represents a device found in configuration mode
type Device struct {
	// Name is the mDNS instance name, the same as the device's hotspot SSID
	// (e.g., "Edgent Lamp-4F2K")
	Name string

	// Hostname is the mDNS hostname
	Hostname string

	// IP is the IPv4 address of the portal (e.g., "192.168.4.1")
	IP string

	// Port is the portal HTTP port (typically 80)
	Port int

	// TemplateID, Firmware and UID come from the TXT record
	TemplateID string
	Firmware   string
	UID        string

	// Metadata contains every TXT record entry
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s [%s fw %s] at %s:%d", d.Name, d.TemplateID, d.Firmware, d.IP, d.Port)
}

// BaseURL returns the HTTP base URL for the portal
func (d *Device) BaseURL() string {
	return "http://" + d.Addr()
}

// Addr returns host:port, bracketing IPv6 literals.
func (d *Device) Addr() string {
	return joinHostPort(d.IP, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

func joinHostPort(host string, port int) string {
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			return "[" + host + "]:" + strconv.Itoa(port)
		}
	}
	return host + ":" + strconv.Itoa(port)
}
