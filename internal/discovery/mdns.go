package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type the portal advertises
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the default portal port
	DefaultPort = 80

	// TXT record keys. MarkerKey identifies an edgent portal among other
	// _http._tcp services.
	MarkerKey   = "edgent"
	TemplateKey = "tmpl"
	FirmwareKey = "fw"
	UIDKey      = "uid"
)

// TXTRecords builds the TXT entries a portal advertises.
func TXTRecords(templateID, firmware, uid string) []string {
	txt := []string{MarkerKey + "=1"}
	if templateID != "" {
		txt = append(txt, TemplateKey+"="+templateID)
	}
	if firmware != "" {
		txt = append(txt, FirmwareKey+"="+firmware)
	}
	if uid != "" {
		txt = append(txt, UIDKey+"="+uid)
	}
	return txt
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers every device in configuration mode on the local
// network until the timeout expires.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		devices []*Device
		seen    = make(map[string]bool)
	)
	err := s.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[d.Name] {
			seen[d.Name] = true
			devices = append(devices, d)
			logging.Debug("Device discovered", zap.String("name", d.Name), zap.String("addr", d.Addr()))
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Device(nil), devices...), nil
}

// WaitForDevice waits for the device whose instance name or UID matches id.
func (s *Scanner) WaitForDevice(ctx context.Context, id string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Device, 1)
	err := s.browse(ctx, func(d *Device) bool {
		if d.Name != id && d.UID != id {
			return false
		}
		select {
		case found <- d:
		default:
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case d := <-found:
		return d, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("device %s not found within %v", id, s.Timeout)
	}
}

// browse feeds parsed devices to fn until ctx ends or fn returns true.
func (s *Scanner) browse(ctx context.Context, fn func(*Device) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if d := parseServiceEntry(entry); d != nil && fn(d) {
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry is not an edgent portal.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}
	if _, ok := metadata[MarkerKey]; !ok {
		return nil
	}

	// Prefer IPv4, the portal's AP address
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	name := unescapeInstance(entry.Instance)
	if name == "" {
		name = strings.TrimSuffix(entry.HostName, ".")
	}

	return &Device{
		Name:         name,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		TemplateID:   metadata[TemplateKey],
		Firmware:     metadata[FirmwareKey],
		UID:          metadata[UIDKey],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// unescapeInstance undoes the DNS label escaping zeroconf leaves in
// instance names ("Edgent\ Lamp-4F2K").
func unescapeInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices(ctx)
}
