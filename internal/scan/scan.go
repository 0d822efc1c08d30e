package scan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/wait"
	"go.uber.org/zap"
)

const (
	// MaxResults caps the number of networks reported per scan.
	MaxResults = 15

	DefaultTimeout = 20 * time.Second
	PollInterval   = 20 * time.Millisecond
)

var (
	// ErrTimeout is returned when the radio did not finish scanning in time.
	ErrTimeout = errors.New("wifi scan timed out")
	// ErrCancelled is returned when the cancel check fired during a scan.
	ErrCancelled = errors.New("wifi scan cancelled")
)

// Network is one ranked scan result, in wire form.
type Network struct {
	SSID     string `json:"ssid"`
	BSSID    string `json:"bssid"`
	RSSI     int    `json:"rssi"`
	Security string `json:"sec"`
	Channel  int    `json:"ch"`
}

// SecurityName maps a raw security mode to its display name.
func SecurityName(s radio.Security) string {
	switch s {
	case radio.SecOpen:
		return "OPEN"
	case radio.SecWEP:
		return "WEP"
	case radio.SecWPA:
		return "WPA"
	case radio.SecWPA2:
		return "WPA2"
	case radio.SecWPAWPA2:
		return "WPA+WPA2"
	case radio.SecWPA2Enterprise:
		return "WPA2-EAP"
	case radio.SecWPA3:
		return "WPA3"
	case radio.SecWPA2WPA3:
		return "WPA2+WPA3"
	case radio.SecWAPI:
		return "WAPI"
	default:
		return "unknown"
	}
}

// Scanner performs scans on a radio.
type Scanner struct {
	wifi    radio.WiFi
	waiter  wait.Waiter
	timeout time.Duration
}

// New returns a scanner bounded by timeout (DefaultTimeout when zero). The
// waiter's interval is forced to PollInterval.
func New(wifi radio.WiFi, waiter wait.Waiter, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waiter.Interval = PollInterval
	return &Scanner{wifi: wifi, waiter: waiter, timeout: timeout}
}

// Scan triggers a scan, waits for it and returns the ranked networks. Raw
// results are released before returning.
func (s *Scanner) Scan() ([]Network, error) {
	return s.ScanUntil(nil)
}

// ScanUntil is Scan with an extra cancel check, polled alongside the
// waiter's own.
func (s *Scanner) ScanUntil(cancelled func() bool) ([]Network, error) {
	waiter := s.waiter
	if own := waiter.Cancelled; cancelled != nil {
		waiter.Cancelled = func() bool {
			return (own != nil && own()) || cancelled()
		}
	}

	if err := s.wifi.StartScan(); err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}

	found := -1
	outcome := waiter.Until(s.timeout, func() bool {
		found = s.wifi.ScanComplete()
		return found >= 0
	})
	switch outcome {
	case wait.TimedOut:
		s.wifi.ScanDelete()
		return nil, ErrTimeout
	case wait.Cancelled:
		s.wifi.ScanDelete()
		return nil, ErrCancelled
	}

	entries := make([]radio.ScanEntry, found)
	for i := range entries {
		entries[i] = s.wifi.ScanResult(i)
	}
	s.wifi.ScanDelete()

	nets := Rank(entries)
	logging.Debug("Scan finished",
		zap.Int("found", found),
		zap.Int("reported", len(nets)),
	)
	return nets, nil
}

// Rank sorts entries by descending RSSI, keeping discovery order for equal
// signal, and converts the strongest MaxResults to wire form.
func Rank(entries []radio.ScanEntry) []Network {
	sorted := append([]radio.ScanEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RSSI > sorted[j].RSSI
	})
	if len(sorted) > MaxResults {
		sorted = sorted[:MaxResults]
	}

	nets := make([]Network, len(sorted))
	for i, e := range sorted {
		nets[i] = Network{
			SSID:     e.SSID,
			BSSID:    e.BSSID,
			RSSI:     e.RSSI,
			Security: SecurityName(e.Security),
			Channel:  e.Channel,
		}
	}
	return nets
}
