package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	portal := func(mut func(e *zeroconf.ServiceEntry)) *zeroconf.ServiceEntry {
		e := &zeroconf.ServiceEntry{
			ServiceRecord: zeroconf.ServiceRecord{Instance: `Edgent\ Lamp-4F2K`},
			HostName:      "Edgent-Lamp-4F2K.local.",
			Port:          80,
			AddrIPv4:      []net.IP{net.ParseIP("192.168.4.1")},
			Text:          TXTRecords("TMPL1234", "1.2.3", "4F2K"),
		}
		if mut != nil {
			mut(e)
		}
		return e
	}

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantName string
		wantIP   string
		wantPort int
	}{
		{
			name:     "edgent portal",
			entry:    portal(nil),
			wantName: "Edgent Lamp-4F2K",
			wantIP:   "192.168.4.1",
			wantPort: 80,
		},
		{
			name:     "port defaults to 80",
			entry:    portal(func(e *zeroconf.ServiceEntry) { e.Port = 0 }),
			wantName: "Edgent Lamp-4F2K",
			wantIP:   "192.168.4.1",
			wantPort: 80,
		},
		{
			name: "ipv6 fallback",
			entry: portal(func(e *zeroconf.ServiceEntry) {
				e.AddrIPv4 = nil
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
			}),
			wantName: "Edgent Lamp-4F2K",
			wantIP:   "fe80::1",
			wantPort: 80,
		},
		{
			name:     "hostname when instance missing",
			entry:    portal(func(e *zeroconf.ServiceEntry) { e.Instance = "" }),
			wantName: "Edgent-Lamp-4F2K.local",
			wantIP:   "192.168.4.1",
			wantPort: 80,
		},
		{
			name:    "other http service",
			entry:   portal(func(e *zeroconf.ServiceEntry) { e.Text = []string{"path=/"} }),
			wantNil: true,
		},
		{
			name:    "no address",
			entry:   portal(func(e *zeroconf.ServiceEntry) { e.AddrIPv4 = nil }),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if d != nil {
					t.Fatalf("parseServiceEntry() = %v, want nil", d)
				}
				return
			}
			if d == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if d.Name != tt.wantName || d.IP != tt.wantIP || d.Port != tt.wantPort {
				t.Errorf("device = %+v", d)
			}
			if d.TemplateID != "TMPL1234" || d.Firmware != "1.2.3" || d.UID != "4F2K" {
				t.Errorf("TXT fields = %q %q %q", d.TemplateID, d.Firmware, d.UID)
			}
			if d.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestTXTRecords(t *testing.T) {
	got := TXTRecords("TMPL1234", "", "4F2K")
	want := []string{"edgent=1", "tmpl=TMPL1234", "uid=4F2K"}
	if len(got) != len(want) {
		t.Fatalf("TXTRecords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TXTRecords()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewScanner(t *testing.T) {
	if s := NewScanner(); s.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
}
