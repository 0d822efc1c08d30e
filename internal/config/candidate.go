package config

import (
	"strconv"
	"strings"
)

// Fields are the user-supplied values of a configuration submission.
// Empty strings mean "not supplied".
type Fields struct {
	SSID  string
	Pass  string
	Token string
	Host  string
	Port  string
	IP    string
	Mask  string
	GW    string
	DNS   string
	DNS2  string
	Save  bool
}

// Candidate builds a complete record from the default template and overlays
// the supplied fields. The result is validated as a whole; on error the
// caller's working record must stay untouched.
func Candidate(template Record, f Fields) (Record, error) {
	rec := template

	rec.WiFiSSID = Bounded(f.SSID)
	rec.WiFiPass = Bounded(f.Pass)
	rec.CloudToken = f.Token
	if f.Host != "" {
		rec.CloudHost = Bounded(f.Host)
	}
	if f.Port != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(f.Port)); err == nil && port > 0 && port <= 65535 {
			rec.CloudPort = port
		}
	}

	if ip, ok := ParseAddr(f.IP); ok {
		rec.StaticIP = ip
		rec.SetFlag(FlagStaticIP, true)
	} else {
		rec.SetFlag(FlagStaticIP, false)
	}
	if mask, ok := ParseAddr(f.Mask); ok {
		rec.StaticMask = mask
	}
	if gw, ok := ParseAddr(f.GW); ok {
		rec.StaticGW = gw
	}
	if dns, ok := ParseAddr(f.DNS); ok {
		rec.StaticDNS = dns
	}
	if dns2, ok := ParseAddr(f.DNS2); ok {
		rec.StaticDNS2 = dns2
	}

	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
