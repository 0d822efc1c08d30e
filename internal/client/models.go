package client

import (
	"net/url"
	"strconv"
)

// Provision is one /config request: Wi-Fi credentials, the device token and
// optional cloud endpoint and static addressing.
type Provision struct {
	SSID     string
	Password string
	Token    string

	// Host and Port override the cloud endpoint. Zero values keep the
	// device defaults.
	Host string
	Port int

	// Static addressing. IP alone enables it; the rest are optional.
	IP   string
	Mask string
	GW   string
	DNS  string
	DNS2 string

	// Save stores the configuration before the device has verified it.
	Save bool
}

// ToQuery encodes the request as the /config query string. Empty fields are
// left out.
func (p *Provision) ToQuery() url.Values {
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}

	set("ssid", p.SSID)
	set("pass", p.Password)
	set("blynk", p.Token)
	set("host", p.Host)
	if p.Port != 0 {
		q.Set("port", strconv.Itoa(p.Port))
	}
	set("ip", p.IP)
	set("mask", p.Mask)
	set("gw", p.GW)
	set("dns", p.DNS)
	set("dns2", p.DNS2)
	if p.Save {
		q.Set("save", "1")
	}
	return q
}

// Result is the {status,msg} reply of /config, /reset and /reboot.
type Result struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// OK reports whether the device accepted the request.
func (r Result) OK() bool {
	return r.Status == "ok"
}
