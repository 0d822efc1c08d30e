package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/muurk/edgent/internal/scan"
)

// Response types, carried in the "t" key on message-oriented transports.
const (
	TypeInfo        = "info"
	TypeSetOK       = "set_ok"
	TypeSetFail     = "set_fail"
	TypeConnecting  = "connecting"
	TypeConnectFail = "connect_fail"
	TypeConfig      = "config"
	TypeScanStart   = "scan_start"
	TypeScan        = "scan"
	TypeScanEnd     = "scan_end"
	TypeResetOK     = "reset_ok"
	TypeReboot      = "reboot"
	TypeError       = "error"
)

// Status values of {status,msg} payloads.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BoardInfo describes the device to a configuration client.
type BoardInfo struct {
	Board           string `json:"board,omitempty"`
	TemplateID      string `json:"tmpl_id"`
	FirmwareType    string `json:"fw_type"`
	FirmwareVersion string `json:"fw_ver"`
	UID             string `json:"uid,omitempty"`
	SSID            string `json:"ssid"`
	BSSID           string `json:"bssid,omitempty"`
	MAC             string `json:"mac"`
	LastError       int    `json:"last_error"`
	WiFiScan        bool   `json:"wifi_scan"`
	StaticIP        bool   `json:"static_ip"`
}

// Response is one outbound message. Exactly one of Info, Network or the
// Status/Msg pair is meaningful.
type Response struct {
	Type    string
	Status  string
	Msg     string
	Info    *BoardInfo
	Network *scan.Network
}

// Intermediate reports whether more responses to the same command follow.
func (r Response) Intermediate() bool {
	return r.Type == TypeScanStart || r.Type == TypeScan
}

// Failed reports whether the response rejects the command.
func (r Response) Failed() bool {
	switch r.Type {
	case TypeSetFail, TypeConnectFail, TypeError:
		return true
	}
	return r.Status == StatusError
}

type statusBody struct {
	Status string `json:"status,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// Body encodes the response without its type key, as the HTTP endpoints
// return it.
func (r Response) Body() ([]byte, error) {
	switch {
	case r.Info != nil:
		return json.Marshal(r.Info)
	case r.Network != nil:
		return json.Marshal(r.Network)
	default:
		return json.Marshal(statusBody{Status: r.Status, Msg: r.Msg})
	}
}

// MarshalJSON encodes the response as a single object with the type in "t".
func (r Response) MarshalJSON() ([]byte, error) {
	body, err := r.Body()
	if err != nil {
		return nil, err
	}
	if r.Type == "" {
		return body, nil
	}

	t, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"t":`)
	buf.Write(t)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Response) String() string {
	if r.Msg != "" {
		return fmt.Sprintf("%s(%s: %s)", r.Type, r.Status, r.Msg)
	}
	return r.Type
}
