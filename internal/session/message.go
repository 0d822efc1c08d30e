package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/transport"
)

var errMalformed = errors.New("malformed command")

// message is a decoded command.
type message struct {
	Type   string
	Fields map[string]json.RawMessage
}

func decode(cmd transport.Command) (message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(cmd, &raw); err != nil {
		return message{}, fmt.Errorf("%w: %v", errMalformed, err)
	}

	var typ string
	if err := json.Unmarshal(raw["t"], &typ); err != nil || typ == "" {
		return message{}, fmt.Errorf("%w: missing type", errMalformed)
	}
	delete(raw, "t")

	return message{Type: typ, Fields: raw}, nil
}

// scalar converts a JSON string, number or boolean to its text form.
func scalar(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n':
		return "", string(v) == "null"
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return "", false
		}
		if b {
			return "true", true
		}
		return "false", true
	case '{', '[':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}

// truthy reports whether a "save" value requests a forced save: true, or
// a non-zero integer. Anything else, including "no" and "off", does not.
func truthy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "true") {
		return true
	}
	n, err := strconv.Atoi(s)
	return err == nil && n != 0
}

// overlay applies fields onto f. It fails on unknown keys or non-scalar
// values, leaving f untouched.
func overlay(f config.Fields, fields map[string]json.RawMessage) (config.Fields, error) {
	out := f
	for key, raw := range fields {
		val, ok := scalar(raw)
		if !ok {
			return f, fmt.Errorf("invalid value for %q", key)
		}
		switch key {
		case "ssid":
			out.SSID = val
		case "pass":
			out.Pass = val
		case "blynk":
			out.Token = val
		case "host":
			out.Host = val
		case "port":
			out.Port = val
		case "ip":
			out.IP = val
		case "mask":
			out.Mask = val
		case "gw":
			out.GW = val
		case "dns":
			out.DNS = val
		case "dns2":
			out.DNS2 = val
		case "save":
			out.Save = truthy(val)
		default:
			return f, fmt.Errorf("unknown field %q", key)
		}
	}
	return out, nil
}
