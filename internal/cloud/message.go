package cloud

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged over the cloud websocket.
const (
	TypeLogin     = "login"
	TypeLoginOK   = "login_ok"
	TypeLoginFail = "login_fail"
	TypeEvent     = "event"
	TypeMeta      = "meta"
	TypePing      = "ping"
	TypePong      = "pong"
)

// DefaultPath is the websocket endpoint path on the cloud host.
const DefaultPath = "/ws"

// Message is a single cloud frame.
type Message struct {
	Type  string `json:"t"`
	Token string `json:"token,omitempty"`
	Name  string `json:"name,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// Decode parses a frame and checks that it carries a type.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode cloud message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("cloud message without type")
	}
	return m, nil
}
