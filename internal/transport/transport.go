package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotAttached is returned when sending on a detached transport.
	ErrNotAttached = errors.New("transport not attached")
	// ErrNoPeer is returned when there is nobody to answer.
	ErrNoPeer = errors.New("no peer waiting for a response")
)

// Command is one inbound message as received from the peer, expected to be
// a single JSON object.
type Command []byte

// Transport is a local configuration channel.
type Transport interface {
	// Name identifies the transport in logs ("portal", "ble").
	Name() string
	// Attach brings the channel up. It is called when a configuration
	// mode is entered.
	Attach(ctx context.Context) error
	// Detach tears the channel down when the configuration modes are left.
	Detach() error
	// Poll performs one cooperative step. Call it frequently while attached.
	Poll()
	HasMessage() bool
	// Receive pops the oldest command, or returns nil when none is queued.
	Receive() Command
	Send(r Response) error
	// PeerConnected reports whether a configuration client is attached.
	PeerConnected() bool
}
