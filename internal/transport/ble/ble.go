package ble

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/radio"
	"github.com/muurk/edgent/internal/transport"
	"github.com/muurk/edgent/internal/wait"
	"go.uber.org/zap"
)

// GATT layout. The characteristics share the service UUID with a different
// 16-bit prefix.
var (
	ServiceUUID = uuid.MustParse("95e30001-5737-45a9-a092-a88e2e5dd659")
	RXUUID      = characteristic(ServiceUUID, 0x0002)
	TXUUID      = characteristic(ServiceUUID, 0x0003)
)

const (
	// attOverhead is the ATT header carried by every notification.
	attOverhead = 3

	// DefaultMTU is the ATT MTU before the central negotiates a larger one.
	DefaultMTU = 23

	DefaultQueueDepth = 16

	radioOffSettle = 100 * time.Millisecond
)

func characteristic(base uuid.UUID, short uint16) uuid.UUID {
	id := base
	id[2] = byte(short >> 8)
	id[3] = byte(short)
	return id
}

// Config wires a BLE transport to its collaborators.
type Config struct {
	Peripheral radio.Peripheral
	// WiFi, when set, is switched off before advertising.
	WiFi   radio.WiFi
	Waiter wait.Waiter
	// Name is the advertised device name.
	Name       string
	MTU        int
	QueueDepth int
}

// Transport is the BLE configuration transport.
type Transport struct {
	cfg   Config
	queue *transport.Queue

	attached  bool
	connected atomic.Bool
	mtu       atomic.Int32
	dropped   atomic.Int64
}

// New returns a detached BLE transport.
func New(cfg Config) *Transport {
	if cfg.MTU < DefaultMTU {
		cfg.MTU = DefaultMTU
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	t := &Transport{cfg: cfg, queue: transport.NewQueue(cfg.QueueDepth)}
	t.mtu.Store(int32(cfg.MTU))
	return t
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Name() string { return config.TransportBLE }

// Attach registers the GATT service and starts advertising.
func (t *Transport) Attach(ctx context.Context) error {
	if t.attached {
		return nil
	}

	if t.cfg.WiFi != nil {
		if err := t.cfg.WiFi.SetMode(radio.ModeOff); err != nil {
			return fmt.Errorf("failed to switch Wi-Fi off: %w", err)
		}
		t.cfg.Waiter.Sleep(radioOffSettle)
	}

	p := t.cfg.Peripheral
	err := p.Init(t.cfg.Name, radio.PeripheralEvents{
		OnConnect:    t.onConnect,
		OnDisconnect: t.onDisconnect,
		OnMTU:        t.onMTU,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise BLE: %w", err)
	}

	err = p.AddService(radio.Service{
		UUID: ServiceUUID.String(),
		Characteristics: []radio.Characteristic{
			{UUID: RXUUID.String(), Properties: radio.PropWrite | radio.PropWriteNoResponse, OnWrite: t.onWrite},
			{UUID: TXUUID.String(), Properties: radio.PropNotify},
		},
	})
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("failed to register GATT service: %w", err)
	}

	if err := p.Advertise(ServiceUUID.String()); err != nil {
		_ = p.Close()
		return fmt.Errorf("failed to start advertising: %w", err)
	}

	t.attached = true
	logging.Info("BLE transport attached", zap.String("name", t.cfg.Name))
	return nil
}

// Detach stops advertising and releases the peripheral.
func (t *Transport) Detach() error {
	if !t.attached {
		return nil
	}
	t.attached = false
	t.connected.Store(false)
	t.queue.Clear()

	_ = t.cfg.Peripheral.StopAdvertising()
	if err := t.cfg.Peripheral.Close(); err != nil {
		return fmt.Errorf("failed to close BLE peripheral: %w", err)
	}
	logging.Info("BLE transport detached")
	return nil
}

// Poll reports writes dropped since the last poll. Inbound data arrives
// through callbacks.
func (t *Transport) Poll() {
	if n := t.dropped.Swap(0); n > 0 {
		logging.Warn("BLE commands dropped, queue full", zap.Int64("dropped", n))
	}
}

func (t *Transport) HasMessage() bool {
	return t.queue.Len() > 0
}

func (t *Transport) Receive() transport.Command {
	cmd, ok := t.queue.Pop()
	if !ok {
		return nil
	}
	return cmd
}

// Send notifies the JSON encoding of r in chunks of MTU-3 bytes.
func (t *Transport) Send(r transport.Response) error {
	if !t.attached {
		return transport.ErrNotAttached
	}
	if !t.connected.Load() {
		return transport.ErrNoPeer
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	logging.LogCommand(t.Name(), "send", data)

	for _, chunk := range Chunk(data, int(t.mtu.Load())-attOverhead) {
		logging.LogRawBytes("GATT notify", chunk)
		if err := t.cfg.Peripheral.Notify(TXUUID.String(), chunk); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
	}
	return nil
}

func (t *Transport) PeerConnected() bool {
	return t.connected.Load()
}

// MTU returns the ATT MTU currently in use
func (t *Transport) MTU() int {
	return int(t.mtu.Load())
}

// Chunk splits data into pieces of at most size bytes.
func Chunk(data []byte, size int) [][]byte {
	if size < 1 {
		size = 1
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}
	return chunks
}

func (t *Transport) onConnect() {
	t.connected.Store(true)
	logging.Info("BLE central connected")
}

func (t *Transport) onDisconnect() {
	t.connected.Store(false)
	t.mtu.Store(int32(t.cfg.MTU))
	logging.Info("BLE central disconnected")

	if err := t.cfg.Peripheral.Advertise(ServiceUUID.String()); err != nil {
		logging.Error("Failed to restart advertising", zap.Error(err))
	}
}

func (t *Transport) onMTU(mtu int) {
	if mtu < DefaultMTU {
		return
	}
	t.mtu.Store(int32(mtu))
	logging.Debug("BLE MTU negotiated", zap.Int("mtu", mtu))
}

func (t *Transport) onWrite(value []byte) {
	if len(value) == 0 {
		return
	}
	logging.LogCommand(t.Name(), "recv", value)
	if t.queue.Push(value) {
		t.dropped.Add(1)
	}
}
