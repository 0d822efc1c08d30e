package stub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/muurk/edgent/internal/radio"
)

// DefaultMTU is the ATT MTU before any exchange.
const DefaultMTU = 23

// Peripheral is an in-memory BLE GATT server with a single simulated
// central.
type Peripheral struct {
	mu sync.Mutex

	name        string
	events      radio.PeripheralEvents
	services    []radio.Service
	advertising bool
	advertised  int
	connected   bool
	mtu         int
	notified    map[string][][]byte
	closed      bool

	// NotifyErr is returned by Notify.
	NotifyErr error
}

// NewPeripheral returns an uninitialised peripheral.
func NewPeripheral() *Peripheral {
	return &Peripheral{mtu: DefaultMTU, notified: make(map[string][][]byte)}
}

var _ radio.Peripheral = (*Peripheral)(nil)

func (p *Peripheral) Init(name string, events radio.PeripheralEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	p.events = events
	p.services = nil
	p.closed = false
	return nil
}

func (p *Peripheral) AddService(svc radio.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.services {
		if s.UUID == svc.UUID {
			return fmt.Errorf("stub: service %s already registered", svc.UUID)
		}
	}
	p.services = append(p.services, svc)
	return nil
}

func (p *Peripheral) Advertise(serviceUUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("stub: peripheral closed")
	}
	p.advertising = true
	p.advertised++
	return nil
}

func (p *Peripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertising = false
	return nil
}

func (p *Peripheral) Notify(charUUID string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NotifyErr != nil {
		return p.NotifyErr
	}
	if !p.connected {
		return errors.New("stub: no central connected")
	}
	p.notified[charUUID] = append(p.notified[charUUID], append([]byte(nil), value...))
	return nil
}

func (p *Peripheral) MTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

func (p *Peripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.advertising = false
	p.connected = false
	p.services = nil
	return nil
}

// Connect simulates a central connecting.
func (p *Peripheral) Connect() {
	p.mu.Lock()
	p.connected = true
	p.advertising = false
	cb := p.events.OnConnect
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Disconnect simulates the central going away. The MTU falls back to the
// default.
func (p *Peripheral) Disconnect() {
	p.mu.Lock()
	p.connected = false
	p.mtu = DefaultMTU
	cb := p.events.OnDisconnect
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// ExchangeMTU simulates an MTU exchange.
func (p *Peripheral) ExchangeMTU(mtu int) {
	p.mu.Lock()
	p.mtu = mtu
	cb := p.events.OnMTU
	p.mu.Unlock()
	if cb != nil {
		cb(mtu)
	}
}

// Write simulates the central writing value to charUUID.
func (p *Peripheral) Write(charUUID string, value []byte) error {
	p.mu.Lock()
	var onWrite func([]byte)
	for _, s := range p.services {
		for _, c := range s.Characteristics {
			if c.UUID == charUUID {
				onWrite = c.OnWrite
			}
		}
	}
	p.mu.Unlock()

	if onWrite == nil {
		return fmt.Errorf("stub: characteristic %s is not writable", charUUID)
	}
	onWrite(append([]byte(nil), value...))
	return nil
}

// Notified returns every value notified on charUUID so far.
func (p *Peripheral) Notified(charUUID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.notified[charUUID]...)
}

// ResetNotified forgets recorded notifications.
func (p *Peripheral) ResetNotified() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified = make(map[string][][]byte)
}

// Name returns the advertised device name
func (p *Peripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Advertising reports whether the peripheral is advertising.
func (p *Peripheral) Advertising() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advertising
}

// AdvertiseCount counts calls to Advertise.
func (p *Peripheral) AdvertiseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advertised
}

// Services returns the registered services.
func (p *Peripheral) Services() []radio.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]radio.Service(nil), p.services...)
}
