package cloud

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned by Connect before Configure was called.
	ErrNotConfigured = errors.New("cloud endpoint not configured")
	// ErrNotConnected is returned when sending without a live session.
	ErrNotConnected = errors.New("cloud session not connected")
)

const (
	// Time allowed to write a frame to the cloud
	writeWait = 10 * time.Second

	// DefaultHandshakeTimeout bounds dialing plus the login exchange
	DefaultHandshakeTimeout = 15 * time.Second
)

// Client is the cloud collaborator driven by the connectivity machine.
//
// Connect must not block: it starts an attempt whose outcome is observed
// through Connected and TokenInvalid.
type Client interface {
	Configure(token, host string, port int)
	Connect() error
	Connected() bool
	TokenInvalid() bool
	Disconnect()
	SendEvent(name, value string) error
	SetMetadata(key, value string) error
}

// Options tune a WSClient.
type Options struct {
	// TLS selects wss:// instead of ws://
	TLS bool
	// TLSConfig is used for wss:// connections (nil = system roots)
	TLSConfig *tls.Config
	// Path of the websocket endpoint (default DefaultPath)
	Path string
	// HandshakeTimeout bounds dial plus login (default DefaultHandshakeTimeout)
	HandshakeTimeout time.Duration
}

// WSClient is a Client over a gorilla websocket.
type WSClient struct {
	opts   Options
	dialer *websocket.Dialer

	mu         sync.Mutex
	token      string
	host       string
	port       int
	conn       *websocket.Conn
	connecting bool
	// gen invalidates in-flight attempts after Disconnect or Configure
	gen uint64

	writeMu sync.Mutex

	connected    atomic.Bool
	tokenInvalid atomic.Bool
}

// NewWSClient creates an unconfigured websocket client.
func NewWSClient(opts Options) *WSClient {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &WSClient{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			TLSClientConfig:  opts.TLSConfig,
		},
	}
}

// Configure sets the endpoint and token, dropping any current session.
func (c *WSClient) Configure(token, host string, port int) {
	c.Disconnect()

	c.mu.Lock()
	c.token = token
	c.host = host
	c.port = port
	c.tokenInvalid.Store(false)
	c.mu.Unlock()
}

// URL returns the websocket URL for the configured endpoint.
func (c *WSClient) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urlLocked()
}

func (c *WSClient) urlLocked() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		Path:   c.opts.Path,
	}
	if c.opts.TLS {
		u.Scheme = "wss"
	}
	return u.String()
}

// Connect starts a connection attempt in the background. It is a no-op while
// an attempt is running or a session is up.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	if c.host == "" {
		c.mu.Unlock()
		return ErrNotConfigured
	}
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.gen++
	gen := c.gen
	target := c.urlLocked()
	token := c.token
	c.mu.Unlock()

	logging.Info("Connecting to cloud", zap.String("url", target))
	go c.session(gen, target, token)
	return nil
}

// session dials, logs in and then reads until the connection drops.
func (c *WSClient) session(gen uint64, target, token string) {
	conn, err := c.login(gen, target, token)
	if err != nil {
		logging.Warn("Cloud connection attempt failed",
			zap.String("url", target),
			zap.Error(err),
		)
		c.mu.Lock()
		if c.gen == gen {
			c.connecting = false
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connecting = false
	c.connected.Store(true)
	c.mu.Unlock()

	logging.LogConnection(target, "cloud_connected")
	c.readLoop(conn)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected.Store(false)
	}
	c.mu.Unlock()
	_ = conn.Close()
	logging.LogConnection(target, "cloud_disconnected")
}

// login dials and authenticates. A rejection only marks the token invalid
// while gen is still the current attempt.
func (c *WSClient) login(gen uint64, target, token string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(Message{Type: TypeLogin, Token: token}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send login: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read login reply: %w", err)
	}
	reply, err := Decode(data)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	switch reply.Type {
	case TypeLoginOK:
		_ = conn.SetReadDeadline(time.Time{})
		return conn, nil
	case TypeLoginFail:
		c.mu.Lock()
		if c.gen == gen {
			c.tokenInvalid.Store(true)
		}
		c.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("login rejected: %s", reply.Msg)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected login reply %q", reply.Type)
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("Cloud read ended", zap.Error(err))
			}
			return
		}

		m, err := Decode(data)
		if err != nil {
			logging.Warn("Dropping cloud frame", zap.Error(err))
			continue
		}
		switch m.Type {
		case TypePing:
			if err := c.write(conn, Message{Type: TypePong}); err != nil {
				return
			}
		default:
			logging.Debug("Cloud message", zap.String("type", m.Type))
		}
	}
}

// Connected reports whether the login handshake succeeded and the session is up.
func (c *WSClient) Connected() bool {
	return c.connected.Load()
}

// TokenInvalid reports whether the cloud rejected the configured token.
func (c *WSClient) TokenInvalid() bool {
	return c.tokenInvalid.Load()
}

// Disconnect closes the session and abandons any attempt in flight.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.connecting = false
	conn := c.conn
	c.conn = nil
	c.connected.Store(false)
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

// SendEvent pushes a named event to the cloud.
func (c *WSClient) SendEvent(name, value string) error {
	return c.send(Message{Type: TypeEvent, Name: name, Value: value})
}

// SetMetadata publishes a device metadata entry.
func (c *WSClient) SetMetadata(key, value string) error {
	return c.send(Message{Type: TypeMeta, Key: key, Value: value})
}

func (c *WSClient) send(m Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, m)
}

func (c *WSClient) write(conn *websocket.Conn, m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(m); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.Type, err)
	}
	return nil
}
