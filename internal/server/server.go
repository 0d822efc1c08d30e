package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/muurk/edgent/internal/cloud"
	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

// Config holds the server configuration
type Config struct {
	Host         string
	Port         int
	TLS          bool
	CertPath     string // Path to certificate file (optional if GenerateCert is true)
	KeyPath      string // Path to private key file (optional if GenerateCert is true)
	GenerateCert bool   // If true, auto-generate a self-signed certificate in memory
	Path         string // Websocket path (default cloud.DefaultPath)
	// Tokens accepted at login. Empty accepts any 32 character token.
	Tokens []string
}

// Event is a device event received by the server.
type Event struct {
	Token string
	Name  string
	Value string
	At    time.Time
}

// Server is a development cloud endpoint for edgent devices
type Server struct {
	config     *Config
	listener   net.Listener
	httpServer *http.Server
	tlsConfig  *tls.Config
	cert       *x509.Certificate
	upgrader   websocket.Upgrader
	tokens     map[string]bool

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
	events      []Event
	metadata    map[string]map[string]string
	logins      int
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config.Path == "" {
		config.Path = cloud.DefaultPath
	}

	s := &Server{
		config:      config,
		tokens:      make(map[string]bool, len(config.Tokens)),
		activeConns: make(map[string]*websocket.Conn),
		metadata:    make(map[string]map[string]string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, t := range config.Tokens {
		s.tokens[t] = true
	}

	if !config.TLS {
		return s, nil
	}

	var err error
	if config.GenerateCert {
		logging.Info("Generating self-signed server certificate")
		s.tlsConfig, s.cert, err = generateAndLoadCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
	} else {
		s.tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}
	return s, nil
}

// Listen opens the listening socket. Port 0 picks a free port.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	var listener net.Listener
	var err error
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	r := chi.NewRouter()
	r.Get(s.config.Path, s.handleWebSocket)
	r.Get("/status", s.handleStatus)
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Cloud endpoint listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)
	return nil
}

// Serve accepts connections on the listener opened by Listen until shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens and serves, blocking until a shutdown signal or error
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Addr returns the listening address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Certificate returns the generated certificate, if any.
func (s *Server) Certificate() *x509.Certificate {
	return s.cert
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logging.Error("Error stopping HTTP server", zap.Error(err))
		}
	}

	// Hijacked websocket connections are not closed by http.Server.Shutdown
	s.DropConnections()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return nil
}

// DropConnections closes every device session without stopping the server.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
}

// GetActiveConnections returns the number of logged in device sessions
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Logins returns the number of successful logins since start.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Events returns a copy of all events received so far.
func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Metadata returns a copy of the metadata a device published.
func (s *Server) Metadata(token string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.metadata[token]))
	for k, v := range s.metadata[token] {
		out[k] = v
	}
	return out
}

func (s *Server) tokenAccepted(token string) bool {
	if len(s.tokens) == 0 {
		return len(token) == 32
	}
	return s.tokens[token]
}

// generateAndLoadCert generates a self-signed certificate and returns a TLS
// configuration using it. The certificate is kept in memory only.
func generateAndLoadCert() (*tls.Config, *x509.Certificate, error) {
	params := DefaultCertParams()

	logging.Info("Generating certificate with parameters",
		zap.String("CN", params.CommonName),
		zap.Strings("hosts", params.Hosts),
		zap.Int("valid_days", params.ValidDays),
	)

	serverCert, err := GenerateServerCert(params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate server certificate: %w", err)
	}

	logging.Info("Certificate generated successfully",
		zap.String("CN", serverCert.Certificate.Subject.CommonName),
		zap.Time("not_after", serverCert.Certificate.NotAfter),
	)

	tlsConfig, err := NewTLSConfigFromMemory(serverCert.CertPEM, serverCert.KeyPEM)
	if err != nil {
		return nil, nil, err
	}
	return tlsConfig, serverCert.Certificate, nil
}
