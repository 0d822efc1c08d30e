package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/edgent/internal/cloud"
)

const testToken = "0123456789abcdef0123456789abcdef"

func startServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	cfg.Host = "127.0.0.1"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go func() { _ = s.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func dial(t *testing.T, s *Server, dialer *websocket.Dialer, scheme string) *websocket.Conn {
	t.Helper()

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.Dial(scheme+"://"+s.Addr()+cloud.DefaultPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, m cloud.Message) cloud.Message {
	t.Helper()

	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply cloud.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return reply
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		msg    cloud.Message
		want   string
	}{
		{"listed token", []string{testToken}, cloud.Message{Type: cloud.TypeLogin, Token: testToken}, cloud.TypeLoginOK},
		{"unlisted token", []string{testToken}, cloud.Message{Type: cloud.TypeLogin, Token: "ffffffffffffffffffffffffffffffff"}, cloud.TypeLoginFail},
		{"open list any 32 chars", nil, cloud.Message{Type: cloud.TypeLogin, Token: "ffffffffffffffffffffffffffffffff"}, cloud.TypeLoginOK},
		{"open list short token", nil, cloud.Message{Type: cloud.TypeLogin, Token: "short"}, cloud.TypeLoginFail},
		{"not a login", nil, cloud.Message{Type: cloud.TypeEvent, Name: "x"}, cloud.TypeLoginFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startServer(t, &Config{Tokens: tt.tokens})
			conn := dial(t, s, nil, "ws")

			reply := roundTrip(t, conn, tt.msg)
			if reply.Type != tt.want {
				t.Errorf("reply = %q, want %q", reply.Type, tt.want)
			}
		})
	}
}

func TestEventsAndMetadata(t *testing.T) {
	s := startServer(t, &Config{Tokens: []string{testToken}})
	conn := dial(t, s, nil, "ws")

	if reply := roundTrip(t, conn, cloud.Message{Type: cloud.TypeLogin, Token: testToken}); reply.Type != cloud.TypeLoginOK {
		t.Fatalf("login reply = %q", reply.Type)
	}

	_ = conn.WriteJSON(cloud.Message{Type: cloud.TypeEvent, Name: "sys_ota", Value: "1.0.0"})
	_ = conn.WriteJSON(cloud.Message{Type: cloud.TypeMeta, Key: "Device UID", Value: "abc"})

	// ping is answered in order, so both frames above are recorded once pong arrives
	if reply := roundTrip(t, conn, cloud.Message{Type: cloud.TypePing}); reply.Type != cloud.TypePong {
		t.Fatalf("ping reply = %q", reply.Type)
	}

	events := s.Events()
	if len(events) != 1 || events[0].Name != "sys_ota" || events[0].Value != "1.0.0" || events[0].Token != testToken {
		t.Errorf("Events() = %+v", events)
	}
	if got := s.Metadata(testToken)["Device UID"]; got != "abc" {
		t.Errorf("Metadata()[Device UID] = %q, want abc", got)
	}
	if s.GetActiveConnections() != 1 || s.Logins() != 1 {
		t.Errorf("connections = %d, logins = %d", s.GetActiveConnections(), s.Logins())
	}
}

func TestDropConnections(t *testing.T) {
	s := startServer(t, &Config{})
	conn := dial(t, s, nil, "ws")
	roundTrip(t, conn, cloud.Message{Type: cloud.TypeLogin, Token: testToken})

	waitFor(t, "session", func() bool { return s.GetActiveConnections() == 1 })
	s.DropConnections()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after DropConnections")
	}
	waitFor(t, "session cleanup", func() bool { return s.GetActiveConnections() == 0 })
}

func TestStatus(t *testing.T) {
	s := startServer(t, &Config{})
	conn := dial(t, s, nil, "ws")
	roundTrip(t, conn, cloud.Message{Type: cloud.TypeLogin, Token: testToken})
	waitFor(t, "login", func() bool { return s.Logins() == 1 })

	resp, err := http.Get("http://" + s.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var status map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if status["logins"] != 1 {
		t.Errorf("status = %v, want logins 1", status)
	}
}

func TestGeneratedCertificate(t *testing.T) {
	s := startServer(t, &Config{TLS: true, GenerateCert: true})
	if s.Certificate() == nil {
		t.Fatal("Certificate() = nil with GenerateCert")
	}

	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	dialer := &websocket.Dialer{
		TLSClientConfig:  &tls.Config{RootCAs: pool},
		HandshakeTimeout: 5 * time.Second,
	}
	conn := dial(t, s, dialer, "wss")

	if reply := roundTrip(t, conn, cloud.Message{Type: cloud.TypeLogin, Token: testToken}); reply.Type != cloud.TypeLoginOK {
		t.Errorf("login over TLS reply = %q", reply.Type)
	}
}

func TestGenerateServerCert_Hosts(t *testing.T) {
	cert, err := GenerateServerCert(CertParams{
		CommonName: "dev",
		Hosts:      []string{"localhost", "10.0.0.1"},
		ValidDays:  1,
	})
	if err != nil {
		t.Fatalf("GenerateServerCert() error = %v", err)
	}
	if len(cert.Certificate.DNSNames) != 1 || cert.Certificate.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v", cert.Certificate.DNSNames)
	}
	if len(cert.Certificate.IPAddresses) != 1 || cert.Certificate.IPAddresses[0].String() != "10.0.0.1" {
		t.Errorf("IPAddresses = %v", cert.Certificate.IPAddresses)
	}
	if _, err := NewTLSConfigFromMemory(cert.CertPEM, cert.KeyPEM); err != nil {
		t.Errorf("NewTLSConfigFromMemory() error = %v", err)
	}
}
