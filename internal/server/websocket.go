package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/edgent/internal/cloud"
	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed for the device to send its login frame
	loginWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// handleWebSocket upgrades the request and runs one device session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	remoteAddr := r.RemoteAddr
	logging.LogConnection(remoteAddr, "websocket_upgraded")
	defer func() {
		_ = conn.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	conn.SetReadLimit(maxMessageSize)

	token, ok := s.login(conn, remoteAddr)
	if !ok {
		return
	}

	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.logins++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed or error reading frame",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		m, err := cloud.Decode(data)
		if err != nil {
			logging.Warn("Dropping malformed frame",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			continue
		}
		if !s.handleMessage(conn, token, m) {
			return
		}
	}
}

// login reads and answers the login frame.
func (s *Server) login(conn *websocket.Conn, remoteAddr string) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(loginWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		logging.Info("No login received", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return "", false
	}
	_ = conn.SetReadDeadline(time.Time{})

	m, err := cloud.Decode(data)
	if err != nil || m.Type != cloud.TypeLogin {
		_ = writeMessage(conn, cloud.Message{Type: cloud.TypeLoginFail, Msg: "login expected"})
		return "", false
	}

	if !s.tokenAccepted(m.Token) {
		logging.Warn("Rejected device token",
			zap.String("remote_addr", remoteAddr),
			zap.String("token", logging.Secret(m.Token)),
		)
		_ = writeMessage(conn, cloud.Message{Type: cloud.TypeLoginFail, Msg: "invalid token"})
		return "", false
	}

	if err := writeMessage(conn, cloud.Message{Type: cloud.TypeLoginOK}); err != nil {
		return "", false
	}
	logging.Info("Device logged in",
		zap.String("remote_addr", remoteAddr),
		zap.String("token", logging.Secret(m.Token)),
	)
	return m.Token, true
}

// handleMessage records one frame; false ends the session.
func (s *Server) handleMessage(conn *websocket.Conn, token string, m cloud.Message) bool {
	switch m.Type {
	case cloud.TypeEvent:
		logging.Info("Device event",
			zap.String("token", logging.Secret(token)),
			zap.String("name", m.Name),
			zap.String("value", m.Value),
		)
		s.mu.Lock()
		s.events = append(s.events, Event{Token: token, Name: m.Name, Value: m.Value, At: time.Now()})
		s.mu.Unlock()

	case cloud.TypeMeta:
		logging.Info("Device metadata",
			zap.String("token", logging.Secret(token)),
			zap.String("key", m.Key),
			zap.String("value", m.Value),
		)
		s.mu.Lock()
		if s.metadata[token] == nil {
			s.metadata[token] = make(map[string]string)
		}
		s.metadata[token][m.Key] = m.Value
		s.mu.Unlock()

	case cloud.TypePing:
		return writeMessage(conn, cloud.Message{Type: cloud.TypePong}) == nil

	default:
		logging.Debug("Ignoring message", zap.String("type", m.Type))
	}
	return true
}

// handleStatus reports session counters as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := map[string]int{
		"connections": len(s.activeConns),
		"logins":      s.logins,
		"events":      len(s.events),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func writeMessage(conn *websocket.Conn, m cloud.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}
