package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// session is one live notification channel. Writes are serialized by the
// session mutex because the bus may fan out from several goroutines.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) Send(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// handleWS upgrades the connection, verifies the credential from the token
// query parameter and admits the channel to the registry. A bad credential
// gets one error frame and the connection is closed; anonymous channels are
// never registered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	claims, err := s.Verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		_ = conn.WriteJSON(events.Error("invalid or missing credential"))
		_ = conn.Close()
		return
	}

	sess := &session{conn: conn}
	s.Registry.Register(claims.Subject, claims.Role, sess)
	observability.WSConnections.Inc()
	s.logger.Info("channel opened", "identity", claims.Subject, "role", string(claims.Role))

	_ = sess.Send(events.Hello(claims.Subject, claims.Role))

	// Block until the peer goes away. Inbound frames carry no commands;
	// all client actions arrive over the HTTP API.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.Registry.Unregister(claims.Subject, sess)
	observability.WSConnections.Dec()
	_ = conn.Close()
	s.logger.Info("channel closed", "identity", claims.Subject)
}
