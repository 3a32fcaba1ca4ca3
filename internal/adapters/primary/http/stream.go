package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/adapters/secondary/propagation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// Le CORS est géré par le middleware rs/cors en amont.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hintMessage : volontairement vide de tout état. Le client qui le reçoit
// rappelle checkAccess ; il ne doit RIEN déduire du message lui-même.
type hintMessage struct {
	Type   string `json:"type"` // toujours "recheck"
	Reason string `json:"reason,omitempty"`
}

// StreamHandler branche une session websocket sur le hub in-process :
// c'est le canal de propagation le plus immédiat, celui qui atteint les
// onglets du même navigateur sans attendre le prochain tick de poll.
type StreamHandler struct {
	hub *propagation.Hub
}

func NewStreamHandler(hub *propagation.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

func (s *StreamHandler) stream(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	hints, cancel := s.hub.Subscribe(identityID)
	defer cancel()

	// Reader en arrière-plan : on ne lit rien d'utile, mais il faut
	// consommer pour détecter la fermeture côté client.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case reason := <-hints:
			if err := conn.WriteJSON(hintMessage{Type: "recheck", Reason: reason}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
