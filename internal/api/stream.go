package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamWriteWait  = 10 * time.Second
	streamMaxMessage = 64 << 10
)

// streamRegistry tracks open websocket streams so they can be closed on
// shutdown.
type streamRegistry struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{conns: make(map[*websocket.Conn]struct{})}
}

func (s *streamRegistry) add(c *websocket.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *streamRegistry) remove(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *streamRegistry) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *streamRegistry) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
}

// handleStream answers each {"smiles": ...} text message with a prediction
// response, and malformed messages with {"error": ...}.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(streamMaxMessage)

	h.streams.add(conn)
	if h.metrics != nil {
		h.metrics.StreamConnectionsAdd(1)
	}
	defer func() {
		h.streams.remove(conn)
		if h.metrics != nil {
			h.metrics.StreamConnectionsAdd(-1)
		}
	}()

	requestID := RequestID(r.Context())
	log.Debug().Str("request_id", requestID).Msg("Prediction stream opened")

	served := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("request_id", requestID).Msg("Prediction stream closed unexpectedly")
			}
			break
		}

		var reply interface{}
		var req SMILESRequest
		switch {
		case msgType != websocket.TextMessage:
			reply = ErrorResponse{Error: "expected a text message"}
		case json.Unmarshal(data, &req) != nil:
			reply = ErrorResponse{Error: "invalid message: expected {\"smiles\": \"...\"}"}
		default:
			reply = h.predict(req.SMILES)
			served++
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Failed to write stream response")
			break
		}
	}

	log.Debug().Str("request_id", requestID).Int("served", served).Msg("Prediction stream closed")
}
