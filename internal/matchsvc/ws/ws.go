package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/service"
	"github.com/versusgg/versus-services/internal/matchsvc/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Ws is the live play gateway. One socket per player per room; every frame
// is authorized by the player nonce, not the transport. State changes are
// pushed to every socket in the room, so the opponent never has to poll.
type Ws struct {
	connMap  sync.Map // socketId -> *conn
	roomMap  sync.Map // socketId -> roomID
	matches  *service.MatchService
	sessions *session.Manager
}

type conn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func NewWs(matches *service.MatchService, sessions *session.Manager) *Ws {
	return &Ws{matches: matches, sessions: sessions}
}

// HandleWS upgrades the request and pumps frames for one room.
func (s *Ws) HandleWS(w http.ResponseWriter, r *http.Request, roomID string) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %s", err)
		return
	}

	socketId := uuid.NewString()
	wc := &conn{c: c}
	s.connMap.Store(socketId, wc)
	s.roomMap.Store(socketId, roomID)
	defer func() {
		s.roomMap.Delete(socketId)
		s.connMap.Delete(socketId)
		c.Close()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("socket %s closed unexpectedly: %s", socketId, err)
			}
			return
		}

		msg := &comm.WSMessage{}
		if err := json.Unmarshal(data, msg); err != nil {
			s.send(wc, "error", map[string]string{"error": "malformed message"})
			continue
		}
		msg.SocketId = socketId

		s.socketMessage(wc, roomID, msg)
	}
}

func (s *Ws) socketMessage(wc *conn, roomID string, msg *comm.WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case "move":
		payload := comm.MovePayload{}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.send(wc, "error", map[string]string{"error": "malformed move payload"})
			return
		}
		res, err := s.matches.Move(ctx, roomID, payload.PlayerNonce, payload.Move)
		if err != nil {
			s.send(wc, "rejected", map[string]string{"error": err.Error()})
			return
		}
		if res.Finished {
			s.broadcast(roomID, "finished", res)
			return
		}
		s.broadcast(roomID, "state", res)
	case "resign":
		payload := comm.MovePayload{}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.send(wc, "error", map[string]string{"error": "malformed resign payload"})
			return
		}
		res, err := s.matches.Resign(ctx, roomID, payload.PlayerNonce)
		if err != nil {
			s.send(wc, "rejected", map[string]string{"error": err.Error()})
			return
		}
		s.broadcast(roomID, "finished", res)
	case "state":
		snap, err := s.sessions.State(roomID)
		if err != nil {
			s.send(wc, "rejected", map[string]string{"error": err.Error()})
			return
		}
		s.send(wc, "state", snap)
	case "heartbeat":
		payload := comm.MovePayload{}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		if err := s.sessions.Heartbeat(roomID, payload.PlayerNonce); err != nil {
			s.send(wc, "rejected", map[string]string{"error": err.Error()})
		}
	default:
		log.Warnf("unknown event received: %s", msg.Type)
	}
}

// roomSockets returns every live connection attached to the room.
func (s *Ws) roomSockets(roomID string) []*conn {
	var conns []*conn
	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(string) != roomID {
			return true
		}
		if c, ok := s.connMap.Load(key); ok {
			conns = append(conns, c.(*conn))
		}
		return true
	})
	return conns
}

// broadcast pushes one frame to every socket in the room, mover included.
func (s *Ws) broadcast(roomID, msgType string, data interface{}) {
	for _, wc := range s.roomSockets(roomID) {
		s.send(wc, msgType, data)
	}
}

func (s *Ws) send(wc *conn, msgType string, data interface{}) {
	bytes, err := json.Marshal(data)
	if err != nil {
		log.Errorf("failed to marshal %s frame: %s", msgType, err)
		return
	}
	out := comm.WSMessage{Type: msgType, Data: bytes}

	wc.mu.Lock()
	defer wc.mu.Unlock()
	if err := wc.c.WriteJSON(out); err != nil {
		log.Errorf("failed to write %s frame: %s", msgType, err)
	}
}
