package session

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
)

// AbandonFunc is invoked by the janitor when a silent room is settled. It
// runs outside the room lock, so it may safely call back into the manager.
type AbandonFunc func(roomID string, res *MoveResult)

// room pairs a session with the mutex that serializes every operation
// against it. This per-key lock is what makes seat assignment, move
// application and termination detection race-free.
type room struct {
	mu sync.Mutex
	s  *Session
}

// Manager owns all live sessions, guaranteeing at most one authoritative
// instance per room id and one-at-a-time execution per room.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*room

	idleTimeout time.Duration
	graceWindow time.Duration
	onAbandon   AbandonFunc

	stop chan struct{}
	done chan struct{}
}

func NewManager(idleTimeout, graceWindow time.Duration) *Manager {
	return &Manager{
		rooms:       make(map[string]*room),
		idleTimeout: idleTimeout,
		graceWindow: graceWindow,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SetAbandonHandler wires the coordinator's settlement callback. Must be
// called before Start.
func (m *Manager) SetAbandonHandler(fn AbandonFunc) {
	m.onAbandon = fn
}

func (m *Manager) get(roomID string) *room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID]
}

// Init creates the session for a new room. A repeated Init for the same room
// and game type is a no-op returning the existing session nonce, because the
// coordinator may retry after a lost response.
func (m *Manager) Init(gameType models.GameType, roomID, mode string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.s.gameType != gameType {
			return "", models.ErrAlreadyInitialized
		}
		return r.s.sessionNonce, nil
	}

	s, err := newSession(gameType, roomID, mode, time.Now())
	if err != nil {
		return "", err
	}
	m.rooms[roomID] = &room{s: s}
	log.Infof("session initialized for room %s (%s)", roomID, gameType)
	return s.sessionNonce, nil
}

// Join seats a player or confirms an existing seat. Occupancy is proven by a
// previously issued player nonce or by a user id already holding a seat;
// anything else against a full room fails with ErrRoomFull.
func (m *Manager) Join(roomID string, userID int64, priorNonce string) (*JoinGrant, error) {
	r := m.get(roomID)
	if r == nil {
		return nil, models.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.join(userID, priorNonce, time.Now())
}

// Move applies one move for the seat owning playerNonce.
func (m *Manager) Move(roomID, playerNonce, move string) (*MoveResult, error) {
	r := m.get(roomID)
	if r == nil {
		return nil, models.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.move(playerNonce, move, time.Now())
}

// Resign ends the match in favor of the opponent.
func (m *Manager) Resign(roomID, playerNonce string) (*MoveResult, error) {
	r := m.get(roomID)
	if r == nil {
		return nil, models.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.resign(playerNonce, time.Now())
}

// State returns the current snapshot without any join side effect.
func (m *Manager) State(roomID string) (*Snapshot, error) {
	r := m.get(roomID)
	if r == nil {
		return nil, models.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.snapshot(), nil
}

// Heartbeat marks a seat as still connected, keeping it out of the
// abandonment credit.
func (m *Manager) Heartbeat(roomID, playerNonce string) error {
	r := m.get(roomID)
	if r == nil {
		return models.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.heartbeat(playerNonce, time.Now())
}

// Start runs the janitor loop until Stop is called.
func (m *Manager) Start(sweepEvery time.Duration) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(time.Now())
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

// sweep settles rooms idle past the timeout and evicts finished rooms once
// the reconnect grace window has passed.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	entries := make(map[string]*room, len(m.rooms))
	for id, r := range m.rooms {
		entries[id] = r
	}
	m.mu.Unlock()

	type settled struct {
		roomID string
		res    *MoveResult
	}
	var abandoned []settled
	var evict []string

	for id, r := range entries {
		r.mu.Lock()
		switch {
		case r.s.state == StateFinished:
			if now.Sub(r.s.finishedAt) > m.graceWindow {
				evict = append(evict, id)
			}
		case now.Sub(r.s.lastActivity) > m.idleTimeout:
			if res := r.s.abandon(m.graceWindow, now); res != nil {
				log.Warnf("room %s abandoned after %s idle, result %s", id, m.idleTimeout, res.Result)
				abandoned = append(abandoned, settled{roomID: id, res: res})
			}
		}
		r.mu.Unlock()
	}

	if len(evict) > 0 {
		m.mu.Lock()
		for _, id := range evict {
			delete(m.rooms, id)
			log.Infof("evicted finished room %s", id)
		}
		m.mu.Unlock()
	}

	// Settlement callbacks run after all room locks are released.
	if m.onAbandon != nil {
		for _, a := range abandoned {
			m.onAbandon(a.roomID, a.res)
		}
	}
}

// Len reports the number of live rooms, for health reporting.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
