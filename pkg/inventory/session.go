package inventory

import (
	"sync"

	"github.com/google/uuid"
)

type sessionState string

const (
	sessionStateBuilding   sessionState = "building"
	sessionStateCommitting sessionState = "committing"
	sessionStateCommitted  sessionState = "committed"
	sessionStateDiscarded  sessionState = "discarded"
)

// Session is one client's in-progress cart. It accumulates lines against the
// ledger without touching it: stock is deducted only at checkout (deferred
// policy). A session is private to one client context; its own mutex guards
// against concurrent requests riding the same token.
type Session struct {
	mu    sync.Mutex
	lines []Line
	index map[ItemID]int
	state sessionState
}

// NewSession returns an empty session in the building state.
func NewSession() *Session {
	return &Session{
		index: make(map[ItemID]int),
		state: sessionStateBuilding,
	}
}

// Lines returns the reserved lines in first-reservation order.
func (session *Session) Lines() []Line {
	session.mu.Lock()
	defer session.mu.Unlock()
	return append([]Line(nil), session.lines...)
}

// Reserved returns how much of id this session has already reserved.
func (session *Session) Reserved(id ItemID) int64 {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.reservedLocked(id)
}

func (session *Session) reservedLocked(id ItemID) int64 {
	position, exists := session.index[id]
	if !exists {
		return 0
	}
	return session.lines[position].Quantity
}

// TotalCents sums quantity times captured unit price over all lines.
func (session *Session) TotalCents() int64 {
	session.mu.Lock()
	defer session.mu.Unlock()
	var total int64
	for _, line := range session.lines {
		total += line.Quantity * line.PriceCents
	}
	return total
}

// Cancel discards the session's lines and closes it. Nothing was ever
// deducted from the ledger, so there is nothing to restore.
func (session *Session) Cancel() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != sessionStateBuilding {
		return ErrSessionClosed
	}
	session.lines = nil
	session.index = make(map[ItemID]int)
	session.state = sessionStateDiscarded
	return nil
}

// addChecked merges quantity into the line for id, creating it with the
// item's captured name and price on first reservation. The availability check
// and the merge run under one lock hold so two concurrent adds on the same
// session cannot both pass against the same remaining units. Availability is
// the item's ledger quantity minus what this session already holds.
func (session *Session) addChecked(id ItemID, quantity int64, item Item) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != sessionStateBuilding {
		return ErrSessionClosed
	}
	available := item.Quantity - session.reservedLocked(id)
	if quantity > available {
		if available < 0 {
			available = 0
		}
		return &InsufficientStockError{ItemID: id, Available: available}
	}
	if position, exists := session.index[id]; exists {
		session.lines[position].Quantity += quantity
		return nil
	}
	session.index[id] = len(session.lines)
	session.lines = append(session.lines, Line{
		ItemID:     id,
		Name:       item.Name,
		Quantity:   quantity,
		PriceCents: item.PriceCents,
	})
	return nil
}

// beginCommit claims the lines for one checkout attempt. The session moves to
// the committing state, so a concurrent checkout or add on the same session
// fails here instead of racing the ledger deduction.
func (session *Session) beginCommit() ([]Line, error) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != sessionStateBuilding {
		return nil, ErrSessionClosed
	}
	session.state = sessionStateCommitting
	return append([]Line(nil), session.lines...), nil
}

// abortCommit reopens the session after a failed checkout attempt. The lines
// were never cleared, so the cart is intact for adjustment and retry.
func (session *Session) abortCommit() {
	session.mu.Lock()
	if session.state == sessionStateCommitting {
		session.state = sessionStateBuilding
	}
	session.mu.Unlock()
}

// finishCommit closes the session once the deduction has landed.
func (session *Session) finishCommit() {
	session.mu.Lock()
	session.lines = nil
	session.index = make(map[ItemID]int)
	session.state = sessionStateCommitted
	session.mu.Unlock()
}

// SessionManager tracks active sessions by opaque token so a client can
// resume its cart across requests. Expiry is a caller concern; the manager
// only creates, resumes, and releases.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Begin creates a fresh session and returns its token.
func (manager *SessionManager) Begin() (string, *Session) {
	token := uuid.NewString()
	session := NewSession()
	manager.mu.Lock()
	manager.sessions[token] = session
	manager.mu.Unlock()
	return token, session
}

// Resume returns the session behind token.
func (manager *SessionManager) Resume(token string) (*Session, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	session, exists := manager.sessions[token]
	if !exists {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// Release forgets the session behind token. Releasing an unknown token is a
// no-op.
func (manager *SessionManager) Release(token string) {
	manager.mu.Lock()
	delete(manager.sessions, token)
	manager.mu.Unlock()
}

// Count returns the number of tracked sessions.
func (manager *SessionManager) Count() int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.sessions)
}
