package bot

import (
	"time"

	"github.com/maxbolgarin/lang"
	"github.com/maypok86/otter"
)

// Session states: what kind of text input the panel is waiting for from
// the admin.
const (
	stateNone            = ""
	stateAwaitAdminID    = "await_admin_id"
	stateAwaitRejectNote = "await_reject_note"
	stateAwaitBanReason  = "await_ban_reason"
	stateAwaitBroadcast  = "await_broadcast"
)

const (
	defaultSessionCapacity = 10000
	defaultSessionTTL      = 24 * time.Hour
)

// Session is the per-admin UI state: the pending input kind and its
// subject. Sessions are disposable: losing one only means the admin has
// to reopen a menu.
type Session struct {
	State   string
	Payload string
}

// sessionStore keeps admin sessions in a bounded in-memory cache, so an
// abandoned dialog never leaks memory.
type sessionStore struct {
	cache otter.Cache[int64, Session]
}

func newSessionStore(capacity int, ttl time.Duration) (*sessionStore, error) {
	capacity = lang.Check(capacity, defaultSessionCapacity)
	ttl = lang.Check(ttl, defaultSessionTTL)

	cache, err := otter.MustBuilder[int64, Session](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &sessionStore{cache: cache}, nil
}

func (s *sessionStore) get(userID int64) Session {
	session, _ := s.cache.Get(userID)
	return session
}

func (s *sessionStore) await(userID int64, state, payload string) {
	s.cache.Set(userID, Session{State: state, Payload: payload})
}

func (s *sessionStore) clear(userID int64) {
	s.cache.Delete(userID)
}
