package bag

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/redis"
)

// SessionStore persists bag snapshots in redis keyed by session id. The raw
// JSON string is kept verbatim: the same bytes go into payment intent
// metadata and must survive a round trip unchanged.
type SessionStore struct {
	store redis.SessionStore
	ttl   time.Duration
}

func NewSessionStore(store redis.SessionStore, ttl time.Duration) (*SessionStore, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store is required")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session ttl must be positive")
	}
	return &SessionStore{store: store, ttl: ttl}, nil
}

// Raw returns the stored bag JSON exactly as written. An absent key yields
// an empty string, not an error.
func (s *SessionStore) Raw(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	raw, err := s.store.Get(ctx, s.store.SessionBagKey(sessionID))
	if err != nil {
		if redis.IsNil(err) {
			return "", nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session bag")
	}
	return raw, nil
}

// Load parses the stored snapshot. An absent key yields an empty snapshot.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (Snapshot, string, error) {
	raw, err := s.Raw(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if raw == "" {
		return Snapshot{}, "", nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode session bag")
	}
	return snapshot, raw, nil
}

// Save serializes and stores the snapshot, returning the exact bytes written.
func (s *SessionStore) Save(ctx context.Context, sessionID string, snapshot Snapshot) (string, error) {
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session bag")
	}
	if err := s.store.Set(ctx, s.store.SessionBagKey(sessionID), string(data), s.ttl); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session bag")
	}
	return string(data), nil
}

// Clear drops the session bag.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if err := s.store.Del(ctx, s.store.SessionBagKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear session bag")
	}
	return nil
}
