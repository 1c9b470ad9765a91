package ledger

import "shogunrelay/internal/errs"

// GetSession returns the session record for jti, or (nil, nil).
func (l *Ledger) GetSession(jti string) (*Session, error) {
	raw, err := l.store.Get(sessionKey(jti))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-session", "read session", err)
	}
	if raw == nil {
		return nil, nil
	}
	var s Session
	if err := decode(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutSession writes the session record.
func (l *Ledger) PutSession(s *Session) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if err := l.store.Set(sessionKey(s.JTI), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-session", "write session", err)
	}
	return nil
}

// RevokeSession deletes the session row outright, the ledger-side half of
// "logout" (the JWT itself keeps validating until it expires, but the
// multiplexer checks this row on every session-authenticated request).
func (l *Ledger) RevokeSession(jti string) error {
	if err := l.store.Delete(sessionKey(jti)); err != nil {
		return errs.Wrap(errs.Backend, "ledger-revoke-session", "delete session", err)
	}
	return nil
}

// ListSessions returns every live session record, used by the session
// reaper to evict rows past their expiresAt or marked revoked. Rows are
// not evicted for inactivity.
func (l *Ledger) ListSessions() ([]*Session, error) {
	it, err := l.store.Iterator([]byte("session/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-sessions", "iterate sessions", err)
	}
	defer it.Close()

	var out []*Session
	for it.Next() {
		var s Session
		if err := decode(it.Value(), &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, it.Error()
}
