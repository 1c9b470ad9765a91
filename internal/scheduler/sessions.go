package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/ledger"
)

// SessionReapTask deletes every session row past its expiresAt, or already
// marked revoked, so the ledger does not accumulate stale session rows.
func SessionReapTask(interval time.Duration, l *ledger.Ledger, log *logrus.Logger) Task {
	return Task{
		Name:     "session-reap",
		Interval: interval,
		Run: func(ctx context.Context) error {
			sessions, err := l.ListSessions()
			if err != nil {
				return err
			}
			now := time.Now().Unix()
			for _, s := range sessions {
				if !s.Revoked && now < s.ExpiresAt {
					continue
				}
				if err := l.RevokeSession(s.JTI); err != nil {
					log.WithFields(logrus.Fields{"jti": s.JTI, "error": err}).Warn("scheduler: session reap failed")
					continue
				}
			}
			return nil
		},
	}
}
