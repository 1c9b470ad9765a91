package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/ledger"
)

// LinkExpiryTask deletes every public link past its expiresAt.
func LinkExpiryTask(interval time.Duration, l *ledger.Ledger, log *logrus.Logger) Task {
	return Task{
		Name:     "link-expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			links, err := l.ListPublicLinks()
			if err != nil {
				return err
			}
			now := time.Now().Unix()
			for _, pl := range links {
				if pl.ExpiresAt == 0 || now < pl.ExpiresAt {
					continue
				}
				if err := l.DeletePublicLink(pl.LinkID); err != nil {
					log.WithFields(logrus.Fields{"linkId": pl.LinkID, "error": err}).Warn("scheduler: link expiry delete failed")
					continue
				}
				log.WithField("linkId", pl.LinkID).Info("scheduler: expired public link")
			}
			return nil
		},
	}
}
