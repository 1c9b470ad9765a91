package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/ledger"
)

// CounterReconcileTask recomputes storageUsedBytes for every subscription
// from its owner's live uploads, repairing any drift left by the
// read-modify-write counter updates elsewhere (spec §4.9: "recompute
// storageUsedBytes per subscription from live uploads; correct drift").
func CounterReconcileTask(interval time.Duration, l *ledger.Ledger, log *logrus.Logger) Task {
	return Task{
		Name:     "counter-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			subs, err := l.ListSubscriptions()
			if err != nil {
				return err
			}
			for _, sub := range subs {
				live, err := l.LiveBytes(sub.Address)
				if err != nil {
					return err
				}
				if sub.StorageUsedBytes == live {
					continue
				}
				log.WithFields(logrus.Fields{
					"address": sub.Address,
					"was":     sub.StorageUsedBytes,
					"now":     live,
				}).Info("scheduler: reconciled storageUsedBytes drift")
				sub.StorageUsedBytes = live
				if err := l.PutSubscription(sub); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
