package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/deal"
	"shogunrelay/internal/ledger"
)

// DealFastSyncTask logs a lightweight snapshot of deal activity every tick;
// payment settlement in this relay is delegated to an external
// subscription.PaymentVerifier rather than a chain client, so there is no
// on-chain event stream to pull here — the fast sync is a cheap liveness
// signal, the full sync below does the actual state reconciliation.
func DealFastSyncTask(interval time.Duration, l *ledger.Ledger, log *logrus.Logger) Task {
	return Task{
		Name:     "deal-fast-sync",
		Interval: interval,
		Run: func(ctx context.Context) error {
			deals, err := l.ListDeals()
			if err != nil {
				return err
			}
			log.WithField("deals", len(deals)).Debug("scheduler: deal fast sync")
			return nil
		},
	}
}

// DealFullSyncTask reconciles every deal's lifecycle state: active deals
// past endAt move to expired, expired deals past the activation grace
// window move to terminated (spec §4.9: "reconcile every active deal's
// on-chain state").
func DealFullSyncTask(interval time.Duration, mgr *deal.Manager) Task {
	return Task{
		Name:     "deal-full-sync",
		Interval: interval,
		Run: func(ctx context.Context) error {
			return mgr.ExpireOverdue()
		},
	}
}
