package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
)

// OrphanPinSweepTask unpins every cid whose ledger pinref row has reached
// zero. It does not consult the store's pin list and applies no minimum
// age. The sweep is idempotent: a cid re-pinned before the next tick
// simply won't appear in the zero list.
func OrphanPinSweepTask(interval time.Duration, l *ledger.Ledger, ipfs *ipfsclient.Client, log *logrus.Logger) Task {
	return Task{
		Name:     "orphan-pin-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			zeros, err := l.ListZeroPinRefs()
			if err != nil {
				return err
			}
			for _, cid := range zeros {
				if err := ipfs.Unpin(ctx, cid); err != nil {
					log.WithFields(logrus.Fields{"cid": cid, "error": err}).Warn("scheduler: orphan unpin failed")
					continue
				}
				log.WithField("cid", cid).Info("scheduler: unpinned orphaned cid")
			}
			return nil
		},
	}
}
