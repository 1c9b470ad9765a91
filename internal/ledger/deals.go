package ledger

import "shogunrelay/internal/errs"

// GetDeal returns the deal for id, or (nil, nil) if it does not exist.
func (l *Ledger) GetDeal(id string) (*Deal, error) {
	raw, err := l.store.Get(dealKey(id))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-deal", "read deal", err)
	}
	if raw == nil {
		return nil, nil
	}
	var d Deal
	if err := decode(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutDeal writes the deal record and maintains its client/cid secondary
// indexes. Indexes are additive only: a deal's cid and clientAddress never
// change across its lifetime, so no stale index entries are left behind.
func (l *Ledger) PutDeal(d *Deal) error {
	raw, err := encode(d)
	if err != nil {
		return err
	}
	if err := l.store.Set(dealKey(d.ID), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-deal", "write deal", err)
	}
	if err := l.store.Set(dealClientIdxKey(d.ClientAddress, d.ID), []byte("true")); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-deal", "write client index", err)
	}
	if err := l.store.Set(dealCidIdxKey(d.CID, d.ID), []byte("true")); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-deal", "write cid index", err)
	}
	return nil
}

// DealsByClient returns every deal id ever created by addr.
func (l *Ledger) DealsByClient(addr string) ([]string, error) {
	return l.scanIndexIDs(dealClientIdxPrefix(addr))
}

// DealsByCID returns every deal id referencing cid.
func (l *Ledger) DealsByCID(cid string) ([]string, error) {
	return l.scanIndexIDs(dealCidIdxPrefix(cid))
}

func (l *Ledger) scanIndexIDs(prefix []byte) ([]string, error) {
	it, err := l.store.Iterator(prefix)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-scan-index", "iterate deal index", err)
	}
	defer it.Close()

	var ids []string
	for it.Next() {
		ids = append(ids, lastSegment(it.Key()))
	}
	return ids, it.Error()
}

// ListDeals returns every deal record, used by the scheduler's sync and
// expiry tasks.
func (l *Ledger) ListDeals() ([]*Deal, error) {
	it, err := l.store.Iterator([]byte("deal/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-deals", "iterate deals", err)
	}
	defer it.Close()

	var out []*Deal
	for it.Next() {
		var d Deal
		if err := decode(it.Value(), &d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, it.Error()
}

// ListActiveDeals returns every deal currently in the active state.
func (l *Ledger) ListActiveDeals() ([]*Deal, error) {
	all, err := l.ListDeals()
	if err != nil {
		return nil, err
	}
	var out []*Deal
	for _, d := range all {
		if d.Status == DealActive {
			out = append(out, d)
		}
	}
	return out, nil
}
