package ledger

import "shogunrelay/internal/errs"

// GetSubscription returns the subscription for addr, or (nil, nil) if none
// exists — callers treat a nil record as {active:false} per spec §4.6.
func (l *Ledger) GetSubscription(addr string) (*Subscription, error) {
	raw, err := l.store.Get(subKey(addr))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-subscription", "read subscription", err)
	}
	if raw == nil {
		return nil, nil
	}
	var sub Subscription
	if err := decode(raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// PutSubscription writes or overwrites the subscription record for its address.
func (l *Ledger) PutSubscription(sub *Subscription) error {
	raw, err := encode(sub)
	if err != nil {
		return err
	}
	if err := l.store.Set(subKey(sub.Address), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-subscription", "write subscription", err)
	}
	return nil
}

// ListSubscriptions returns every subscription record, for the counter
// reconciliation task and admin listings.
func (l *Ledger) ListSubscriptions() ([]*Subscription, error) {
	it, err := l.store.Iterator([]byte("sub/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-subscriptions", "iterate subscriptions", err)
	}
	defer it.Close()

	var out []*Subscription
	for it.Next() {
		var sub Subscription
		if err := decode(it.Value(), &sub); err != nil {
			return nil, err
		}
		out = append(out, &sub)
	}
	return out, it.Error()
}
