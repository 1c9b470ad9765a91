package ledger

import (
	"strconv"

	"shogunrelay/internal/errs"
)

// PinRef returns the current refcount for cid (0 if never seen).
func (l *Ledger) PinRef(cid string) (int64, error) {
	raw, err := l.store.Get(pinrefKey(cid))
	if err != nil {
		return 0, errs.Wrap(errs.Backend, "ledger-get-pinref", "read pinref", err)
	}
	if raw == nil {
		return 0, nil
	}
	return parseInt64(string(raw)), nil
}

// IncrPinRef increments cid's refcount and returns the new value. This is a
// read-modify-write, not a compare-and-set, so concurrent increments can
// lose an update; no scheduled task recomputes the refcount. The Governor's
// reservation protocol (not the refcount) is what enforces quota
// correctness.
func (l *Ledger) IncrPinRef(cid string) (int64, error) {
	cur, err := l.PinRef(cid)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := l.store.Set(pinrefKey(cid), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, errs.Wrap(errs.Backend, "ledger-incr-pinref", "write pinref", err)
	}
	return next, nil
}

// DecrPinRef decrements cid's refcount, floored at zero, and returns the new
// value. When it returns 0 the caller (the upload pipeline's compensating
// action, or the orphan pin sweep) must unpin the cid from the store.
func (l *Ledger) DecrPinRef(cid string) (int64, error) {
	cur, err := l.PinRef(cid)
	if err != nil {
		return 0, err
	}
	next := cur - 1
	if next < 0 {
		next = 0
	}
	if err := l.store.Set(pinrefKey(cid), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, errs.Wrap(errs.Backend, "ledger-decr-pinref", "write pinref", err)
	}
	return next, nil
}

// ListZeroPinRefs returns every cid whose refcount has reached zero, a
// candidate set for the orphan pin sweep.
func (l *Ledger) ListZeroPinRefs() ([]string, error) {
	it, err := l.store.Iterator([]byte("pinref/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-pinref", "iterate pinrefs", err)
	}
	defer it.Close()

	var out []string
	for it.Next() {
		if parseInt64(string(it.Value())) == 0 {
			out = append(out, lastSegment(it.Key()))
		}
	}
	return out, it.Error()
}
