package ledger

import "shogunrelay/internal/errs"

// GetPublicLink returns the public link record for linkID, or (nil, nil).
func (l *Ledger) GetPublicLink(linkID string) (*PublicLink, error) {
	raw, err := l.store.Get(linkKey(linkID))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-link", "read public link", err)
	}
	if raw == nil {
		return nil, nil
	}
	var pl PublicLink
	if err := decode(raw, &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

// PutPublicLink writes the public link record.
func (l *Ledger) PutPublicLink(pl *PublicLink) error {
	raw, err := encode(pl)
	if err != nil {
		return err
	}
	if err := l.store.Set(linkKey(pl.LinkID), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-link", "write public link", err)
	}
	return nil
}

// DeletePublicLink removes the public link record outright.
func (l *Ledger) DeletePublicLink(linkID string) error {
	if err := l.store.Delete(linkKey(linkID)); err != nil {
		return errs.Wrap(errs.Backend, "ledger-delete-link", "delete public link", err)
	}
	return nil
}

// ListPublicLinks returns every public link record, used by the admin CRUD
// surface and the link expiry scheduler task.
func (l *Ledger) ListPublicLinks() ([]*PublicLink, error) {
	it, err := l.store.Iterator([]byte("link/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-links", "iterate public links", err)
	}
	defer it.Close()

	var out []*PublicLink
	for it.Next() {
		var pl PublicLink
		if err := decode(it.Value(), &pl); err != nil {
			return nil, err
		}
		out = append(out, &pl)
	}
	return out, it.Error()
}
