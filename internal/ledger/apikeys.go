package ledger

import "shogunrelay/internal/errs"

// GetApiKey returns the api key record for keyID, or (nil, nil).
func (l *Ledger) GetApiKey(keyID string) (*ApiKey, error) {
	raw, err := l.store.Get(apikeyKey(keyID))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-apikey", "read api key", err)
	}
	if raw == nil {
		return nil, nil
	}
	var k ApiKey
	if err := decode(raw, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// PutApiKey writes the api key record.
func (l *Ledger) PutApiKey(k *ApiKey) error {
	raw, err := encode(k)
	if err != nil {
		return err
	}
	if err := l.store.Set(apikeyKey(k.KeyID), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-apikey", "write api key", err)
	}
	return nil
}

// DeleteApiKey removes the api key record outright (hard revoke).
func (l *Ledger) DeleteApiKey(keyID string) error {
	if err := l.store.Delete(apikeyKey(keyID)); err != nil {
		return errs.Wrap(errs.Backend, "ledger-delete-apikey", "delete api key", err)
	}
	return nil
}

// ListApiKeys returns every api key record.
func (l *Ledger) ListApiKeys() ([]*ApiKey, error) {
	it, err := l.store.Iterator([]byte("apikey/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-apikeys", "iterate api keys", err)
	}
	defer it.Close()

	var out []*ApiKey
	for it.Next() {
		var k ApiKey
		if err := decode(it.Value(), &k); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, it.Error()
}
