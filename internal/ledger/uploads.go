package ledger

import "shogunrelay/internal/errs"

// GetUpload returns the upload owned by ownerKey for cid, or (nil, nil).
func (l *Ledger) GetUpload(ownerKey, cid string) (*Upload, error) {
	raw, err := l.store.Get(uploadKey(ownerKey, cid))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-upload", "read upload", err)
	}
	if raw == nil {
		return nil, nil
	}
	var u Upload
	if err := decode(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUploadByFingerprint scans ownerKey's uploads for one matching the
// given sha256 fingerprint, the dedup lookup of pipeline step 4.
func (l *Ledger) FindUploadByFingerprint(ownerKey, fingerprint string) (*Upload, error) {
	uploads, err := l.ListUploadsByOwner(ownerKey)
	if err != nil {
		return nil, err
	}
	for _, u := range uploads {
		if u.SHA256Fingerprint == fingerprint {
			return u, nil
		}
	}
	return nil, nil
}

// PutUpload writes the upload record.
func (l *Ledger) PutUpload(u *Upload) error {
	raw, err := encode(u)
	if err != nil {
		return err
	}
	if err := l.store.Set(uploadKey(u.OwnerKey, u.CID), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-upload", "write upload", err)
	}
	return nil
}

// DeleteUpload removes the upload record; callers are responsible for the
// corresponding pinref decrement.
func (l *Ledger) DeleteUpload(ownerKey, cid string) error {
	if err := l.store.Delete(uploadKey(ownerKey, cid)); err != nil {
		return errs.Wrap(errs.Backend, "ledger-delete-upload", "delete upload", err)
	}
	return nil
}

// ListUploadsByOwner returns every upload owned by ownerKey.
func (l *Ledger) ListUploadsByOwner(ownerKey string) ([]*Upload, error) {
	it, err := l.store.Iterator(uploadOwnerPrefix(ownerKey))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-uploads", "iterate uploads", err)
	}
	defer it.Close()

	var out []*Upload
	for it.Next() {
		var u Upload
		if err := decode(it.Value(), &u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, it.Error()
}

// LiveBytes sums sizeBytes across every live upload owned by ownerKey, the
// source-of-truth figure the counter reconciliation task reconciles
// storageUsedBytes against.
func (l *Ledger) LiveBytes(ownerKey string) (int64, error) {
	uploads, err := l.ListUploadsByOwner(ownerKey)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range uploads {
		total += u.SizeBytes
	}
	return total, nil
}

// ListAllUploads returns every upload record across every owner, used by
// the global relay cap check and the counter reconciliation task.
func (l *Ledger) ListAllUploads() ([]*Upload, error) {
	it, err := l.store.Iterator([]byte("upload/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-all-uploads", "iterate uploads", err)
	}
	defer it.Close()

	var out []*Upload
	for it.Next() {
		var u Upload
		if err := decode(it.Value(), &u); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, it.Error()
}

// TotalLiveBytes sums sizeBytes across every live upload in the relay, the
// liveBytesGlobal figure the Governor's relay-wide cap check uses.
func (l *Ledger) TotalLiveBytes() (int64, error) {
	uploads, err := l.ListAllUploads()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range uploads {
		total += u.SizeBytes
	}
	return total, nil
}
