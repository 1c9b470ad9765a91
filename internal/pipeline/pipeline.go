// Package pipeline implements the Upload Pipeline (spec §4.5): admission,
// reservation, stream-in with content fingerprinting, dedup, IPFS pin, and
// ledger commit, with compensating rollback on any failure after the pin
// step and in-process coalescing of concurrent identical uploads.
package pipeline

import (
	"context"
	"encoding/hex"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/sha256-simd"
	"golang.org/x/sync/singleflight"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
	"shogunrelay/internal/governor"
	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/storageadapter"
)

// Pipeline wires the upload algorithm over its collaborators.
type Pipeline struct {
	ledger  *ledger.Ledger
	storage storageadapter.Adapter
	ipfs    *ipfsclient.Client
	gov     *governor.Governor

	maxRequestBytes    int64
	defaultEstimateCap int64

	sf singleflight.Group
}

// New builds a Pipeline. maxRequestBytes bounds the hard per-request size;
// defaultEstimateCap is the conservative reservation estimate used when
// Content-Length is absent (spec §4.5 step 2).
func New(l *ledger.Ledger, storage storageadapter.Adapter, ipfs *ipfsclient.Client, gov *governor.Governor, maxRequestBytes, defaultEstimateCap int64) *Pipeline {
	return &Pipeline{
		ledger:             l,
		storage:            storage,
		ipfs:               ipfs,
		gov:                gov,
		maxRequestBytes:    maxRequestBytes,
		defaultEstimateCap: defaultEstimateCap,
	}
}

// UploadRequest is the input to Upload.
type UploadRequest struct {
	Principal     auth.Principal
	Reader        io.Reader
	ContentLength int64 // -1 if unknown
	Filename      string
	ContentType   string
	DealUpload    bool
}

// UploadResult is the success record spec §4.5 describes.
type UploadResult struct {
	CID                 string
	SizeBytes           int64
	ContentType         string
	OwnerKey            string
	Dedup               bool
	ConcurrentDuplicate bool
}

// Upload runs the full 7-step pipeline against req.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	// Step 1: admission.
	if !req.Principal.Can(auth.CapUpload) {
		return nil, errs.New(errs.Forbidden, "no-upload-capability", "principal lacks upload capability")
	}
	ownerKey := req.Principal.OwnerKey()
	if ownerKey == "" {
		return nil, errs.New(errs.Forbidden, "no-owner-key", "principal has no ownerKey to upload under")
	}

	var sub *ledger.Subscription
	// An api key scoped to "admin" acts on the admin account's own
	// storage and is unmetered the same way the admin principal is.
	unmetered := req.Principal.Variant == auth.VariantAdmin || ownerKey == "admin"
	if !unmetered {
		if req.DealUpload {
			if req.Principal.Variant != auth.VariantWallet {
				return nil, errs.New(errs.Unauthenticated, "deal-upload-requires-wallet", "deal uploads require wallet authentication")
			}
		} else {
			if req.Principal.Variant != auth.VariantWallet && req.Principal.Variant != auth.VariantApiKey {
				return nil, errs.New(errs.Unauthenticated, "upload-requires-authenticated-principal", "upload requires an authenticated principal")
			}
			s, err := p.ledger.GetSubscription(ownerKey)
			if err != nil {
				return nil, err
			}
			if !s.Active(time.Now().Unix()) {
				return nil, errs.New(errs.PaymentRequired, "no-active-subscription", "an active subscription is required to upload")
			}
			sub = s
		}
	}

	// Step 2: reservation.
	estimated := req.ContentLength
	if estimated <= 0 {
		estimated = p.defaultEstimateCap
	}
	liveGlobal, err := p.ledger.TotalLiveBytes()
	if err != nil {
		return nil, err
	}
	reservation, err := p.gov.Admit(ownerKey, sub, estimated, liveGlobal)
	if err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			reservation.Release()
			released = true
		}
	}
	defer release()

	// Step 3: stream-in, hashing as we go, enforcing the hard size cap.
	tmpPath := "_tmp/" + uuid.New().String()
	hasher := sha256.New()
	limited := &limitReader{r: req.Reader, remaining: p.maxRequestBytes}
	wr, err := p.storage.Write(ctx, tmpPath, io.TeeReader(limited, hasher), estimated, req.ContentType)
	if err != nil {
		if limited.exceeded {
			return nil, errs.New(errs.PayloadTooLarge, "request-too-large", "upload exceeds the maximum request size")
		}
		return nil, err
	}
	sizeBytes := wr.SizeBytes

	fingerprint := contentID(hasher.Sum(nil), req.Filename)

	// Step 4: content-fingerprint dedup, scoped to ownerKey.
	if existing, err := p.ledger.FindUploadByFingerprint(ownerKey, fingerprint); err != nil {
		return nil, err
	} else if existing != nil {
		_ = p.storage.Delete(ctx, tmpPath, false)
		return &UploadResult{
			CID: existing.CID, SizeBytes: existing.SizeBytes, ContentType: existing.ContentType,
			OwnerKey: ownerKey, Dedup: true,
		}, nil
	}

	// Steps 5-7, coalesced across concurrent identical uploads: only the
	// first caller for a given {ownerKey, fingerprint} actually pins and
	// commits; later concurrent callers share its result and report
	// concurrentDuplicate=true (spec §4.5: "Concurrent-duplicate
	// coalescing").
	sfKey := ownerKey + "/" + fingerprint
	ran := false
	v, err, _ := p.sf.Do(sfKey, func() (interface{}, error) {
		ran = true
		return p.commit(ctx, ownerKey, tmpPath, fingerprint, sizeBytes, req.ContentType, req.Filename, sub, reservation)
	})
	shared := !ran
	if shared {
		// We lost the race: our own temp file and reservation were never
		// used by the winning call, which ran with its own copies.
		_ = p.storage.Delete(ctx, tmpPath, false)
		release()
	} else {
		// The winning call released its own reservation and tmp inside commit.
		released = true
	}
	if err != nil {
		return nil, err
	}
	res := v.(*UploadResult)
	return &UploadResult{
		CID: res.CID, SizeBytes: res.SizeBytes, ContentType: res.ContentType,
		OwnerKey: ownerKey, Dedup: res.Dedup, ConcurrentDuplicate: shared,
	}, nil
}

// commit performs steps 5-7: pin the temp object, write the ledger rows,
// and release the caller's own reservation/temp. If a failure of the pinref
// or upload-record write follows a successful pin, it decrements pinref and
// unpins iff the count reaches zero, per spec §4.5's compensating-action
// rule; a failed subscription-counter write is not unwound. If an identical
// upload by the same owner committed before this call began, its record is
// returned with Dedup set and nothing is pinned.
func (p *Pipeline) commit(ctx context.Context, ownerKey, tmpPath, fingerprint string, sizeBytes int64, contentType, filename string, sub *ledger.Subscription, reservation *governor.Reservation) (interface{}, error) {
	defer reservation.Release()
	defer p.storage.Delete(ctx, tmpPath, false)

	if existing, err := p.ledger.FindUploadByFingerprint(ownerKey, fingerprint); err != nil {
		return nil, err
	} else if existing != nil {
		return &UploadResult{CID: existing.CID, SizeBytes: existing.SizeBytes, ContentType: existing.ContentType, Dedup: true}, nil
	}

	rr, err := p.storage.Read(ctx, tmpPath)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rr.Stream)
	rr.Stream.Close()
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "pipeline-read-temp", "read staged upload", err)
	}

	addRes, err := p.ipfs.Add(ctx, data, ipfsclient.AddOptions{Pin: true, Filename: filename})
	if err != nil {
		return nil, err
	}

	if _, err := p.ledger.IncrPinRef(addRes.CID); err != nil {
		p.rollbackPin(ctx, addRes.CID)
		return nil, err
	}

	u := &ledger.Upload{
		OwnerKey:          ownerKey,
		CID:               addRes.CID,
		SizeBytes:         sizeBytes,
		ContentType:       contentType,
		OriginalName:      filename,
		UploadedAt:        time.Now().Unix(),
		SHA256Fingerprint: fingerprint,
	}
	if err := p.ledger.PutUpload(u); err != nil {
		p.rollbackPin(ctx, addRes.CID)
		return nil, err
	}

	if sub != nil {
		sub.StorageUsedBytes += sizeBytes
		if err := p.ledger.PutSubscription(sub); err != nil {
			// The upload and pin are already committed; leave it for the
			// scheduler's counter reconciliation rather than unwinding a
			// successful upload over a counter-write failure.
			return nil, err
		}
	}

	return &UploadResult{CID: addRes.CID, SizeBytes: sizeBytes, ContentType: contentType}, nil
}

// rollbackPin decrements the refcount the caller already incremented and,
// if it reaches zero, unpins the cid (spec §4.5: "unpin the cid iff pinref
// transitions through this operation to zero").
func (p *Pipeline) rollbackPin(ctx context.Context, cid string) {
	next, err := p.ledger.DecrPinRef(cid)
	if err != nil || next > 0 {
		return
	}
	_ = p.ipfs.Unpin(ctx, cid)
}

// limitReader aborts with an error once more than `remaining` bytes have
// been read, enforcing spec §4.5's hard maximum request size.
type limitReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	// Request one byte more than remaining so a body of exactly the
	// limit's size reaches a clean EOF instead of being flagged exceeded.
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.remaining {
		l.exceeded = true
		l.remaining = 0
		return n, io.ErrUnexpectedEOF
	}
	l.remaining -= int64(n)
	return n, err
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// contentID builds the {hex16}-{slugName} content-based id spec §4.5
// defines: the first 16 hex characters of the sha256 digest, plus a
// filesystem-safe slug of the original filename.
func contentID(digest []byte, filename string) string {
	hexDigest := hex.EncodeToString(digest)
	if len(hexDigest) > 16 {
		hexDigest = hexDigest[:16]
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(filename), "-"), "-")
	if slug == "" {
		slug = "blob"
	}
	return hexDigest + "-" + slug
}
