// Package deal implements the Deal Manager (spec §4.7): per-file contract
// lifecycle, pricing, activation against payment, and storage-proof
// verification.
package deal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/subscription"
)

// Manager implements deal creation, activation and verification.
type Manager struct {
	ledger   *ledger.Ledger
	ipfs     *ipfsclient.Client
	verifier subscription.PaymentVerifier
	tiers    []subscription.DealTier
	grace    time.Duration
}

// NewManager wires a deal Manager over its collaborators.
func NewManager(l *ledger.Ledger, ipfs *ipfsclient.Client, verifier subscription.PaymentVerifier, tiers []subscription.DealTier, grace time.Duration) *Manager {
	return &Manager{ledger: l, ipfs: ipfs, verifier: verifier, tiers: tiers, grace: grace}
}

// CreateRequest is the input to CreateDeal.
type CreateRequest struct {
	CID               string
	ClientAddress     string
	SizeBytes         int64
	DurationSeconds   int64
	Tier              string
}

// CreateResult reports the newly created deal and the amount due.
type CreateResult struct {
	DealID         string
	PaymentRequired string
}

// Price computes priceAtomic = ceil(sizeBytes * durationSeconds *
// pricePerByteSecond * replicationFactor), per spec §4.7.
func Price(sizeBytes, durationSeconds int64, tier subscription.DealTier) string {
	raw := float64(sizeBytes) * float64(durationSeconds) * tier.PricePerByteSecond * float64(tier.ReplicationFactor)
	return fmt.Sprintf("%d", int64(math.Ceil(raw)))
}

// CreateDeal validates bounds, computes price, and writes the deal in the
// pending state.
func (m *Manager) CreateDeal(req CreateRequest) (*CreateResult, error) {
	tier := subscription.FindDealTier(m.tiers, req.Tier)
	if tier == nil {
		return nil, errs.New(errs.Malformed, "unknown-deal-tier", "unknown deal tier")
	}
	if req.SizeBytes < tier.MinSizeBytes || req.SizeBytes > tier.MaxSizeBytes {
		return nil, errs.New(errs.Malformed, "size-out-of-bounds", "sizeBytes outside tier bounds")
	}
	if req.DurationSeconds < tier.MinDurationSeconds || req.DurationSeconds > tier.MaxDurationSeconds {
		return nil, errs.New(errs.Malformed, "duration-out-of-bounds", "durationSeconds outside tier bounds")
	}

	price := Price(req.SizeBytes, req.DurationSeconds, *tier)
	now := time.Now()

	d := &ledger.Deal{
		ID:                uuid.New().String(),
		CID:               req.CID,
		ClientAddress:     req.ClientAddress,
		SizeBytes:         req.SizeBytes,
		Tier:              req.Tier,
		StartAt:           now.Unix(),
		EndAt:             now.Add(time.Duration(req.DurationSeconds) * time.Second).Unix(),
		PriceAtomic:       price,
		ReplicationFactor: tier.ReplicationFactor,
		Status:            ledger.DealPending,
	}
	if err := m.ledger.PutDeal(d); err != nil {
		return nil, err
	}
	return &CreateResult{DealID: d.ID, PaymentRequired: price}, nil
}

// ActivateDeal verifies payment, transitions pending -> paid, then attempts
// to confirm the cid is pinned (pinning it on demand if necessary); on
// success the deal becomes active.
func (m *Manager) ActivateDeal(dealID string, paymentPayload []byte) (*ledger.Deal, error) {
	d, err := m.ledger.GetDeal(dealID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errs.New(errs.NotFound, "deal-not-found", "deal does not exist")
	}
	if d.Status != ledger.DealPending {
		return nil, errs.New(errs.Conflict, "invalid-transition", "deal is not in pending state")
	}

	result, verr := m.verifier.Verify(d.PriceAtomic, paymentPayload)
	if verr != nil {
		return nil, errs.Wrap(errs.PaymentInvalid, "payment-verify", "payment verification failed", verr)
	}
	if err := result.ToError(); err != nil {
		d.Status = ledger.DealFailed
		_ = m.ledger.PutDeal(d)
		return nil, err
	}
	d.PaymentReceipt = result.Receipt
	d.Status = ledger.DealPaid
	if err := m.ledger.PutDeal(d); err != nil {
		return nil, err
	}

	if err := m.ipfs.Pin(context.Background(), d.CID, 0); err != nil {
		d.Status = ledger.DealFailed
		_ = m.ledger.PutDeal(d)
		return nil, errs.Wrap(errs.Backend, "deal-activate-pin", "failed to confirm cid is pinned", err)
	}

	d.Status = ledger.DealActive
	if err := m.ledger.PutDeal(d); err != nil {
		return nil, err
	}
	return d, nil
}

// VerifyResult is the storage-proof signal spec §4.7 describes.
type VerifyResult struct {
	Verified  bool
	ProofHash string
	Timestamp int64
	ExpiresAt int64
}

// freshnessWindow is how long a returned proofHash remains valid for a
// caller to check against its own recomputation (spec §4.7: "freshness
// window is 5 minutes").
const freshnessWindow = 5 * time.Minute

// VerifyDeal returns a proof-of-storage signal: existence, pinned status,
// and a keyed hash H(cid||challenge||now||size).
func (m *Manager) VerifyDeal(dealID, challenge string) (*VerifyResult, error) {
	d, err := m.ledger.GetDeal(dealID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errs.New(errs.NotFound, "deal-not-found", "deal does not exist")
	}

	pins, err := m.ipfs.PinLs(context.Background(), ipfsclient.PinRecursive)
	if err != nil {
		return nil, err
	}
	pinned := false
	for _, c := range pins {
		if c == d.CID {
			pinned = true
			break
		}
	}

	now := time.Now()
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", d.CID, challenge, now.Unix(), d.SizeBytes)))
	return &VerifyResult{
		Verified:  pinned,
		ProofHash: hex.EncodeToString(h[:]),
		Timestamp: now.Unix(),
		ExpiresAt: now.Add(freshnessWindow).Unix(),
	}, nil
}

// ExpireOverdue transitions every active deal whose endAt has passed into
// expired, and every expired deal past its grace window into terminated;
// called by the scheduler's deal full-sync task.
func (m *Manager) ExpireOverdue() error {
	deals, err := m.ledger.ListDeals()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, d := range deals {
		switch d.Status {
		case ledger.DealActive:
			if now.Unix() < d.EndAt {
				continue
			}
			d.Status = ledger.DealExpired
			if err := m.ledger.PutDeal(d); err != nil {
				return err
			}
		case ledger.DealExpired:
			if m.grace <= 0 || now.Unix() < d.EndAt+int64(m.grace.Seconds()) {
				continue
			}
			d.Status = ledger.DealTerminated
			if err := m.ledger.PutDeal(d); err != nil {
				return err
			}
		}
	}
	return nil
}
