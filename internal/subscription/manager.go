package subscription

import (
	"time"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/governor"
	"shogunrelay/internal/ledger"
)

// Manager implements the Subscription Manager component.
type Manager struct {
	ledger    *ledger.Ledger
	governor  *governor.Governor
	tiers     []Tier
	verifier  PaymentVerifier
}

// NewManager wires a Manager over its collaborators.
func NewManager(l *ledger.Ledger, g *governor.Governor, tiers []Tier, verifier PaymentVerifier) *Manager {
	return &Manager{ledger: l, governor: g, tiers: tiers, verifier: verifier}
}

// RelayUsage is the aggregate figure listTiers attaches to the catalog.
type RelayUsage struct {
	UsedBytes     int64
	CapBytes      int64
	PercentUsed   float64
}

// ListTiers returns the catalog plus the relay's current aggregate usage.
func (m *Manager) ListTiers(liveBytesGlobal int64) ([]Tier, RelayUsage) {
	capBytes := m.governor.RelayCapBytes()
	usage := RelayUsage{UsedBytes: liveBytesGlobal, CapBytes: capBytes}
	if capBytes > 0 {
		usage.PercentUsed = float64(liveBytesGlobal) / float64(capBytes) * 100
	}
	return m.tiers, usage
}

// GetSubscription returns addr's subscription, or nil if none exists
// (spec §4.6: "returns the record or {active:false}").
func (m *Manager) GetSubscription(addr string) (*ledger.Subscription, error) {
	return m.ledger.GetSubscription(addr)
}

// Subscribe purchases or renews addr's subscription on tierID, per the
// algorithm in spec §4.6.
func (m *Manager) Subscribe(addr, tierID string, paymentPayload []byte) (*ledger.Subscription, error) {
	tier := FindTier(m.tiers, tierID)
	if tier == nil {
		return nil, errs.New(errs.Malformed, "unknown-tier", "unknown subscription tier")
	}

	result, err := m.verifier.Verify(tier.PriceAtomic, paymentPayload)
	if err != nil {
		return nil, errs.Wrap(errs.PaymentInvalid, "payment-verify", "payment verification failed", err)
	}
	if verr := result.ToError(); verr != nil {
		return nil, verr
	}

	now := time.Now().Unix()
	existing, err := m.ledger.GetSubscription(addr)
	if err != nil {
		return nil, err
	}

	sub := existing
	if sub == nil {
		sub = &ledger.Subscription{
			Address:           addr,
			Tier:              tier.ID,
			StorageLimitBytes: tier.StorageBytes,
			PurchasedAt:       now,
			ExpiresAt:         now + tier.DurationSeconds,
		}
	} else {
		if sub.Active(now) {
			sub.ExpiresAt += tier.DurationSeconds
		} else {
			sub.ExpiresAt = now + tier.DurationSeconds
		}
		if tier.StorageBytes > sub.StorageLimitBytes {
			sub.StorageLimitBytes = tier.StorageBytes
		}
		sub.Tier = tier.ID
		// storageUsedBytes never decreases here (spec §4.6).
	}
	sub.PaymentReceipt = result.Receipt

	if err := m.ledger.PutSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CanUploadResult is the {ok, reason?} pair from spec §4.6's canUpload.
type CanUploadResult struct {
	OK     bool
	Reason string
}

// CanUpload consults the Governor's admission formula without taking a
// reservation, for status-check call sites.
func (m *Manager) CanUpload(addr string, sizeBytes, liveBytesGlobal int64) (CanUploadResult, error) {
	sub, err := m.ledger.GetSubscription(addr)
	if err != nil {
		return CanUploadResult{}, err
	}
	if sub == nil || !sub.Active(time.Now().Unix()) {
		return CanUploadResult{OK: false, Reason: "no-active-subscription"}, nil
	}
	ok, reason := m.governor.WouldAdmit(addr, sub, sizeBytes, liveBytesGlobal)
	return CanUploadResult{OK: ok, Reason: reason}, nil
}
