package subscription

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shogunrelay/internal/governor"
	"shogunrelay/internal/ledger"
)

type mockVerifier struct {
	outcome VerifyOutcome
	receipt string
}

func (m mockVerifier) Verify(_ string, _ []byte) (VerifyResult, error) {
	return VerifyResult{Outcome: m.outcome, Receipt: m.receipt}, nil
}

func TestSubscribeCreatesNewSubscription(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(0, 0.8)
	mgr := NewManager(l, g, DefaultTiers(), mockVerifier{outcome: Settled, receipt: "rcpt1"})

	sub, err := mgr.Subscribe("0xabc", "basic", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "basic", sub.Tier)
	require.EqualValues(t, 5<<30, sub.StorageLimitBytes)
	require.Equal(t, "rcpt1", sub.PaymentReceipt)
}

func TestSubscribeRejectsUnknownTier(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(0, 0.8)
	mgr := NewManager(l, g, DefaultTiers(), mockVerifier{outcome: Settled})

	_, err := mgr.Subscribe("0xabc", "nonexistent", nil)
	require.Error(t, err)
}

func TestSubscribeRejectsFailedPayment(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(0, 0.8)
	mgr := NewManager(l, g, DefaultTiers(), mockVerifier{outcome: Insufficient})

	_, err := mgr.Subscribe("0xabc", "basic", nil)
	require.Error(t, err)
}

func TestSubscribeRenewalExtendsExpiry(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(0, 0.8)
	mgr := NewManager(l, g, DefaultTiers(), mockVerifier{outcome: Settled})

	sub1, err := mgr.Subscribe("0xabc", "basic", nil)
	require.NoError(t, err)
	first := sub1.ExpiresAt

	sub2, err := mgr.Subscribe("0xabc", "basic", nil)
	require.NoError(t, err)
	require.Greater(t, sub2.ExpiresAt, first)
}

func TestCanUploadFalseWithoutSubscription(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(0, 0.8)
	mgr := NewManager(l, g, DefaultTiers(), mockVerifier{outcome: Settled})

	res, err := mgr.CanUpload("0xabc", 100, 0)
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "no-active-subscription", res.Reason)
}
