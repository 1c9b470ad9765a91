package deal

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/subscription"
)

type mockVerifier struct {
	outcome subscription.VerifyOutcome
	receipt string
}

func (m mockVerifier) Verify(_ string, _ []byte) (subscription.VerifyResult, error) {
	return subscription.VerifyResult{Outcome: m.outcome, Receipt: m.receipt}, nil
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// pinGateway fakes just enough of the IPFS HTTP API for pin/add and
// pin/ls so the deal Manager can be exercised without a live daemon.
func pinGateway(t *testing.T, pinned *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v0/pin/add":
			*pinned = append(*pinned, r.URL.Query().Get("arg"))
			w.Write([]byte(`{"Pins":["` + r.URL.Query().Get("arg") + `"]}`))
		case r.URL.Path == "/api/v0/pin/ls":
			keys := ""
			for i, c := range *pinned {
				if i > 0 {
					keys += ","
				}
				keys += fmt.Sprintf(`"%s":{"Type":"recursive"}`, c)
			}
			w.Write([]byte(`{"Keys":{` + keys + `}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestPriceFormula(t *testing.T) {
	tier := subscription.DealTier{PricePerByteSecond: 1e-9, ReplicationFactor: 3}
	// 10_000_000 * 86400 * 1e-9 * 3 = 2592
	got := Price(10_000_000, 86400, tier)
	require.Equal(t, "2592", got)
}

func TestCreateDealRejectsUnknownTier(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	_, err := mgr.CreateDeal(CreateRequest{CID: "bafy", ClientAddress: "0xabc", SizeBytes: 1 << 20, DurationSeconds: 24 * 3600, Tier: "nonexistent"})
	require.Error(t, err)
}

func TestCreateDealRejectsOutOfBoundsSize(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	_, err := mgr.CreateDeal(CreateRequest{CID: "bafy", ClientAddress: "0xabc", SizeBytes: 1, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.Error(t, err)
}

func TestCreateDealRejectsOutOfBoundsDuration(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	_, err := mgr.CreateDeal(CreateRequest{CID: "bafy", ClientAddress: "0xabc", SizeBytes: 1 << 20, DurationSeconds: 1, Tier: "standard"})
	require.Error(t, err)
}

func TestCreateDealWritesPendingDeal(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy1", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)
	require.NotEmpty(t, res.DealID)
	require.NotEmpty(t, res.PaymentRequired)

	d, err := l.GetDeal(res.DealID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealPending, d.Status)
	require.Equal(t, "bafy1", d.CID)
}

func TestActivateDealHappyPath(t *testing.T) {
	var pinned []string
	srv := pinGateway(t, &pinned)
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, ipfs, mockVerifier{outcome: subscription.Settled, receipt: "rcpt"}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy2", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)

	d, err := mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.NoError(t, err)
	require.Equal(t, ledger.DealActive, d.Status)
	require.Equal(t, "rcpt", d.PaymentReceipt)
	require.Contains(t, pinned, "bafy2")
}

func TestActivateDealFailsOnRejectedPayment(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Insufficient}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy3", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)

	_, err = mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.Error(t, err)

	d, err := l.GetDeal(res.DealID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealFailed, d.Status)
}

func TestActivateDealRejectsNonPendingTransition(t *testing.T) {
	var pinned []string
	srv := pinGateway(t, &pinned)
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, ipfs, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy4", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)

	_, err = mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.NoError(t, err)

	_, err = mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.Error(t, err)
}

func TestVerifyDealReturnsProofHash(t *testing.T) {
	var pinned []string
	srv := pinGateway(t, &pinned)
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, ipfs, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy5", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)
	_, err = mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.NoError(t, err)

	vr, err := mgr.VerifyDeal(res.DealID, "challenge-abc")
	require.NoError(t, err)
	require.True(t, vr.Verified)
	require.Len(t, vr.ProofHash, 64)
	require.Greater(t, vr.ExpiresAt, vr.Timestamp)
}

func TestVerifyDealUnpinnedReturnsUnverified(t *testing.T) {
	var pinned []string
	srv := pinGateway(t, &pinned)
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, ipfs, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), 0)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy6", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)

	vr, err := mgr.VerifyDeal(res.DealID, "challenge-abc")
	require.NoError(t, err)
	require.False(t, vr.Verified)
}

func TestExpireOverdueTransitionsActiveToExpired(t *testing.T) {
	var pinned []string
	srv := pinGateway(t, &pinned)
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, ipfs, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), time.Hour)

	res, err := mgr.CreateDeal(CreateRequest{CID: "bafy7", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)
	_, err = mgr.ActivateDeal(res.DealID, []byte("payment"))
	require.NoError(t, err)

	d, err := l.GetDeal(res.DealID)
	require.NoError(t, err)
	d.EndAt = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, l.PutDeal(d))

	require.NoError(t, mgr.ExpireOverdue())

	d, err = l.GetDeal(res.DealID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealExpired, d.Status)
}

func TestExpireOverdueTransitionsExpiredPastGraceToTerminated(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), time.Hour)

	d := &ledger.Deal{
		ID:            "deal-expired-1",
		CID:           "bafy8",
		ClientAddress: "0xabc",
		SizeBytes:     1 << 20,
		Tier:          "standard",
		EndAt:         time.Now().Add(-2 * time.Hour).Unix(),
		Status:        ledger.DealExpired,
	}
	require.NoError(t, l.PutDeal(d))

	require.NoError(t, mgr.ExpireOverdue())

	got, err := l.GetDeal(d.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealTerminated, got.Status)
}

func TestExpireOverdueLeavesExpiredWithinGrace(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mgr := NewManager(l, nil, mockVerifier{outcome: subscription.Settled}, subscription.DefaultDealTiers(), time.Hour)

	d := &ledger.Deal{
		ID:            "deal-expired-2",
		CID:           "bafy9",
		ClientAddress: "0xabc",
		SizeBytes:     1 << 20,
		Tier:          "standard",
		EndAt:         time.Now().Add(-time.Minute).Unix(),
		Status:        ledger.DealExpired,
	}
	require.NoError(t, l.PutDeal(d))

	require.NoError(t, mgr.ExpireOverdue())

	got, err := l.GetDeal(d.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealExpired, got.Status)
}
