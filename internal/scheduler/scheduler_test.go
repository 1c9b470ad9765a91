package scheduler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"shogunrelay/internal/deal"
	"shogunrelay/internal/governor"
	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/subscription"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type settledVerifier struct{}

func (settledVerifier) Verify(_ string, _ []byte) (subscription.VerifyResult, error) {
	return subscription.VerifyResult{Outcome: subscription.Settled, Receipt: "r"}, nil
}

func TestSchedulerRunsAndStopsTasks(t *testing.T) {
	var ticks int32
	s := New(newTestLogger(), Task{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ticks, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	require.GreaterOrEqual(t, atomic.LoadInt32(&ticks), int32(1))
}

func TestSchedulerDisablesZeroIntervalTask(t *testing.T) {
	ran := false
	s := New(newTestLogger(), Task{
		Name:     "disabled",
		Interval: 0,
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	require.False(t, ran)
}

func TestDealFullSyncTaskExpiresOverdueDeals(t *testing.T) {
	var pinned []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0/pin/add":
			pinned = append(pinned, r.URL.Query().Get("arg"))
			w.Write([]byte(`{"Pins":[]}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	mgr := deal.NewManager(l, ipfs, settledVerifier{}, subscription.DefaultDealTiers(), time.Hour)

	res, err := mgr.CreateDeal(deal.CreateRequest{CID: "bafy1", ClientAddress: "0xabc", SizeBytes: 10 << 20, DurationSeconds: 24 * 3600, Tier: "standard"})
	require.NoError(t, err)
	_, err = mgr.ActivateDeal(res.DealID, []byte("pay"))
	require.NoError(t, err)

	d, err := l.GetDeal(res.DealID)
	require.NoError(t, err)
	d.EndAt = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, l.PutDeal(d))

	task := DealFullSyncTask(time.Second, mgr)
	require.NoError(t, task.Run(context.Background()))

	d, err = l.GetDeal(res.DealID)
	require.NoError(t, err)
	require.Equal(t, ledger.DealExpired, d.Status)
}

func TestDealFastSyncTaskDoesNotError(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	require.NoError(t, l.PutDeal(&ledger.Deal{ID: "d1", CID: "bafy1", Status: ledger.DealPending}))

	task := DealFastSyncTask(time.Second, l, newTestLogger())
	require.NoError(t, task.Run(context.Background()))
}

func TestOrphanPinSweepUnpinsZeroRefcount(t *testing.T) {
	var unpinned []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v0/pin/rm" {
			unpinned = append(unpinned, r.URL.Query().Get("arg"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	ipfs := ipfsclient.New(srv.URL, 5*time.Second, newTestLogger())

	l := ledger.New(ledger.NewMemStore())
	_, err := l.IncrPinRef("bafyorphan")
	require.NoError(t, err)
	_, err = l.DecrPinRef("bafyorphan")
	require.NoError(t, err)

	task := OrphanPinSweepTask(time.Second, l, ipfs, newTestLogger())
	require.NoError(t, task.Run(context.Background()))
	require.Contains(t, unpinned, "bafyorphan")
}

func TestLinkExpiryDeletesPastExpiry(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	require.NoError(t, l.PutPublicLink(&ledger.PublicLink{LinkID: "l1", ExpiresAt: time.Now().Add(-time.Minute).Unix()}))
	require.NoError(t, l.PutPublicLink(&ledger.PublicLink{LinkID: "l2", ExpiresAt: time.Now().Add(time.Hour).Unix()}))

	task := LinkExpiryTask(time.Second, l, newTestLogger())
	require.NoError(t, task.Run(context.Background()))

	got, err := l.GetPublicLink("l1")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = l.GetPublicLink("l2")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestCounterReconcileRepairsDrift(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	require.NoError(t, l.PutSubscription(&ledger.Subscription{Address: "0xabc", StorageUsedBytes: 999, ExpiresAt: time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, l.PutUpload(&ledger.Upload{OwnerKey: "0xabc", CID: "c1", SizeBytes: 100}))

	task := CounterReconcileTask(time.Second, l, newTestLogger())
	require.NoError(t, task.Run(context.Background()))

	sub, err := l.GetSubscription("0xabc")
	require.NoError(t, err)
	require.EqualValues(t, 100, sub.StorageUsedBytes)
}

func TestSessionReapDeletesExpired(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	require.NoError(t, l.PutSession(&ledger.Session{JTI: "j1", ExpiresAt: time.Now().Add(-time.Minute).Unix()}))
	require.NoError(t, l.PutSession(&ledger.Session{JTI: "j2", ExpiresAt: time.Now().Add(time.Hour).Unix()}))

	task := SessionReapTask(time.Second, l, newTestLogger())
	require.NoError(t, task.Run(context.Background()))

	got, err := l.GetSession("j1")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = l.GetSession("j2")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestPulseTaskWritesHeartbeat(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	g := governor.New(1000, 0.8)

	task := PulseTask(time.Second, l, g, "relay-1", time.Now().Add(-time.Minute), func() int { return 3 })
	require.NoError(t, task.Run(context.Background()))

	p, err := l.GetPulse("relay-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 3, p.ActiveConns)
	require.GreaterOrEqual(t, p.UptimeSeconds, int64(59))
}
