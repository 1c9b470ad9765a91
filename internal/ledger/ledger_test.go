package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(NewMemStore())
}

func TestSubscriptionRoundTrip(t *testing.T) {
	l := newTestLedger(t)

	got, err := l.GetSubscription("0xabc")
	require.NoError(t, err)
	require.Nil(t, got)

	sub := &Subscription{Address: "0xabc", Tier: "basic", StorageLimitBytes: 1 << 20, ExpiresAt: 100}
	require.NoError(t, l.PutSubscription(sub))

	got, err = l.GetSubscription("0xabc")
	require.NoError(t, err)
	require.Equal(t, sub.Tier, got.Tier)
	require.True(t, got.Active(50))
	require.False(t, got.Active(200))
}

func TestDealSecondaryIndexes(t *testing.T) {
	l := newTestLedger(t)

	d := &Deal{ID: "deal-1", CID: "bafy123", ClientAddress: "0xabc", Status: DealPending}
	require.NoError(t, l.PutDeal(d))

	byClient, err := l.DealsByClient("0xabc")
	require.NoError(t, err)
	require.Equal(t, []string{"deal-1"}, byClient)

	byCid, err := l.DealsByCID("bafy123")
	require.NoError(t, err)
	require.Equal(t, []string{"deal-1"}, byCid)
}

func TestDealStatusTerminal(t *testing.T) {
	require.True(t, DealTerminated.Terminal())
	require.True(t, DealFailed.Terminal())
	require.False(t, DealActive.Terminal())
}

func TestUploadDedupLookup(t *testing.T) {
	l := newTestLedger(t)

	u := &Upload{OwnerKey: "0xabc", CID: "bafyabc", SizeBytes: 5, SHA256Fingerprint: "deadbeef"}
	require.NoError(t, l.PutUpload(u))

	found, err := l.FindUploadByFingerprint("0xabc", "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "bafyabc", found.CID)

	notFound, err := l.FindUploadByFingerprint("0xabc", "other")
	require.NoError(t, err)
	require.Nil(t, notFound)
}

func TestPinRefCounting(t *testing.T) {
	l := newTestLedger(t)

	n, err := l.IncrPinRef("bafyabc")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = l.IncrPinRef("bafyabc")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = l.DecrPinRef("bafyabc")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = l.DecrPinRef("bafyabc")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// decrementing below zero floors at zero rather than going negative
	n, err = l.DecrPinRef("bafyabc")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	zeros, err := l.ListZeroPinRefs()
	require.NoError(t, err)
	require.Contains(t, zeros, "bafyabc")
}

func TestLiveBytesSumsOwnerUploads(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.PutUpload(&Upload{OwnerKey: "0xabc", CID: "c1", SizeBytes: 100}))
	require.NoError(t, l.PutUpload(&Upload{OwnerKey: "0xabc", CID: "c2", SizeBytes: 200}))
	require.NoError(t, l.PutUpload(&Upload{OwnerKey: "0xdef", CID: "c3", SizeBytes: 999}))

	total, err := l.LiveBytes("0xabc")
	require.NoError(t, err)
	require.EqualValues(t, 300, total)

	global, err := l.TotalLiveBytes()
	require.NoError(t, err)
	require.EqualValues(t, 1299, global)
}

func TestApiKeyCRUD(t *testing.T) {
	l := newTestLedger(t)
	k := &ApiKey{KeyID: "key1", HashedToken: "hash", Name: "ci"}
	require.NoError(t, l.PutApiKey(k))

	got, err := l.GetApiKey("key1")
	require.NoError(t, err)
	require.Equal(t, "ci", got.Name)

	require.NoError(t, l.DeleteApiKey("key1"))
	got, err = l.GetApiKey("key1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPublicLinkExpiryListing(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.PutPublicLink(&PublicLink{LinkID: "l1", FilePath: "/a.txt", ExpiresAt: 10}))
	require.NoError(t, l.PutPublicLink(&PublicLink{LinkID: "l2", FilePath: "/b.txt", ExpiresAt: 20}))

	links, err := l.ListPublicLinks()
	require.NoError(t, err)
	require.Len(t, links, 2)
}

func TestSessionRevocation(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.PutSession(&Session{JTI: "jti1", Address: "0xabc", IP: "1.2.3.4"}))

	got, err := l.GetSession("jti1")
	require.NoError(t, err)
	require.Equal(t, "0xabc", got.Address)

	require.NoError(t, l.RevokeSession("jti1"))
	got, err = l.GetSession("jti1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPulseRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.PutPulse(&Pulse{Host: "relay-1", UptimeSeconds: 42}))

	p, err := l.GetPulse("relay-1")
	require.NoError(t, err)
	require.EqualValues(t, 42, p.UptimeSeconds)

	all, err := l.ListPulses()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBoltStoreImplementsSameContract(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	l := New(store)
	require.NoError(t, l.PutSubscription(&Subscription{Address: "0xabc", Tier: "basic", ExpiresAt: 100}))

	got, err := l.GetSubscription("0xabc")
	require.NoError(t, err)
	require.Equal(t, "basic", got.Tier)
}

func TestMemStoreIteratorIsPrefixScoped(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Set([]byte("a/1"), []byte("x")))
	require.NoError(t, s.Set([]byte("a/2"), []byte("y")))
	require.NoError(t, s.Set([]byte("b/1"), []byte("z")))

	it, err := s.Iterator([]byte("a/"))
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a/1", "a/2"}, keys)
}
