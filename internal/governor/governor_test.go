package governor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shogunrelay/internal/ledger"
)

func TestAdmitRejectsOverSubscriptionCap(t *testing.T) {
	g := New(0, 0.8)
	sub := &ledger.Subscription{Address: "0xabc", StorageLimitBytes: 100, StorageUsedBytes: 90}

	_, err := g.Admit("0xabc", sub, 20, 0)
	require.Error(t, err)

	r, err := g.Admit("0xabc", sub, 10, 0)
	require.NoError(t, err)
	r.Release()
}

func TestAdmitRejectsOverGlobalCap(t *testing.T) {
	g := New(100, 0.8)

	_, err := g.Admit("admin", nil, 150, 0)
	require.Error(t, err)

	r, err := g.Admit("admin", nil, 50, 0)
	require.NoError(t, err)
	require.EqualValues(t, 50, g.TotalReserved())
	r.Release()
	require.EqualValues(t, 0, g.TotalReserved())
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New(0, 0.8)
	r, err := g.Admit("0xabc", nil, 10, 0)
	require.NoError(t, err)
	r.Release()
	r.Release()
	require.EqualValues(t, 0, g.Reserved("0xabc"))
}

func TestWarningThresholdDisabledWhenCapZero(t *testing.T) {
	g := New(0, 0.8)
	require.EqualValues(t, 0, g.WarningThresholdBytes())

	g2 := New(1000, 0.8)
	require.EqualValues(t, 800, g2.WarningThresholdBytes())
}
