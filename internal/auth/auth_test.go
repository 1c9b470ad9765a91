package auth

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

func TestWalletSignatureRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	digest := eip191Hash("I Love Shogun")
	sig, err := crypto.Sign(digest, priv)
	require.NoError(t, err)
	sig[64] += 27

	require.NoError(t, VerifyWalletSignature("I Love Shogun", addr, hexEncode(sig)))
}

func TestWalletSignatureRejectsMismatchedAddress(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := eip191Hash("I Love Shogun")
	sig, err := crypto.Sign(digest, priv)
	require.NoError(t, err)
	sig[64] += 27

	err = VerifyWalletSignature("I Love Shogun", "0x0000000000000000000000000000000000000000", hexEncode(sig))
	require.Error(t, err)
	require.Equal(t, errs.Unauthenticated, errs.KindOf(err))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0xf]
	}
	return string(out)
}

func TestApiKeyGenerateAndVerify(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	token, record, err := GenerateApiKey("ci", "admin", time.Time{})
	require.NoError(t, err)
	require.NoError(t, l.PutApiKey(record))

	got, err := VerifyApiKey(l, token)
	require.NoError(t, err)
	require.Equal(t, record.KeyID, got.KeyID)

	_, err = VerifyApiKey(l, token+"x")
	require.Error(t, err)
}

func TestApiKeyRejectsExpired(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	token, record, err := GenerateApiKey("ci", "admin", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, l.PutApiKey(record))

	_, err = VerifyApiKey(l, token)
	require.Error(t, err)
}

func TestSessionIssueAndVerify(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	si := NewSessionIssuer(l, []byte("secret"), time.Hour, true)

	tok, err := si.Issue("0xAbC", "1.2.3.4")
	require.NoError(t, err)

	addr, err := si.Verify(tok, "1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, "0xabc", addr)

	_, err = si.Verify(tok, "9.9.9.9")
	require.Error(t, err)
}

func TestFailCounterBlocksAfterThreshold(t *testing.T) {
	fc := NewFailCounter(time.Minute, 3)
	require.False(t, fc.Blocked("1.2.3.4"))
	fc.RecordFailure("1.2.3.4")
	fc.RecordFailure("1.2.3.4")
	require.False(t, fc.Blocked("1.2.3.4"))
	fc.RecordFailure("1.2.3.4")
	require.True(t, fc.Blocked("1.2.3.4"))
}

func TestMultiplexerResolvesAdmin(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mux := NewMultiplexer(l, "ADMIN", nil, "I Love Shogun", NewFailCounter(time.Minute, 5))

	p, err := mux.Resolve(RequestAuth{AdminTokenHeader: "ADMIN", ClientIP: "1.1.1.1"})
	require.NoError(t, err)
	require.Equal(t, VariantAdmin, p.Variant)
	require.True(t, p.Can(CapAdminWrite))
}

func TestMultiplexerFallsBackToPublic(t *testing.T) {
	l := ledger.New(ledger.NewMemStore())
	mux := NewMultiplexer(l, "ADMIN", nil, "I Love Shogun", NewFailCounter(time.Minute, 5))

	p, err := mux.Resolve(RequestAuth{ClientIP: "1.1.1.1"})
	require.NoError(t, err)
	require.Equal(t, VariantPublic, p.Variant)
	require.False(t, p.Can(CapUpload))
}
