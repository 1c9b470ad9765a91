package auth

import (
	"crypto/subtle"
	"strings"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

// RequestAuth carries exactly the request fields the multiplexer needs,
// decoupled from the HTTP surface so it can be unit tested without chi.
type RequestAuth struct {
	AdminTokenHeader string // value of Authorization: Bearer <token> or token: <token>
	SessionCookie    string
	BearerToken      string // raw Authorization: Bearer <...> value, used for api-key detection
	WalletAddress    string // X-User-Address
	WalletSignature  string // X-Wallet-Signature
	ClientIP         string
}

// Multiplexer resolves a RequestAuth into a Principal, in the fixed
// resolution order from spec §4.4: admin bearer token -> session cookie ->
// API key -> wallet signature -> anonymous.
type Multiplexer struct {
	ledger        *ledger.Ledger
	adminToken    string
	sessions      *SessionIssuer
	walletMessage string
	fails         *FailCounter
}

// NewMultiplexer wires a Multiplexer over its collaborators.
func NewMultiplexer(l *ledger.Ledger, adminToken string, sessions *SessionIssuer, walletMessage string, fails *FailCounter) *Multiplexer {
	return &Multiplexer{ledger: l, adminToken: adminToken, sessions: sessions, walletMessage: walletMessage, fails: fails}
}

// Resolve implements the resolution order. It first rejects, as
// RateLimited, any ra.ClientIP the FailCounter has blocked; on
// authentication failure it records the failure against ra.ClientIP.
func (m *Multiplexer) Resolve(ra RequestAuth) (Principal, error) {
	if m.fails != nil && m.fails.Blocked(ra.ClientIP) {
		return Principal{}, errs.New(errs.RateLimited, "auth-failures", "too many authentication failures from this address")
	}

	if ra.AdminTokenHeader != "" {
		if m.adminToken != "" && constantTimeEqual(ra.AdminTokenHeader, m.adminToken) {
			return AdminPrincipal(), nil
		}
		m.recordFailure(ra.ClientIP)
		return Principal{}, errs.New(errs.Unauthenticated, "admin-token", "invalid admin token")
	}

	if ra.SessionCookie != "" {
		addr, err := m.sessions.Verify(ra.SessionCookie, ra.ClientIP)
		if err != nil {
			m.recordFailure(ra.ClientIP)
			return Principal{}, err
		}
		return WalletPrincipal(strings.ToLower(addr)), nil
	}

	if ra.BearerToken != "" && strings.HasPrefix(ra.BearerToken, ApiKeyPrefix) {
		record, err := VerifyApiKey(m.ledger, ra.BearerToken)
		if err != nil {
			m.recordFailure(ra.ClientIP)
			return Principal{}, err
		}
		return ApiKeyPrincipal(record.KeyID, record.OwnerScope), nil
	}

	if ra.WalletAddress != "" && ra.WalletSignature != "" {
		if err := VerifyWalletSignature(m.walletMessage, ra.WalletAddress, ra.WalletSignature); err != nil {
			m.recordFailure(ra.ClientIP)
			return Principal{}, err
		}
		return WalletPrincipal(strings.ToLower(ra.WalletAddress)), nil
	}

	return PublicPrincipal(), nil
}

func (m *Multiplexer) recordFailure(ip string) {
	if m.fails != nil {
		m.fails.RecordFailure(ip)
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
