package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

// sessionClaims is the JWT payload: {sub: address, iat, exp, ip}. jti
// backs the ledger-side revocation row.
type sessionClaims struct {
	jwt.RegisteredClaims
	IP string `json:"ip"`
}

// SessionIssuer mints and validates session JWTs, keeping a
// ledger-backed revocation/strictSessionIp row per token.
type SessionIssuer struct {
	ledger          *ledger.Ledger
	signingKey      []byte
	ttl             time.Duration
	strictSessionIP bool
}

// NewSessionIssuer builds a SessionIssuer with an HMAC signing key.
func NewSessionIssuer(l *ledger.Ledger, signingKey []byte, ttl time.Duration, strictSessionIP bool) *SessionIssuer {
	return &SessionIssuer{ledger: l, signingKey: signingKey, ttl: ttl, strictSessionIP: strictSessionIP}
}

// Issue mints a new session JWT for address bound to clientIP, recording a
// ledger-side session row for revocation and IP-binding checks.
func (s *SessionIssuer) Issue(address, clientIP string) (string, error) {
	now := time.Now()
	jti := uuid.New().String()

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(address),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        jti,
		},
		IP: clientIP,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", errs.Wrap(errs.Backend, "session-issue", "sign session token", err)
	}

	err = s.ledger.PutSession(&ledger.Session{
		JTI:       jti,
		Address:   strings.ToLower(address),
		IP:        clientIP,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses and validates a session token, checking the JWT's own
// signature/expiry plus the ledger-side revocation row and (when
// strictSessionIp is enabled) the binding IP.
func (s *SessionIssuer) Verify(tokenStr, clientIP string) (address string, err error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.New(errs.Unauthenticated, "session", "unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", errs.Wrap(errs.Unauthenticated, "session", "invalid or expired session token", err)
	}

	row, lerr := s.ledger.GetSession(claims.ID)
	if lerr != nil {
		return "", lerr
	}
	if row == nil || row.Revoked {
		return "", errs.New(errs.Unauthenticated, "session", "session has been revoked")
	}
	if s.strictSessionIP && row.IP != clientIP {
		return "", errs.New(errs.Unauthenticated, "session", "session is bound to a different ip")
	}
	return claims.Subject, nil
}

// Revoke deletes the ledger-side session row; the JWT itself keeps
// validating structurally until it expires, but Verify always consults
// this row first.
func (s *SessionIssuer) Revoke(jti string) error {
	return s.ledger.RevokeSession(jti)
}

// JTIOf extracts the jti claim from a session token whose signature
// checks out, without enforcing expiry or IP binding -- used by logout,
// which should revoke a session row even if the JWT itself has already
// expired. Returns "" for a token with a bad or missing signature.
func (s *SessionIssuer) JTIOf(tokenStr string) string {
	var claims sessionClaims
	parser := &jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.New(errs.Unauthenticated, "session", "unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil {
		return ""
	}
	return claims.ID
}
