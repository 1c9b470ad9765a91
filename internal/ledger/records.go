package ledger

import (
	"encoding/json"
	"strconv"
	"strings"

	"shogunrelay/internal/errs"
)

// Subscription is the ledger record keyed by sub/{addr}.
type Subscription struct {
	Address          string `json:"address"`
	Tier             string `json:"tier"`
	StorageLimitBytes int64  `json:"storageLimitBytes"`
	StorageUsedBytes  int64  `json:"storageUsedBytes"`
	PurchasedAt       int64  `json:"purchasedAt"` // unix seconds
	ExpiresAt         int64  `json:"expiresAt"`
	PaymentReceipt    string `json:"paymentReceipt"`
}

// Active reports whether the subscription grants upload capability at now.
func (s *Subscription) Active(now int64) bool {
	return s != nil && now < s.ExpiresAt
}

// DealStatus enumerates the deal lifecycle states from spec §4.7.
type DealStatus string

const (
	DealPending    DealStatus = "pending"
	DealPaid       DealStatus = "paid"
	DealActive     DealStatus = "active"
	DealExpired    DealStatus = "expired"
	DealTerminated DealStatus = "terminated"
	DealFailed     DealStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s DealStatus) Terminal() bool {
	return s == DealTerminated || s == DealFailed
}

// Deal is the ledger record keyed by deal/{id}.
type Deal struct {
	ID                string     `json:"id"`
	CID               string     `json:"cid"`
	ClientAddress     string     `json:"clientAddress"`
	SizeBytes         int64      `json:"sizeBytes"`
	Tier              string     `json:"tier"`
	StartAt           int64      `json:"startAt"`
	EndAt             int64      `json:"endAt"`
	PriceAtomic       string     `json:"priceAtomic"`
	ReplicationFactor int        `json:"replicationFactor"`
	Status            DealStatus `json:"status"`
	PaymentReceipt    string     `json:"paymentReceipt"`
	OnchainTx         string     `json:"onchainTx,omitempty"`
}

// Upload is the ledger record keyed by upload/{ownerKey}/{cid}.
type Upload struct {
	OwnerKey           string `json:"ownerKey"`
	CID                string `json:"cid"`
	SizeBytes          int64  `json:"sizeBytes"`
	ContentType        string `json:"contentType"`
	OriginalName       string `json:"originalName"`
	UploadedAt         int64  `json:"uploadedAt"`
	Encrypted          bool   `json:"encrypted,omitempty"`
	ParentDirectoryCID string `json:"parentDirectoryCid,omitempty"`
	// sha256Fingerprint is the content-hash dedup key computed in pipeline
	// step 4; kept on the record so reconciliation can rebuild dedup state
	// without re-hashing every pinned object.
	SHA256Fingerprint string `json:"sha256Fingerprint"`
}

// ApiKey is the ledger record keyed by apikey/{keyId}. Only the hash of the
// token material is ever persisted. OwnerScope is the ownerKey ("admin" or
// a wallet address) the key's uploads are written under.
type ApiKey struct {
	KeyID       string `json:"keyId"`
	HashedToken string `json:"hashedToken"`
	Name        string `json:"name"`
	OwnerScope  string `json:"ownerScope"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
	LastUsedAt  int64  `json:"lastUsedAt,omitempty"`
	Revoked     bool   `json:"revoked"`
}

// PublicLink is the ledger record keyed by link/{linkId}.
type PublicLink struct {
	LinkID         string `json:"linkId"`
	FilePath       string `json:"filePath"`
	CreatedAt      int64  `json:"createdAt"`
	ExpiresAt      int64  `json:"expiresAt,omitempty"`
	AccessCount    int64  `json:"accessCount"`
	LastAccessedAt int64  `json:"lastAccessedAt,omitempty"`
	Revoked        bool   `json:"revoked"`
}

// Session is the server-side record backing JWT session revocation and
// strictSessionIp comparison, keyed by session/{jti}.
type Session struct {
	JTI       string `json:"jti"`
	Address   string `json:"address"`
	IP        string `json:"ip"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Revoked   bool   `json:"revoked"`
}

// Pulse is the heartbeat blob written to relay/pulse/{host}.
type Pulse struct {
	Host             string `json:"host"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
	MemoryBytes      uint64 `json:"memoryBytes"`
	ActiveConns      int    `json:"activeConns"`
	CapUsageFraction float64 `json:"capUsageFraction"`
	WrittenAt        int64  `json:"writtenAt"`
}

// --- key helpers --------------------------------------------------------

func subKey(addr string) []byte       { return []byte("sub/" + addr) }
func dealKey(id string) []byte        { return []byte("deal/" + id) }
func dealClientIdxKey(addr, id string) []byte {
	return []byte("deal-idx/client/" + addr + "/" + id)
}
func dealClientIdxPrefix(addr string) []byte {
	return []byte("deal-idx/client/" + addr + "/")
}
func dealCidIdxKey(cid, id string) []byte { return []byte("deal-idx/cid/" + cid + "/" + id) }
func dealCidIdxPrefix(cid string) []byte  { return []byte("deal-idx/cid/" + cid + "/") }
func uploadKey(ownerKey, cid string) []byte {
	return []byte("upload/" + ownerKey + "/" + cid)
}
func uploadOwnerPrefix(ownerKey string) []byte { return []byte("upload/" + ownerKey + "/") }
func pinrefKey(cid string) []byte              { return []byte("pinref/" + cid) }
func apikeyKey(keyID string) []byte            { return []byte("apikey/" + keyID) }
func linkKey(linkID string) []byte             { return []byte("link/" + linkID) }
func pulseKey(host string) []byte              { return []byte("relay/pulse/" + host) }
func sessionKey(jti string) []byte             { return []byte("session/" + jti) }

func lastSegment(key []byte) string {
	parts := strings.Split(string(key), "/")
	return parts[len(parts)-1]
}

func decode(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Wrap(errs.Invariant, "ledger-decode", "corrupt ledger record", err)
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.Invariant, "ledger-encode", "unable to encode ledger record", err)
	}
	return b, nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
