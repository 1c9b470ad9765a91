// Package subscription implements the Subscription Manager (spec §4.6):
// the tier catalog, subscribe/renew flow via an external Payment Verifier,
// and quota math delegated to the governor.
package subscription

// Tier is one entry of the subscription catalog, configured at startup and
// immutable during a process lifetime (spec §3).
type Tier struct {
	ID              string `json:"id" mapstructure:"id"`
	PriceAtomic     string `json:"priceAtomic" mapstructure:"price_atomic"`
	StorageBytes    int64  `json:"storageBytes" mapstructure:"storage_bytes"`
	DurationSeconds int64  `json:"durationSeconds" mapstructure:"duration_seconds"`
}

// DealTier extends the pricing/bounds a tier offers for per-file deals
// (spec §3's Tier Catalog: "an additional {pricePerByteSecond, minSize,
// maxSize, minDuration, maxDuration, replication} per tier").
type DealTier struct {
	ID                   string  `json:"id" mapstructure:"id"`
	PricePerByteSecond   float64 `json:"pricePerByteSecond" mapstructure:"price_per_byte_second"`
	MinSizeBytes         int64   `json:"minSizeBytes" mapstructure:"min_size_bytes"`
	MaxSizeBytes         int64   `json:"maxSizeBytes" mapstructure:"max_size_bytes"`
	MinDurationSeconds   int64   `json:"minDurationSeconds" mapstructure:"min_duration_seconds"`
	MaxDurationSeconds   int64   `json:"maxDurationSeconds" mapstructure:"max_duration_seconds"`
	ReplicationFactor    int     `json:"replicationFactor" mapstructure:"replication_factor"`
}

// DefaultTiers returns the relay's built-in subscription catalog.
func DefaultTiers() []Tier {
	return []Tier{
		{ID: "basic", PriceAtomic: "1000000000000000", StorageBytes: 5 << 30, DurationSeconds: 30 * 24 * 3600},
		{ID: "standard", PriceAtomic: "5000000000000000", StorageBytes: 50 << 30, DurationSeconds: 30 * 24 * 3600},
		{ID: "pro", PriceAtomic: "20000000000000000", StorageBytes: 500 << 30, DurationSeconds: 30 * 24 * 3600},
	}
}

// DefaultDealTiers returns the relay's built-in deal-pricing catalog.
func DefaultDealTiers() []DealTier {
	return []DealTier{
		{
			ID: "standard", PricePerByteSecond: 1e-9,
			MinSizeBytes: 1 << 20, MaxSizeBytes: 1 << 40,
			MinDurationSeconds: 24 * 3600, MaxDurationSeconds: 365 * 24 * 3600,
			ReplicationFactor: 3,
		},
	}
}

// FindTier returns the tier with the given id, or nil.
func FindTier(tiers []Tier, id string) *Tier {
	for i := range tiers {
		if tiers[i].ID == id {
			return &tiers[i]
		}
	}
	return nil
}

// FindDealTier returns the deal tier with the given id, or nil.
func FindDealTier(tiers []DealTier, id string) *DealTier {
	for i := range tiers {
		if tiers[i].ID == id {
			return &tiers[i]
		}
	}
	return nil
}
