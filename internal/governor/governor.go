// Package governor implements the Quota/Storage Governor (spec §4.8): a
// single in-process mutex guarding a reservation table, used to admit or
// reject uploads before any I/O happens. The critical section never blocks
// on I/O, per spec §5 ("Reservation mutations are serialized by the
// Governor's single mutex; the critical section is bounded").
package governor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

// Governor tracks in-flight reservations against both a per-subscription
// cap and a global relay cap.
type Governor struct {
	mu            sync.Mutex
	reserved      map[string]int64 // addr -> reservedBytes
	totalReserved int64

	relayCapBytes   int64 // 0 disables the global cap
	warningFraction float64

	capUsage      prometheus.Gauge
	reservedGauge prometheus.Gauge
}

// New builds a Governor. relayCapBytes of 0 disables the global cap per
// spec §4.8.
func New(relayCapBytes int64, warningFraction float64) *Governor {
	g := &Governor{
		reserved:        make(map[string]int64),
		relayCapBytes:   relayCapBytes,
		warningFraction: warningFraction,
		capUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "governor",
			Name:      "cap_usage_fraction",
			Help:      "Fraction of the global relay storage cap currently used or reserved.",
		}),
		reservedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "governor",
			Name:      "total_reserved_bytes",
			Help:      "Sum of in-flight upload reservations across all subscriptions.",
		}),
	}
	return g
}

// Collectors returns the governor's prometheus gauges for registration.
func (g *Governor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{g.capUsage, g.reservedGauge}
}

// Reservation is a scoped claim that must be released exactly once.
type Reservation struct {
	addr        string
	bytes       int64
	released    bool
	g           *Governor
}

// Admit reserves requestedBytes against sub (may be nil for unmetered
// uploads, which still participate in the global cap) and returns a
// Reservation the caller must Release on every exit path. liveBytesGlobal
// is the ledger's current source-of-truth figure; the subscription's own
// usage is read from sub.StorageUsedBytes.
func (g *Governor) Admit(addr string, sub *ledger.Subscription, requestedBytes, liveBytesGlobal int64) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sub != nil {
		subReserved := g.reserved[addr]
		if sub.StorageUsedBytes+subReserved+requestedBytes > sub.StorageLimitBytes {
			return nil, errs.New(errs.QuotaExceeded, "subscription-cap", "subscription storage limit would be exceeded")
		}
	}

	if g.relayCapBytes > 0 {
		if liveBytesGlobal+g.totalReserved+requestedBytes > g.relayCapBytes {
			return nil, errs.New(errs.QuotaExceeded, "relay-cap", "global relay storage cap would be exceeded")
		}
	}

	g.reserved[addr] += requestedBytes
	g.totalReserved += requestedBytes
	g.updateGaugesLocked(liveBytesGlobal)

	return &Reservation{addr: addr, bytes: requestedBytes, g: g}, nil
}

// WouldAdmit is a side-effect-free check of the same admission formula
// Admit uses, for status endpoints (spec §4.6 canUpload) that want a yes/no
// answer without taking a reservation.
func (g *Governor) WouldAdmit(addr string, sub *ledger.Subscription, requestedBytes, liveBytesGlobal int64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sub != nil {
		subReserved := g.reserved[addr]
		if sub.StorageUsedBytes+subReserved+requestedBytes > sub.StorageLimitBytes {
			return false, "subscription-cap"
		}
	}
	if g.relayCapBytes > 0 {
		if liveBytesGlobal+g.totalReserved+requestedBytes > g.relayCapBytes {
			return false, "relay-cap"
		}
	}
	return true, ""
}

// Release returns the reservation's bytes. It is idempotent: calling it
// twice is a no-op on the second call, so defer-based release sites never
// double-release.
func (r *Reservation) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true

	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	r.g.reserved[r.addr] -= r.bytes
	if r.g.reserved[r.addr] <= 0 {
		delete(r.g.reserved, r.addr)
	}
	r.g.totalReserved -= r.bytes
	if r.g.totalReserved < 0 {
		r.g.totalReserved = 0
	}
}

// Reserved reports addr's current in-flight reservation. Admit and
// WouldAdmit read the reservation map directly rather than through it.
func (g *Governor) Reserved(addr string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reserved[addr]
}

// TotalReserved reports the global in-flight reservation total.
func (g *Governor) TotalReserved() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalReserved
}

// WarningThresholdBytes returns the relay cap's warning threshold in bytes,
// or 0 if the cap is disabled.
func (g *Governor) WarningThresholdBytes() int64 {
	if g.relayCapBytes <= 0 {
		return 0
	}
	return int64(float64(g.relayCapBytes) * g.warningFraction)
}

// RelayCapBytes returns the configured global cap (0 if disabled).
func (g *Governor) RelayCapBytes() int64 { return g.relayCapBytes }

func (g *Governor) updateGaugesLocked(liveBytesGlobal int64) {
	g.reservedGauge.Set(float64(g.totalReserved))
	if g.relayCapBytes > 0 {
		g.capUsage.Set(float64(liveBytesGlobal+g.totalReserved) / float64(g.relayCapBytes))
	}
}
