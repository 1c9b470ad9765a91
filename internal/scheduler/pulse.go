package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"shogunrelay/internal/governor"
	"shogunrelay/internal/ledger"
)

// PulseTask writes the relay's self-describing heartbeat record to
// relay/pulse/{host} every tick (spec §4.9: "uptime, memory, active
// connections, cap usage"). activeConns is sampled at call time so the
// caller can wire it to a live connection counter (e.g. the HTTP server's
// in-flight request gauge) without this package depending on httpapi.
func PulseTask(interval time.Duration, l *ledger.Ledger, g *governor.Governor, host string, startedAt time.Time, activeConns func() int) Task {
	return Task{
		Name:     "pulse",
		Interval: interval,
		Run: func(ctx context.Context) error {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			capUsage := 0.0
			if capBytes := g.RelayCapBytes(); capBytes > 0 {
				live, err := l.TotalLiveBytes()
				if err != nil {
					return err
				}
				capUsage = float64(live+g.TotalReserved()) / float64(capBytes)
			}

			conns := 0
			if activeConns != nil {
				conns = activeConns()
			}

			return l.PutPulse(&ledger.Pulse{
				Host:             host,
				UptimeSeconds:    int64(time.Since(startedAt).Seconds()),
				MemoryBytes:      mem.Alloc,
				ActiveConns:      conns,
				CapUsageFraction: capUsage,
				WrittenAt:        time.Now().Unix(),
			})
		},
	}
}
