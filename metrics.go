package reactor

import (
	"sort"
	"time"
)

// Metrics tracks runtime statistics for a Reactor. Metrics are opt-in (see
// WithMetrics) and low-overhead: a single dispatch-tick latency sample plus a
// handful of counters recorded once per tick.
//
// Thread Safety: Metrics is written only from the reactor's own dispatch
// loop, never concurrently, so it carries no mutex. A caller reading metrics
// from another goroutine should use Snapshot, which copies the struct.
//
// Example:
//
//	r, _ := New(WithMetrics(true))
//	_ = r.Loop(0)
//	stats := r.Metrics().Snapshot()
//	fmt.Printf("ticks=%d P99 tick latency=%v\n", stats.Ticks, stats.Latency.P99)
type Metrics struct {
	Latency LatencyMetrics

	// Ticks counts completed dispatch-loop iterations.
	Ticks int64
	// ActiveProcessed counts callbacks invoked from the active queue.
	ActiveProcessed int64
	// BackendPolls counts calls into Backend.Dispatch.
	BackendPolls int64
	// SignalDeliveries counts signal occurrences drained into active events.
	SignalDeliveries int64
}

// Snapshot returns a copy of m, safe to read from a goroutine other than the
// one driving the reactor.
func (m *Metrics) Snapshot() Metrics {
	return *m
}

// record updates the tick counters and latency estimator for one completed
// dispatch-loop iteration.
func (m *Metrics) record(tickLatency time.Duration) {
	m.Ticks++
	m.Latency.record(tickLatency)
}

// LatencyMetrics tracks dispatch-tick latency distribution with percentiles,
// using the P-Square algorithm for O(1) streaming percentile estimation.
type LatencyMetrics struct {
	psquare *pSquareMultiQuantile

	// Legacy sample buffer retained for exact percentiles while the sample
	// count is too small for P-Square's estimate to be meaningful.
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50  time.Duration
	P90  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the size of the rolling exact-percentile fallback buffer.
const sampleSize = 1000

// record adds one tick latency sample. O(1) via the P-Square estimator.
func (l *LatencyMetrics) record(d time.Duration) {
	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(d))

	if l.sampleCount >= sampleSize {
		l.Sum -= l.samples[l.sampleIdx]
	}
	l.samples[l.sampleIdx] = d
	l.Sum += d
	l.sampleIdx = (l.sampleIdx + 1) % sampleSize
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}

	l.sample()
}

// sample refreshes the cached P50/P90/P95/P99/Max/Mean fields.
func (l *LatencyMetrics) sample() {
	count := l.sampleCount
	if count == 0 {
		return
	}

	if count < 5 {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}
