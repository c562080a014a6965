package executor

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// tpsWindow and tpsBucket configure the rolling throughput window.
const (
	tpsWindow = 10 * time.Second
	tpsBucket = 100 * time.Millisecond
)

// MetricsSnapshot is a point-in-time view of an executor's metrics.
type MetricsSnapshot struct {
	// Tasks is the number of tasks run.
	Tasks int64

	// Task run time estimates.
	LatencyP50  time.Duration
	LatencyP90  time.Duration
	LatencyP99  time.Duration
	LatencyMax  time.Duration
	LatencyMean time.Duration

	// TPS is tasks per second, over a rolling ten second window.
	TPS float64

	// QueueDepth is the number of queued items at the last observation,
	// QueueMax the highest observed, and QueueAvg an exponential moving
	// average.
	QueueDepth int
	QueueMax   int
	QueueAvg   float64

	// Scheduled is the number of scheduled tasks not yet due.
	Scheduled int
}

// Metrics collects runtime statistics, see WithMetrics.
type Metrics struct {
	tps       *tpsCounter
	p50       *pSquare
	p90       *pSquare
	p99       *pSquare
	sum       time.Duration
	max       time.Duration
	count     int64
	queueAvg  float64
	queueCur  int
	queueMax  int
	mu        sync.Mutex
	scheduled atomic.Int64
}

func newMetrics() *Metrics {
	return &Metrics{
		tps: newTPSCounter(tpsWindow, tpsBucket),
		p50: newPSquare(0.5),
		p90: newPSquare(0.9),
		p99: newPSquare(0.99),
	}
}

func (m *Metrics) recordTask(d time.Duration) {
	m.tps.Increment()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.sum += d
	m.max = max(m.max, d)
	v := float64(d)
	m.p50.Update(v)
	m.p90.Update(v)
	m.p99.Update(v)
}

func (m *Metrics) recordQueue(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueMax == 0 && m.queueAvg == 0 {
		m.queueAvg = float64(depth)
	} else {
		m.queueAvg = 0.9*m.queueAvg + 0.1*float64(depth)
	}
	m.queueCur = depth
	m.queueMax = max(m.queueMax, depth)
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	tps := m.tps.TPS()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		Tasks:      m.count,
		LatencyP50: quantileDuration(m.p50),
		LatencyP90: quantileDuration(m.p90),
		LatencyP99: quantileDuration(m.p99),
		LatencyMax: m.max,
		TPS:        tps,
		QueueDepth: m.queueCur,
		QueueMax:   m.queueMax,
		QueueAvg:   m.queueAvg,
		Scheduled:  int(m.scheduled.Load()),
	}
	if m.count != 0 {
		s.LatencyMean = m.sum / time.Duration(m.count)
	}
	return s
}

func quantileDuration(ps *pSquare) time.Duration {
	return time.Duration(math.Round(ps.Quantile()))
}

// Metrics returns a snapshot of the executor's metrics, or false if they
// are not enabled.
func (x *Executor) Metrics() (MetricsSnapshot, bool) {
	if x.metrics == nil {
		return MetricsSnapshot{}, false
	}
	return x.metrics.Snapshot(), true
}

func (x *Executor) recordQueueDepth() {
	if x.metrics != nil {
		x.metrics.recordQueue(x.queue.len())
	}
}

// recordScheduledDepth must be called by the worker.
func (x *Executor) recordScheduledDepth() {
	if x.metrics != nil {
		x.metrics.scheduled.Store(int64(len(x.scheduled)))
	}
}

// tpsCounter counts events in a rolling window of fixed size buckets.
type tpsCounter struct {
	last       time.Time
	buckets    []int64
	bucketSize time.Duration
	window     time.Duration
	mu         sync.Mutex
}

func newTPSCounter(window, bucketSize time.Duration) *tpsCounter {
	return &tpsCounter{
		last:       time.Now(),
		buckets:    make([]int64, max(int(window/bucketSize), 1)),
		bucketSize: bucketSize,
		window:     window,
	}
}

func (t *tpsCounter) Increment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotate(time.Now())
	t.buckets[len(t.buckets)-1]++
}

// rotate advances the window to now. Must be called with mu held.
func (t *tpsCounter) rotate(now time.Time) {
	advance := int(now.Sub(t.last) / t.bucketSize)
	if advance <= 0 {
		return
	}
	if advance >= len(t.buckets) {
		clear(t.buckets)
		t.last = now
		return
	}
	copy(t.buckets, t.buckets[advance:])
	clear(t.buckets[len(t.buckets)-advance:])
	t.last = t.last.Add(time.Duration(advance) * t.bucketSize)
}

func (t *tpsCounter) TPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotate(time.Now())
	var sum int64
	for _, n := range t.buckets {
		sum += n
	}
	return float64(sum) / t.window.Seconds()
}
