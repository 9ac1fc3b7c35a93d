package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/common/model"
)

// Recorder keeps a handful of counters describing one peer's lock
// activity: how many times it entered/left the critical section and
// how many peers it has had to evict after a transport failure. The
// teacher's transport.go already reaches for prometheus/common (for
// its log subpackage); here the same dependency's model types render
// the counters as a small vector of labeled samples, the shape
// display_status and the CLI consume.
type Recorder struct {
	mu        sync.Mutex
	peer      model.LabelValue
	acquires  uint64
	releases  uint64
	evictions uint64
	lastHold  time.Time
}

// NewRecorder creates a Recorder tagged with the owning peer's name.
func NewRecorder(peer string) *Recorder {
	return &Recorder{peer: model.LabelValue(peer)}
}

// Acquired records that the owning peer entered the critical section.
func (r *Recorder) Acquired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquires++
	r.lastHold = time.Now()
}

// Released records that the owning peer left the critical section.
func (r *Recorder) Released() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
}

// Evicted records that a peer was dropped after a transport failure.
func (r *Recorder) Evicted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions++
}

// Snapshot renders the current counters as a prometheus/common
// vector, one sample per counter, all carrying the owning peer as a
// label.
func (r *Recorder) Snapshot() model.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := model.Now()
	sample := func(name string, value float64) *model.Sample {
		return &model.Sample{
			Metric: model.Metric{
				model.MetricNameLabel: model.LabelValue(name),
				"peer":                r.peer,
			},
			Value:     model.SampleValue(value),
			Timestamp: now,
		}
	}

	return model.Vector{
		sample("dlock_acquires_total", float64(r.acquires)),
		sample("dlock_releases_total", float64(r.releases)),
		sample("dlock_evictions_total", float64(r.evictions)),
	}
}

// LastHold returns when the owning peer last entered the critical
// section, used by display_status to render a human-readable age.
func (r *Recorder) LastHold() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHold
}
