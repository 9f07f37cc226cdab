// Package metrics records per-session counters: symbol attempts, decode
// duration, a degree histogram, and rejection counts by kind (spec.md §2,
// §4.6 "Metrics recorder").
//
// Grounded on the read-snapshot pattern the teacher pack
// (github.com/machinefabric/capdag-go) uses for its registry cache entries
// (registry.go's CacheEntry): mutate a private struct behind methods, and
// expose an immutable Snapshot() copy for callers rather than handing out
// the live struct.
package metrics

import (
	"time"

	"github.com/rootnegativeone/tightbeam/internal/decoder"
)

// Snapshot is an immutable point-in-time view of a session's metrics.
type Snapshot struct {
	Attempts         int
	Accepted         int
	RejectionsByKind map[decoder.Rejection]int
	DegreeHistogram  map[int]int
	DecodeDuration   time.Duration
	DecodeCompleteAt time.Time
}

// Recorder accumulates metrics for one session. It is not safe for
// concurrent use, matching the non-reentrant contract of the rest of the
// core (spec.md §5).
type Recorder struct {
	startedAt        time.Time
	attempts         int
	accepted         int
	rejectionsByKind map[decoder.Rejection]int
	degreeHistogram  map[int]int
	decodeDuration   time.Duration
	decodeCompleteAt time.Time
	now              func() time.Time
}

// New creates a Recorder with its clock started.
func New() *Recorder {
	r := &Recorder{
		rejectionsByKind: make(map[decoder.Rejection]int),
		degreeHistogram:  make(map[int]int),
		now:              time.Now,
	}
	r.startedAt = r.now()
	return r
}

// RecordAttempt records one incoming symbol ingestion attempt, its
// resulting rejection (RejectionNone on acceptance), and its degree at
// arrival (before normalization) for the histogram.
func (r *Recorder) RecordAttempt(degreeAtArrival int, rejection decoder.Rejection) {
	r.attempts++
	r.degreeHistogram[degreeAtArrival]++
	if rejection == decoder.RejectionNone {
		r.accepted++
		return
	}
	r.rejectionsByKind[rejection]++
}

// RecordDecodeComplete stamps the moment decode completion was detected;
// DecodeDuration becomes the elapsed time since the Recorder was created.
func (r *Recorder) RecordDecodeComplete() {
	if !r.decodeCompleteAt.IsZero() {
		return
	}
	r.decodeCompleteAt = r.now()
	r.decodeDuration = r.decodeCompleteAt.Sub(r.startedAt)
}

// Snapshot returns an immutable copy of the current metrics.
func (r *Recorder) Snapshot() Snapshot {
	rejections := make(map[decoder.Rejection]int, len(r.rejectionsByKind))
	for k, v := range r.rejectionsByKind {
		rejections[k] = v
	}
	histogram := make(map[int]int, len(r.degreeHistogram))
	for k, v := range r.degreeHistogram {
		histogram[k] = v
	}
	return Snapshot{
		Attempts:         r.attempts,
		Accepted:         r.accepted,
		RejectionsByKind: rejections,
		DegreeHistogram:  histogram,
		DecodeDuration:   r.decodeDuration,
		DecodeCompleteAt: r.decodeCompleteAt,
	}
}
