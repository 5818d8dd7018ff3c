package trajectory

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/walkerr"
)

// Buffers is the time-indexed reference horizon. Index 0 is the current
// tick. The horizon length only changes when a new segment is grafted;
// Advance preserves it by holding the last sample steady.
//
// Merge points name tick offsets from now at which a newly planned segment
// may be grafted. They are strictly ascending, non-negative, and decremented
// on every Advance; a leading zero is dropped.
type Buffers struct {
	samples     []Sample
	mergePoints []int
}

// NewBuffers returns empty buffers. Load must run before the first Advance.
func NewBuffers() *Buffers {
	return &Buffers{}
}

// Load installs the first planned segment. The planner's leading merge
// point is the segment start itself and is dropped.
func (b *Buffers) Load(samples []Sample, mergePoints []int) error {
	b.samples = nil
	b.mergePoints = nil
	return b.Splice(samples, mergePoints, 0)
}

// Horizon returns the current horizon length.
func (b *Buffers) Horizon() int { return len(b.samples) }

// At returns the sample at tick offset i.
func (b *Buffers) At(i int) Sample { return b.samples[i] }

// Front returns the current tick's sample.
func (b *Buffers) Front() Sample { return b.samples[0] }

// DCMHorizon returns up to n desired DCM positions starting at the current
// tick, for the predictive controller.
func (b *Buffers) DCMHorizon(n int) []mgl64.Vec2 {
	if n > len(b.samples) {
		n = len(b.samples)
	}
	out := make([]mgl64.Vec2, n)
	for i := 0; i < n; i++ {
		out[i] = b.samples[i].DCMPosition
	}
	return out
}

// MergePoints returns a copy of the merge-point queue.
func (b *Buffers) MergePoints() []int {
	out := make([]int, len(b.mergePoints))
	copy(out, b.mergePoints)
	return out
}

// MergePointCount returns the number of scheduled merge points.
func (b *Buffers) MergePointCount() int { return len(b.mergePoints) }

// FrontMergePoint returns the first merge point, if any.
func (b *Buffers) FrontMergePoint() (int, bool) {
	if len(b.mergePoints) == 0 {
		return 0, false
	}
	return b.mergePoints[0], true
}

// SecondMergePoint returns the second merge point, if any.
func (b *Buffers) SecondMergePoint() (int, bool) {
	if len(b.mergePoints) < 2 {
		return 0, false
	}
	return b.mergePoints[1], true
}

// Advance pops the front of the horizon and duplicates the back, keeping
// the length constant, then decrements every merge point and drops a
// leading zero.
func (b *Buffers) Advance() error {
	if len(b.samples) == 0 {
		return walkerr.New(walkerr.ErrRuntime, "cannot advance empty reference buffers")
	}
	if n := len(b.samples); n > 1 {
		copy(b.samples, b.samples[1:])
		b.samples[n-1] = b.samples[n-2]
	}

	for i := range b.mergePoints {
		b.mergePoints[i]--
	}
	if len(b.mergePoints) > 0 && b.mergePoints[0] == 0 {
		b.mergePoints = b.mergePoints[1:]
	}
	return nil
}

// Splice grafts a newly planned segment at tick offset `at`, replacing the
// horizon from that index on. The planner's merge points are relative to
// the segment start; the first one names the start itself and is dropped
// once translated.
func (b *Buffers) Splice(samples []Sample, mergePoints []int, at int) error {
	if len(samples) == 0 {
		return walkerr.MergeRejected("empty segment")
	}
	if at < 0 || at > len(b.samples) {
		return walkerr.MergeRejected("splice index outside the buffered horizon")
	}
	if !sort.IntsAreSorted(mergePoints) {
		return walkerr.MergeRejected("merge points must be ascending")
	}

	b.samples = append(b.samples[:at:at], samples...)

	b.mergePoints = b.mergePoints[:0]
	for _, mp := range mergePoints {
		if mp < 0 {
			return walkerr.MergeRejected("negative merge point")
		}
		if mp == 0 {
			// The segment start is "now" by construction.
			continue
		}
		b.mergePoints = append(b.mergePoints, mp+at)
	}
	return nil
}
