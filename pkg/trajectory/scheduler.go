package trajectory

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/walkerr"
)

const (
	// RequestLookahead is the default tick offset, from "now", at which a
	// freshly requested segment will be grafted. The planner is asked when
	// the countdown reaches it.
	RequestLookahead = 20

	// GraftCountdown is the countdown value at which the planner's result
	// is collected and spliced. The gap to RequestLookahead is the time
	// the planner has to produce the segment.
	GraftCountdown = 2
)

// Scheduler tracks at most one in-flight trajectory request. The countdown
// is expressed in ticks from "now" and decremented alongside the buffers;
// a request is issued to the planner when it reaches RequestLookahead and
// the result is grafted when it reaches GraftCountdown.
type Scheduler struct {
	pending bool
	counter int
	goal    mgl64.Vec2
}

// NewScheduler returns an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Request schedules a new segment toward goal. The graft tick is picked
// from the buffered merge points:
//
//   - no merge point buffered: the robot must be in double support, and
//     the graft is scheduled RequestLookahead ticks from now;
//   - the first merge point is beyond the lookahead: the graft lands on
//     it, even when a request is already in flight;
//   - otherwise the second merge point is used, falling back to the
//     lookahead.
//
// While a request is in flight, every case but the distant front merge
// point keeps both the scheduled tick and the stored goal; the new goal
// is dropped until the next cycle.
func (s *Scheduler) Request(b *Buffers, goal mgl64.Vec2) error {
	if b.MergePointCount() == 0 {
		if b.Horizon() == 0 {
			return walkerr.MergeRejected("no reference buffered yet")
		}
		front := b.Front()
		if !front.InDoubleSupport() {
			return walkerr.MergeRejected("no merge point buffered and the robot is not in double support")
		}
		if s.pending {
			return nil
		}
		s.counter = RequestLookahead
	} else if front, _ := b.FrontMergePoint(); front > RequestLookahead {
		s.counter = front
	} else {
		if s.pending {
			return nil
		}
		if second, ok := b.SecondMergePoint(); ok {
			s.counter = second
		} else {
			s.counter = RequestLookahead
		}
	}

	s.goal = goal
	s.pending = true
	return nil
}

// Pending reports whether a request is in flight.
func (s *Scheduler) Pending() bool { return s.pending }

// Counter returns the remaining ticks until the scheduled graft.
func (s *Scheduler) Counter() int { return s.counter }

// Goal returns the goal of the in-flight request.
func (s *Scheduler) Goal() mgl64.Vec2 { return s.goal }

// Decrement advances the countdown by one tick.
func (s *Scheduler) Decrement() {
	if s.pending {
		s.counter--
	}
}

// ShouldAsk reports whether the planner must be queried this tick.
func (s *Scheduler) ShouldAsk() bool {
	return s.pending && s.counter == RequestLookahead
}

// ShouldGraft reports whether the planner's segment must be grafted this
// tick.
func (s *Scheduler) ShouldGraft() bool {
	return s.pending && s.counter == GraftCountdown
}

// Complete clears the in-flight request once its segment is grafted.
func (s *Scheduler) Complete() {
	s.pending = false
	s.counter = 0
}
