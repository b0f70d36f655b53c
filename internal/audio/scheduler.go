package audio

import "time"

// Graph is the part of the output graph the scheduler drives.
type Graph interface {
	Now() time.Duration
	Schedule(b *Buffer, at time.Duration)
}

// Outcome describes what the scheduler did with a buffer.
type Outcome int

const (
	// Scheduled means the buffer was queued back-to-back after the previous one.
	Scheduled Outcome = iota
	// Primed means the cursor was unset; the buffer was queued one
	// lookahead into the future and playback starts once it elapses.
	Primed
	// Underrun means the cursor had already passed. The buffer was dropped
	// and the cursor reset so the next buffer primes again.
	Underrun
)

func (o Outcome) String() string {
	switch o {
	case Scheduled:
		return "scheduled"
	case Primed:
		return "primed"
	case Underrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Placement is the result of Scheduler.Enqueue.
type Placement struct {
	Outcome Outcome
	Start   time.Duration // output clock position the buffer starts at; zero on underrun
}

// Scheduler places decoded buffers on the output clock so they play
// back-to-back with no gaps. All bookkeeping is local: the cursor
// nextStart marks where the next buffer begins, zero meaning not primed.
//
// Scheduler is not safe for concurrent use; the playback controller owns it.
type Scheduler struct {
	graph      Graph
	bufferTime time.Duration
	nextStart  time.Duration
}

// NewScheduler creates a scheduler priming bufferTime ahead of the clock.
func NewScheduler(g Graph, bufferTime time.Duration) *Scheduler {
	if bufferTime <= 0 {
		bufferTime = FrameDuration
	}
	return &Scheduler{graph: g, bufferTime: bufferTime}
}

// BufferTime returns the lookahead used when priming.
func (s *Scheduler) BufferTime() time.Duration {
	return s.bufferTime
}

// NextStart returns the cursor, zero when not primed.
func (s *Scheduler) NextStart() time.Duration {
	return s.nextStart
}

// Reset clears the cursor so the next buffer primes again.
func (s *Scheduler) Reset() {
	s.nextStart = 0
}

// Enqueue schedules b in arrival order.
func (s *Scheduler) Enqueue(b *Buffer) Placement {
	now := s.graph.Now()

	outcome := Scheduled
	if s.nextStart == 0 {
		s.nextStart = now + s.bufferTime
		outcome = Primed
	} else if s.nextStart < now {
		s.nextStart = 0
		return Placement{Outcome: Underrun}
	}

	start := s.nextStart
	s.graph.Schedule(b, start)
	s.nextStart += b.Duration()
	return Placement{Outcome: outcome, Start: start}
}
