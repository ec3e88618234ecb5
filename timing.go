package tileconv

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Event is the completion handle of one tile's work item.
//
// It is created when the tile is issued and completed by the worker after
// stage-out, or after the first failing stage.
type Event struct {
	start time.Time
	end   time.Time
	err   error
	done  chan struct{}
}

func newEvent(start time.Time) *Event {
	return &Event{start: start, done: make(chan struct{})}
}

// complete records the end time and result. Called exactly once.
func (e *Event) complete(err error) {
	e.end = time.Now()
	e.err = err
	close(e.done)
}

// Done returns a channel closed when the tile's work completed.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the tile completes or ctx is done.
// Returns the tile error, or ctx.Err() if ctx ended first.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed reports whether the tile's work has finished.
func (e *Event) Completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Err returns the tile error. Valid after completion.
func (e *Event) Err() error {
	if !e.Completed() {
		return nil
	}
	return e.err
}

// Start returns the timestamp taken when the tile was issued.
func (e *Event) Start() time.Time {
	return e.start
}

// Elapsed returns the time from issue to completion, or zero while the
// tile is still running.
func (e *Event) Elapsed() time.Duration {
	if !e.Completed() {
		return 0
	}
	return e.end.Sub(e.start)
}

// Timeline holds the (start, completion) record of every tile of a run,
// indexed by row-major tile index.
//
// Records are written by the control goroutine only; reads of completed
// events are safe from any goroutine.
type Timeline struct {
	starts []time.Time
	events []*Event
}

// NewTimeline creates a timeline for n tiles.
func NewTimeline(n int) *Timeline {
	return &Timeline{
		starts: make([]time.Time, n),
		events: make([]*Event, n),
	}
}

// Len returns the number of tile slots.
func (t *Timeline) Len() int {
	return len(t.events)
}

// Record stores the issue timestamp and completion handle of tile i.
func (t *Timeline) Record(i int, start time.Time, ev *Event) {
	t.starts[i] = start
	t.events[i] = ev
}

// Start returns the issue timestamp of tile i.
func (t *Timeline) Start(i int) time.Time {
	if i < 0 || i >= len(t.starts) {
		return time.Time{}
	}
	return t.starts[i]
}

// elapsed returns the time from the recorded start of tile i to its
// completion.
func (t *Timeline) elapsed(i int) time.Duration {
	return t.events[i].end.Sub(t.starts[i])
}

// Event returns the event of tile i, or nil if the tile was never issued.
func (t *Timeline) Event(i int) *Event {
	if i < 0 || i >= len(t.events) {
		return nil
	}
	return t.events[i]
}

// Issued returns the number of recorded tiles.
func (t *Timeline) Issued() int {
	n := 0
	for _, ev := range t.events {
		if ev != nil {
			n++
		}
	}
	return n
}

// Wait blocks until every recorded tile completes or ctx is done.
// Returns the joined tile errors, or ctx.Err().
func (t *Timeline) Wait(ctx context.Context) error {
	var errs []error
	for _, ev := range t.events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats summarizes per-tile elapsed times.
type Stats struct {
	// Tiles is the number of completed tiles.
	Tiles int

	// Failed is the number of completed tiles that reported an error.
	Failed int

	// Min, Max and Mean are per-tile elapsed times.
	Min, Max, Mean time.Duration

	// Sum is the total of per-tile elapsed times. It exceeds Wall when
	// tiles overlapped.
	Sum time.Duration

	// Wall is the time from the first issue to the last completion.
	Wall time.Duration
}

// Profile computes statistics over the completed tiles.
func (t *Timeline) Profile() Stats {
	var s Stats
	var first, last time.Time
	for i, ev := range t.events {
		if ev == nil || !ev.Completed() {
			continue
		}
		d := t.elapsed(i)
		if s.Tiles == 0 || d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
		if ev.err != nil {
			s.Failed++
		}
		s.Sum += d
		s.Tiles++

		if first.IsZero() || t.starts[i].Before(first) {
			first = t.starts[i]
		}
		if ev.end.After(last) {
			last = ev.end
		}
	}
	if s.Tiles > 0 {
		s.Mean = s.Sum / time.Duration(s.Tiles)
		s.Wall = last.Sub(first)
	}
	return s
}

// Report writes the profile to w. With perTile set, one line per tile
// precedes the summary.
func (t *Timeline) Report(w io.Writer, perTile bool) error {
	p := message.NewPrinter(language.English)

	if perTile {
		for i, ev := range t.events {
			if ev == nil || !ev.Completed() {
				continue
			}
			status := "ok"
			if ev.err != nil {
				status = "failed"
			}
			if _, err := p.Fprintf(w, "tile %4d: %10.3f us  %s\n", i, micros(t.elapsed(i)), status); err != nil {
				return err
			}
		}
	}

	s := t.Profile()
	_, err := p.Fprintf(w,
		"tiles: %d of %d (failed %d)\nper tile: min %.3f us, max %.3f us, mean %.3f us\ntotal: %.3f us, wall: %.3f us\n",
		s.Tiles, t.Len(), s.Failed,
		micros(s.Min), micros(s.Max), micros(s.Mean),
		micros(s.Sum), micros(s.Wall))
	return err
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
