package training

import "context"

// Event is a progress message or the terminal outcome of a Job.
type Event struct {
	Message string
	Done    bool
	Report  *Report
	Err     error
}

// RunFunc performs a training run and reports milestones through progress.
type RunFunc func(ctx context.Context, progress func(string)) (*Report, error)

// Job is a training run executing in the background.
type Job struct {
	events chan Event
	cancel context.CancelFunc
}

// Start runs fn in its own goroutine. The Events channel delivers progress
// messages followed by exactly one Done event and is then closed. Callers
// must keep receiving until the channel is closed, even after Cancel, or the
// goroutine is never released. Wait does that.
func Start(ctx context.Context, fn RunFunc) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{events: make(chan Event, 16), cancel: cancel}

	go func() {
		defer close(j.events)
		defer cancel()

		report, err := fn(ctx, func(msg string) {
			select {
			case j.events <- Event{Message: msg}:
			case <-ctx.Done():
			}
		})
		j.events <- Event{Done: true, Report: report, Err: err}
	}()

	return j
}

// Events returns the job's event stream.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Cancel asks the run to stop. Progress reported after Cancel is dropped.
// The terminal event is still delivered, so Events must be drained.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait drains the events and returns the outcome.
func (j *Job) Wait() (*Report, error) {
	for ev := range j.events {
		if ev.Done {
			return ev.Report, ev.Err
		}
	}
	return nil, context.Canceled
}
