package extraction

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Job tracks one extraction through the pipeline. State moves strictly
// forward and ends in exactly one terminal state; transitions after a
// terminal state are ignored.
type Job struct {
	ID string

	doc  domain.Document
	opts domain.Options

	mu     sync.Mutex
	state  domain.JobState
	result *domain.ExtractionResult
	err    error
	last   domain.ProgressUpdate // most recent update, feeds the terminal one

	progress chan domain.ProgressUpdate
	done     chan struct{}
	cancel   context.CancelFunc
}

func newJob(doc domain.Document, opts domain.Options, progressBuffer int) *Job {
	if progressBuffer < 1 {
		progressBuffer = 16
	}
	return &Job{
		ID:       uuid.NewString(),
		doc:      doc,
		opts:     opts,
		state:    domain.StateQueued,
		progress: make(chan domain.ProgressUpdate, progressBuffer),
		done:     make(chan struct{}),
	}
}

// State returns the current job state.
func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the ordered progress stream for the job. The channel
// is closed once the job reaches a terminal state.
func (j *Job) Progress() <-chan domain.ProgressUpdate {
	return j.progress
}

// Cancel requests cancellation. The job stops at the next stage
// boundary and keeps whatever it produced so far.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the job reaches a terminal state or ctx expires.
// Cancelled jobs return their partial result alongside a nil error.
func (j *Job) Wait(ctx context.Context) (*domain.ExtractionResult, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, domain.TimeoutError("waiting for job", ctx.Err())
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Result returns the result and error without blocking. Both are nil
// until the job reaches a terminal state.
func (j *Job) Result() (*domain.ExtractionResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// transition advances the state machine and emits a progress update.
// Returns false when the job is already terminal.
func (j *Job) transition(state domain.JobState, update domain.ProgressUpdate) bool {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.state = state
	j.mu.Unlock()

	update.JobID = j.ID
	update.Stage = state
	j.emit(update)
	return true
}

// emit delivers a progress update without blocking the pipeline. A
// slow consumer loses intermediate updates, never the terminal one.
func (j *Job) emit(update domain.ProgressUpdate) {
	j.mu.Lock()
	j.last = update
	j.mu.Unlock()

	select {
	case j.progress <- update:
	default:
	}
}

// finish records the terminal outcome and releases waiters. The terminal
// update carries the counters of the last update emitted, so a cancelled
// or failed job reports how far it actually got.
func (j *Job) finish(state domain.JobState, result *domain.ExtractionResult, err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = state
	j.result = result
	j.err = err
	// The input bytes are not needed past this point; only the content
	// hash inside the cache key outlives the job.
	j.doc = domain.Document{}
	update := j.last
	j.mu.Unlock()

	update.JobID = j.ID
	update.Stage = state
	if state == domain.StateCompleted {
		update.Percent = 1.0
	}

	// The terminal update must not be lost. When the buffer is full, a
	// stale buffered update is dropped to make room; the channel has a
	// single producer, so the send lands in a bounded number of rounds.
	for {
		select {
		case j.progress <- update:
			close(j.progress)
			close(j.done)
			return
		default:
			select {
			case <-j.progress:
			default:
			}
		}
	}
}
