package responder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kode4food/beckn/pkg/api"
)

// Job is the handle for one accepted request's delayed processing. It
// completes once the callback has been delivered, has failed, or was
// cancelled before it ran
type Job struct {
	TransactionID api.TransactionID
	Action        api.Action
	MessageID     string
	At            time.Time

	done  chan struct{}
	once  sync.Once
	fired atomic.Bool
	err   error
}

var (
	ErrJobCancelled  = errors.New("job cancelled before processing")
	ErrJobSuperseded = errors.New("job replaced by a resent message")
)

func newJob(c *api.Context, at time.Time) *Job {
	return &Job{
		TransactionID: c.TransactionID,
		Action:        c.Action,
		MessageID:     c.MessageID,
		At:            at,
		done:          make(chan struct{}),
	}
}

// Done is closed when the job completes
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the outcome once Done is closed. A nil error means the
// callback was delivered and acknowledged
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the job completes or ctx is done
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

func (j *Job) id() string {
	return string(j.TransactionID) + "/" + string(j.Action) + "/" + j.MessageID
}
