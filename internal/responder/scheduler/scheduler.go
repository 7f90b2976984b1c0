// Package scheduler runs keyed, delayed tasks on a single goroutine. Clock
// and timer are injectable so tests can fire tasks without waiting
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Scheduler runs delayed tasks and supports replacement and prefix cancel
	Scheduler struct {
		now       Clock
		makeTimer TimerConstructor
		reqs      chan request
	}

	// TaskFunc is called when its run time arrives
	TaskFunc func() error

	opcode uint8

	request struct {
		op    opcode
		task  *Task
		key   Key
		reply chan int
	}
)

const (
	opSchedule opcode = iota
	opCancel
	opCancelPrefix
	opLen
)

const requestBuffer = 100

// New creates a scheduler using the provided clock and timer constructor
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		reqs:      make(chan request, requestBuffer),
	}
}

// NewSystem creates a scheduler driven by wall-clock time
func NewSystem() *Scheduler {
	return New(time.Now, NewTimer)
}

// Now returns the scheduler's notion of the current time
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Schedule enqueues fn to run at the requested time under key
func (s *Scheduler) Schedule(
	ctx context.Context, key Key, at time.Time, fn TaskFunc,
) {
	s.send(ctx, request{
		op:   opSchedule,
		task: &Task{Func: fn, At: at, Key: key},
	})
}

// Cancel removes the task registered for the exact key
func (s *Scheduler) Cancel(ctx context.Context, key Key) bool {
	return s.call(ctx, request{op: opCancel, key: key}) > 0
}

// CancelPrefix removes all tasks under the key prefix and reports how many
// were removed
func (s *Scheduler) CancelPrefix(ctx context.Context, prefix Key) int {
	return s.call(ctx, request{op: opCancelPrefix, key: prefix})
}

// Len reports how many tasks are waiting to run
func (s *Scheduler) Len(ctx context.Context) int {
	return s.call(ctx, request{op: opLen})
}

// Run processes scheduler requests until the context is cancelled. Tasks
// run on this goroutine, one at a time, so they should hand slow work off
func (s *Scheduler) Run(ctx context.Context) {
	timer := s.makeTimer(0)
	var timerCh <-chan time.Time
	tasks := NewTaskHeap()

	resetTimer := func() {
		t := tasks.Peek()
		if t == nil {
			timer.Stop()
			timerCh = nil
			return
		}
		timer.Reset(t.At.Sub(s.now()))
		timerCh = timer.Channel()
	}

	resetTimer()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case req := <-s.reqs:
			res := 0
			switch req.op {
			case opSchedule:
				tasks.Insert(req.task)
			case opCancel:
				if tasks.Cancel(req.key) {
					res = 1
				}
			case opCancelPrefix:
				res = tasks.CancelPrefix(req.key)
			case opLen:
				res = tasks.Len()
			}
			if req.reply != nil {
				req.reply <- res
			}
			if req.op != opLen {
				resetTimer()
			}
		case <-timerCh:
			task := tasks.PopTask()
			if task == nil {
				resetTimer()
				continue
			}
			if err := task.Func(); err != nil {
				slog.Error("Scheduled task failed",
					slog.Any("key", []string(task.Key)),
					log.Error(err))
			}
			resetTimer()
		}
	}
}

func (s *Scheduler) send(ctx context.Context, req request) {
	select {
	case s.reqs <- req:
	case <-ctx.Done():
	}
}

func (s *Scheduler) call(ctx context.Context, req request) int {
	req.reply = make(chan int, 1)
	s.send(ctx, req)
	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return 0
	}
}
