package scheduler

import (
	"container/heap"
	"strings"
	"time"
)

type (
	// Key identifies a task. Scheduling a task under an existing key
	// replaces it, and a key prefix addresses a group of tasks
	Key []string

	// Task is a function scheduled to run at a point in time
	Task struct {
		Func  TaskFunc
		At    time.Time
		Key   Key
		id    string
		index int
	}

	// TaskHeap orders tasks by run time and indexes them by key
	TaskHeap struct {
		items []*Task
		byID  map[string]*Task
	}
)

const keySep = "\x00"

// NewTaskHeap creates an empty TaskHeap
func NewTaskHeap() *TaskHeap {
	h := &TaskHeap{byID: map[string]*Task{}}
	heap.Init(h)
	return h
}

// Insert adds a task, replacing any task already scheduled under its key
func (h *TaskHeap) Insert(t *Task) {
	if t == nil || t.Func == nil || t.At.IsZero() {
		return
	}
	if len(t.Key) > 0 {
		t.id = t.Key.id()
		if old, ok := h.byID[t.id]; ok {
			old.Func = t.Func
			old.At = t.At
			heap.Fix(h, old.index)
			return
		}
	}
	heap.Push(h, t)
}

// PopTask removes and returns the earliest task, or nil if empty
func (h *TaskHeap) PopTask() *Task {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Task)
}

// Peek returns the earliest task without removing it
func (h *TaskHeap) Peek() *Task {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Cancel removes the task scheduled under exactly this key
func (h *TaskHeap) Cancel(k Key) bool {
	if len(k) == 0 {
		return false
	}
	t, ok := h.byID[k.id()]
	if !ok {
		return false
	}
	heap.Remove(h, t.index)
	return true
}

// CancelPrefix removes every task whose key starts with prefix and returns
// how many were removed
func (h *TaskHeap) CancelPrefix(prefix Key) int {
	if len(prefix) == 0 {
		return 0
	}
	p := prefix.id()
	var doomed []*Task
	for id, t := range h.byID {
		if strings.HasPrefix(id, p) {
			doomed = append(doomed, t)
		}
	}
	for _, t := range doomed {
		heap.Remove(h, t.index)
	}
	return len(doomed)
}

// Len returns the number of scheduled tasks
func (h *TaskHeap) Len() int {
	return len(h.items)
}

func (h *TaskHeap) Less(i, j int) bool {
	return h.items[i].At.Before(h.items[j].At)
}

func (h *TaskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *TaskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(h.items)
	h.items = append(h.items, t)
	if len(t.Key) > 0 {
		if t.id == "" {
			t.id = t.Key.id()
		}
		h.byID[t.id] = t
	}
}

func (h *TaskHeap) Pop() any {
	old := h.items
	n := len(old)
	if n == 0 {
		return nil
	}
	t := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	t.index = -1
	if t.id != "" {
		delete(h.byID, t.id)
	}
	return t
}

// id terminates every segment so that a prefix only matches whole segments
func (k Key) id() string {
	var b strings.Builder
	for _, s := range k {
		b.WriteString(s)
		b.WriteString(keySep)
	}
	return b.String()
}
