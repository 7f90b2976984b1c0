package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kode4food/beckn/pkg/api"
)

// Memory is a mutex-guarded map of transaction records. Records are copied
// on the way in and out so callers never share a record with the store
type Memory struct {
	options
	mu      sync.RWMutex
	records map[api.TransactionID]*api.Transaction
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		options: makeOptions(opts),
		records: map[api.TransactionID]*api.Transaction{},
	}
}

// Create implements Store
func (m *Memory) Create(
	_ context.Context, id api.TransactionID,
) (*api.Transaction, error) {
	if id == "" {
		return nil, ErrEmptyTransactionID
	}
	m.mu.Lock()
	if _, ok := m.records[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransactionExists, id)
	}
	tx := newRecord(id, m.clock())
	m.records[id] = tx
	res := tx.Copy()
	m.mu.Unlock()

	m.feed.Publish(eventFor(res, ""))
	return res, nil
}

// Get implements Store
func (m *Memory) Get(
	_ context.Context, id api.TransactionID,
) (*api.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tx, ok := m.records[id]; ok {
		return tx.Copy(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
}

// ApplyCallback implements Store
func (m *Memory) ApplyCallback(
	_ context.Context, id api.TransactionID, action api.Action, p Payload,
) (*api.Transaction, error) {
	res, err := m.update(id, func(tx *api.Transaction) error {
		return applyCallback(tx, action, p, m.clock())
	})
	if err != nil {
		return nil, err
	}
	m.feed.Publish(eventFor(res, action))
	return res, nil
}

// Fail implements Store
func (m *Memory) Fail(
	_ context.Context, id api.TransactionID, reason string,
) (*api.Transaction, error) {
	res, err := m.update(id, func(tx *api.Transaction) error {
		return fail(tx, reason, m.clock())
	})
	if err != nil {
		return nil, err
	}
	m.feed.Publish(eventFor(res, ""))
	return res, nil
}

// Expire implements Store
func (m *Memory) Expire(
	_ context.Context, id api.TransactionID, reason string, seen time.Time,
) (*api.Transaction, error) {
	res, err := m.update(id, func(tx *api.Transaction) error {
		return expire(tx, reason, seen, m.clock())
	})
	if err != nil {
		return nil, err
	}
	m.feed.Publish(eventFor(res, ""))
	return res, nil
}

// List implements Store
func (m *Memory) List(context.Context) ([]*api.Transaction, error) {
	m.mu.RLock()
	res := make([]*api.Transaction, 0, len(m.records))
	for _, tx := range m.records {
		res = append(res, tx.Copy())
	}
	m.mu.RUnlock()
	sortByCreated(res)
	return res, nil
}

// Delete implements Store
func (m *Memory) Delete(_ context.Context, id api.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	delete(m.records, id)
	return nil
}

// Events implements Store
func (m *Memory) Events() *Feed {
	return m.feed
}

// Close implements Store
func (m *Memory) Close() error {
	m.feed.Close()
	return nil
}

// update applies fn to a working copy and swaps it in only on success, so a
// rejected callback leaves the stored record untouched
func (m *Memory) update(
	id api.TransactionID, fn func(*api.Transaction) error,
) (*api.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	next := tx.Copy()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.records[id] = next
	return next.Copy(), nil
}

func sortByCreated(txs []*api.Transaction) {
	slices.SortStableFunc(txs, func(l, r *api.Transaction) int {
		if c := l.CreatedAt.Compare(r.CreatedAt); c != 0 {
			return c
		}
		if l.ID < r.ID {
			return -1
		}
		if l.ID > r.ID {
			return 1
		}
		return 0
	})
}
