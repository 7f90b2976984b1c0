// Package store correlates asynchronous callbacks back to in-flight flows.
// Records are volatile: the memory backend lives for the process lifetime
// and the Redis backend expires records after a configured TTL
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kode4food/beckn/pkg/api"
)

type (
	// Store is the Transaction State Store. Every mutation is an atomic
	// read-modify-write of a single record
	Store interface {
		// Create writes a new record with status INITIATED
		Create(context.Context, api.TransactionID) (*api.Transaction, error)

		// Get returns a copy of the record, or ErrUnknownTransaction
		Get(context.Context, api.TransactionID) (*api.Transaction, error)

		// ApplyCallback transitions the record according to the callback
		// action and attaches the phase payload
		ApplyCallback(
			context.Context, api.TransactionID, api.Action, Payload,
		) (*api.Transaction, error)

		// Fail moves a non-terminal record to FAILED with a reason
		Fail(
			context.Context, api.TransactionID, string,
		) (*api.Transaction, error)

		// Expire fails a non-terminal record like Fail, but only if it has
		// not changed since the given update time. Otherwise it returns
		// ErrRecordChanged and leaves the record alone
		Expire(
			context.Context, api.TransactionID, string, time.Time,
		) (*api.Transaction, error)

		// List returns copies of every record, oldest first
		List(context.Context) ([]*api.Transaction, error)

		// Delete evicts a record
		Delete(context.Context, api.TransactionID) error

		// Events returns the feed of record changes
		Events() *Feed

		// Close releases the backend and closes the feed
		Close() error
	}

	// Payload carries the phase-specific data attached by a callback
	Payload struct {
		Catalog *api.Catalog
		Order   *api.Order
		Quote   *api.Quote
	}

	// Clock returns the time stamped on record changes
	Clock func() time.Time

	// Option configures a store backend
	Option func(*options)

	options struct {
		clock Clock
		feed  *Feed
	}
)

var (
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrTransactionExists  = errors.New("transaction already exists")
	ErrUnexpectedAction   = errors.New("unexpected callback action")
	ErrTerminal           = errors.New("transaction is terminal")
	ErrMissingPayload     = errors.New("callback payload missing")
	ErrEmptyTransactionID = errors.New("transaction id is empty")
	ErrRecordChanged      = errors.New("transaction changed since last seen")
)

// WithClock overrides the time source used to stamp records
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithFeed publishes record changes to an existing feed instead of a
// store-owned one
func WithFeed(feed *Feed) Option {
	return func(o *options) {
		o.feed = feed
	}
}

func makeOptions(opts []Option) options {
	res := options{clock: time.Now}
	for _, o := range opts {
		o(&res)
	}
	if res.feed == nil {
		res.feed = NewFeed()
	}
	return res
}

func newRecord(id api.TransactionID, now time.Time) *api.Transaction {
	return &api.Transaction{
		ID:        id,
		Status:    api.TxInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func eventFor(tx *api.Transaction, action api.Action) api.TransactionEvent {
	return api.TransactionEvent{
		TransactionID: tx.ID,
		Action:        action,
		Status:        tx.Status,
		Timestamp:     tx.UpdatedAt,
		Error:         tx.Error,
	}
}
