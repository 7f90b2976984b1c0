// Package housekeeping keeps the transaction store bounded. Records that
// stop advancing are failed, and finished records are archived and evicted
package housekeeping

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Sweeper periodically walks the store
	Sweeper struct {
		store   store.Store
		archive *Archive
		config  Config
		now     func() time.Time
		ctx     context.Context
		cancel  context.CancelFunc
		wg      sync.WaitGroup
	}

	// Config sets the sweep cadence and age limits. A zero limit disables
	// that part of the sweep
	Config struct {
		Interval     time.Duration
		Retention    time.Duration
		AbandonAfter time.Duration
	}

	// Option configures a Sweeper
	Option func(*Sweeper)

	// Result counts what one sweep did
	Result struct {
		Failed   int
		Archived int
		Evicted  int
	}
)

// ReasonAbandoned is recorded on records that stopped advancing
const ReasonAbandoned = "phase timeout"

// WithArchive keeps a copy of every evicted record
func WithArchive(a *Archive) Option {
	return func(s *Sweeper) {
		s.archive = a
	}
}

// WithClock overrides the time source used to age records
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a Sweeper. It does nothing until Start is called
func NewSweeper(st store.Store, cfg Config, opts ...Option) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		store:  st,
		config: cfg,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins sweeping on the configured interval
func (s *Sweeper) Start() {
	s.wg.Go(s.run)
}

// Stop halts the sweep loop and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(s.ctx)
			if err != nil {
				slog.Warn("Sweep failed", log.Error(err))
				continue
			}
			if res != (Result{}) {
				slog.Info("Sweep completed",
					slog.Int("failed", res.Failed),
					slog.Int("archived", res.Archived),
					slog.Int("evicted", res.Evicted))
			}
		}
	}
}

// Sweep runs one pass over the store
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	txs, err := s.store.List(ctx)
	if err != nil {
		return res, err
	}

	now := s.now()
	for _, tx := range txs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		idle := now.Sub(tx.UpdatedAt)
		if !tx.Status.IsTerminal() {
			if s.config.AbandonAfter > 0 && idle > s.config.AbandonAfter {
				if s.abandon(ctx, tx) {
					res.Failed++
				}
			}
			continue
		}
		if s.config.Retention <= 0 || idle <= s.config.Retention {
			continue
		}
		archived, ok := s.evict(ctx, tx)
		if archived {
			res.Archived++
		}
		if ok {
			res.Evicted++
		}
	}
	return res, nil
}

func (s *Sweeper) abandon(ctx context.Context, tx *api.Transaction) bool {
	_, err := s.store.Expire(ctx, tx.ID, ReasonAbandoned, tx.UpdatedAt)
	switch {
	case err == nil:
		slog.Info("Transaction abandoned",
			log.TransactionID(tx.ID),
			log.Status(tx.Status))
		return true
	case errors.Is(err, store.ErrTerminal),
		errors.Is(err, store.ErrRecordChanged),
		errors.Is(err, store.ErrUnknownTransaction):
		// a late callback or another sweeper got there first
		return false
	default:
		slog.Warn("Failed to abandon transaction",
			log.TransactionID(tx.ID),
			log.Error(err))
		return false
	}
}

func (s *Sweeper) evict(
	ctx context.Context, tx *api.Transaction,
) (archived, evicted bool) {
	if s.archive != nil {
		if err := s.archive.Put(ctx, tx); err != nil {
			slog.Warn("Failed to archive transaction",
				log.TransactionID(tx.ID),
				log.Error(err))
			return false, false
		}
		archived = true
	}
	if err := s.store.Delete(ctx, tx.ID); err != nil {
		slog.Warn("Failed to evict transaction",
			log.TransactionID(tx.ID),
			log.Error(err))
		return archived, false
	}
	return archived, true
}
