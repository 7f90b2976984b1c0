// Package responder simulates a provider platform. Requests are
// acknowledged at once; the matching, quoting, or order creation happens
// later on a scheduler, and its result is posted back to the initiator as a
// separate callback
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/kode4food/beckn/internal/responder/scheduler"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Responder accepts phase-initiating requests and schedules their
	// callbacks
	Responder struct {
		config     Config
		inventory  *Inventory
		scheduler  *scheduler.Scheduler
		dispatcher *Dispatcher
		newOrderID func() string

		mu   sync.Mutex
		jobs map[string]*Job

		cancel context.CancelFunc
		runWG  sync.WaitGroup
	}

	// Config describes the simulated platform
	Config struct {
		ID           string
		URI          string
		ProviderID   string
		ProviderName string
		CatalogName  string
		SearchDelay  time.Duration
		SelectDelay  time.Duration
		ConfirmDelay time.Duration
		UnitPrice    decimal.Decimal
		Currency     string
	}

	builder func(now time.Time) any
)

const (
	DefaultProviderID   = "prov_mock_1"
	DefaultProviderName = "Mock Provider Services"
	DefaultCatalogName  = "Mock BPP Catalog"

	orderIDPrefix  = "ORD-"
	orderIDHexLen  = 8
	itemTotalTitle = "Item Total"
)

var (
	ErrWrongAction = errors.New("request action does not match endpoint")
	ErrNoItems     = errors.New("order has no items")
)

// New creates a Responder. Start must be called before jobs will run
func New(
	cfg Config, inv *Inventory, s *scheduler.Scheduler, d *Dispatcher,
) *Responder {
	if cfg.ProviderID == "" {
		cfg.ProviderID = DefaultProviderID
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = DefaultProviderName
	}
	if cfg.CatalogName == "" {
		cfg.CatalogName = DefaultCatalogName
	}
	if inv == nil {
		inv = DefaultInventory()
	}
	return &Responder{
		config:     cfg,
		inventory:  inv,
		scheduler:  s,
		dispatcher: d,
		newOrderID: newOrderID,
		jobs:       map[string]*Job{},
	}
}

// Start runs the scheduler loop and the dispatcher workers
func (r *Responder) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.dispatcher.Start()
	r.runWG.Go(func() {
		r.scheduler.Run(ctx)
	})
}

// Stop halts the scheduler, abandoning jobs that have not fired, then
// delivers the callbacks already queued
func (r *Responder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.runWG.Wait()
	r.dispatcher.Flush()

	r.mu.Lock()
	pending := r.jobs
	r.jobs = map[string]*Job{}
	r.mu.Unlock()
	for _, job := range pending {
		job.finish(ErrJobCancelled)
	}
}

// Search accepts a search and schedules the on_search callback
func (r *Responder) Search(
	ctx context.Context, req *api.SearchRequest,
) (*Job, error) {
	if err := checkContext(&req.Context, api.ActionSearch); err != nil {
		return nil, err
	}
	intent := req.Message.Intent
	return r.schedule(ctx, &req.Context, r.config.SearchDelay,
		func(now time.Time) any {
			return &api.OnSearchRequest{
				Context: *r.reply(&req.Context, now),
				Message: api.OnSearchMessage{
					Catalog: r.catalogFor(intent),
				},
			}
		},
	), nil
}

// Select accepts a select and schedules the on_select callback
func (r *Responder) Select(
	ctx context.Context, req *api.SelectRequest,
) (*Job, error) {
	if err := checkContext(&req.Context, api.ActionSelect); err != nil {
		return nil, err
	}
	if len(req.Message.Order.Items) == 0 {
		return nil, ErrNoItems
	}
	order := req.Message.Order
	return r.schedule(ctx, &req.Context, r.config.SelectDelay,
		func(now time.Time) any {
			quote := r.quoteFor(order.Items)
			res := order
			res.Quote = quote
			return &api.OnSelectRequest{
				Context: *r.reply(&req.Context, now),
				Message: api.OnSelectMessage{
					Order: &res,
					Quote: quote,
				},
			}
		},
	), nil
}

// Confirm accepts a confirm and schedules the on_confirm callback
func (r *Responder) Confirm(
	ctx context.Context, req *api.ConfirmRequest,
) (*Job, error) {
	if err := checkContext(&req.Context, api.ActionConfirm); err != nil {
		return nil, err
	}
	if len(req.Message.Order.Items) == 0 {
		return nil, ErrNoItems
	}
	order := req.Message.Order
	return r.schedule(ctx, &req.Context, r.config.ConfirmDelay,
		func(now time.Time) any {
			res := order
			if res.ID == "" {
				res.ID = r.newOrderID()
			}
			res.State = api.OrderStateCreated
			return &api.OnConfirmRequest{
				Context: *r.reply(&req.Context, now),
				Message: api.OnConfirmMessage{Order: &res},
			}
		},
	), nil
}

// Cancel drops every job of the transaction that has not started
// processing and reports how many were dropped. Callbacks already handed to
// the dispatcher are still delivered
func (r *Responder) Cancel(ctx context.Context, id api.TransactionID) int {
	r.scheduler.CancelPrefix(ctx, scheduler.Key{string(id)})

	r.mu.Lock()
	var dropped []*Job
	for key, job := range r.jobs {
		if job.TransactionID == id && !job.fired.Load() {
			dropped = append(dropped, job)
			delete(r.jobs, key)
		}
	}
	r.mu.Unlock()

	for _, job := range dropped {
		job.finish(ErrJobCancelled)
	}
	if len(dropped) > 0 {
		slog.Info("Cancelled pending jobs",
			log.TransactionID(id),
			slog.Int("count", len(dropped)))
	}
	return len(dropped)
}

// Pending reports how many jobs have not yet completed
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Keys exposes the inventory match order
func (r *Responder) Keys() []string {
	return r.inventory.Keys()
}

func (r *Responder) schedule(
	ctx context.Context, c *api.Context, delay time.Duration, build builder,
) *Job {
	at := r.scheduler.Now().Add(delay)
	job := newJob(c, at)
	target := c.CallbackURL()
	rc := *c

	r.mu.Lock()
	old := r.jobs[job.id()]
	r.jobs[job.id()] = job
	r.mu.Unlock()
	if old != nil {
		old.finish(ErrJobSuperseded)
	}

	key := scheduler.Key{
		string(c.TransactionID), string(c.Action), c.MessageID,
	}
	r.scheduler.Schedule(ctx, key, at, func() error {
		job.fired.Store(true)
		body := build(r.scheduler.Now())
		r.dispatcher.Enqueue(&Delivery{
			URL:     target,
			Context: &rc,
			Body:    body,
			done: func(err error) {
				r.forget(job)
				job.finish(err)
			},
		})
		return nil
	})

	slog.Info("Request accepted",
		log.TransactionID(c.TransactionID),
		log.MessageID(c.MessageID),
		log.Action(c.Action),
		slog.Time("process_at", at))
	return job
}

func (r *Responder) forget(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[job.id()] == job {
		delete(r.jobs, job.id())
	}
}

func (r *Responder) reply(c *api.Context, now time.Time) *api.Context {
	return c.Reply(r.config.ID, r.config.URI, now)
}

func (r *Responder) catalogFor(intent api.Intent) *api.Catalog {
	name := gjson.GetBytes(intent.Item, "descriptor.name").String()
	entry := r.inventory.Match(name)
	return &api.Catalog{
		Descriptor: api.Descriptor{Name: r.config.CatalogName},
		Providers: []api.Provider{{
			ID:         r.config.ProviderID,
			Descriptor: api.Descriptor{Name: r.config.ProviderName},
			Items:      entry.Items(r.config.Currency),
		}},
	}
}

// quoteFor charges the flat unit price for every item. It does not consult
// the catalog price of the selected item
func (r *Responder) quoteFor(items []api.Item) *api.Quote {
	total := r.config.UnitPrice.Mul(decimal.NewFromInt(int64(len(items))))
	price := api.Price{
		Currency: r.config.Currency,
		Value:    total.StringFixed(2),
	}
	return &api.Quote{
		Price: price,
		Breakup: []api.Breakup{{
			Title: itemTotalTitle,
			Price: price,
		}},
	}
}

func checkContext(c *api.Context, want api.Action) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Action != want {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongAction,
			c.Action, want)
	}
	return nil
}

func newOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return orderIDPrefix + hex[:orderIDHexLen]
}
