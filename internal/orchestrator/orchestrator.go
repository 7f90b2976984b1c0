// Package orchestrator drives a transaction through search, select, and
// confirm. Each phase sends its request, then polls the state store until
// the matching callback has been applied or the phase times out
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kode4food/beckn/internal/client"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Orchestrator runs end-to-end flows. It never returns an error; every
	// outcome is a FlowResult
	Orchestrator struct {
		client   client.Client
		store    store.Store
		config   Config
		selector Selector
		observer Observer
	}

	// Config bounds the wait for each phase and supplies confirm defaults
	Config struct {
		PollInterval     time.Duration
		PhaseTimeout     time.Duration
		MaxParallelFlows int
		Billing          api.Billing
		Fulfillment      api.Fulfillment
	}

	// Observer is told about phase and flow completions
	Observer interface {
		PhaseCompleted(phase api.Action, elapsed time.Duration)
		FlowCompleted(*api.FlowResult)
	}

	// Option configures an Orchestrator
	Option func(*Orchestrator)

	phase struct {
		action     api.Action
		want       api.TxStatus
		sendFailed string
		timedOut   string
	}

	noopObserver struct{}
)

const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultPhaseTimeout     = 10 * time.Second
	DefaultMaxParallelFlows = 4
)

var (
	searchPhase = phase{
		action:     api.ActionSearch,
		want:       api.TxSearchCompleted,
		sendFailed: api.ReasonSearchRequestFailed,
		timedOut:   api.ReasonSearchTimeout,
	}
	selectPhase = phase{
		action:     api.ActionSelect,
		want:       api.TxSelectCompleted,
		sendFailed: api.ReasonSelectRequestFailed,
		timedOut:   api.ReasonSelectTimeout,
	}
	confirmPhase = phase{
		action:     api.ActionConfirm,
		want:       api.TxConfirmCompleted,
		sendFailed: api.ReasonConfirmRequestFailed,
		timedOut:   api.ReasonConfirmTimeout,
	}
)

// WithSelector replaces the minimum-ETA selection strategy
func WithSelector(s Selector) Option {
	return func(o *Orchestrator) {
		o.selector = s
	}
}

// WithObserver registers an observer of phase and flow completions
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// New creates an Orchestrator
func New(
	cl client.Client, st store.Store, cfg Config, opts ...Option,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = DefaultPhaseTimeout
	}
	if cfg.MaxParallelFlows <= 0 {
		cfg.MaxParallelFlows = DefaultMaxParallelFlows
	}
	o := &Orchestrator{
		client:   cl,
		store:    st,
		config:   cfg,
		selector: SelectMinETA,
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one flow for the service type at location using the
// configured billing and fulfillment
func (o *Orchestrator) Execute(
	ctx context.Context, actionType, location string,
) *api.FlowResult {
	return o.ExecuteFlow(ctx, &api.FlowRequest{
		ActionType: actionType,
		Location:   location,
	})
}

// ExecuteFlow runs one flow. A timed-out phase leaves the transaction
// record where it was; late callbacks may still advance it
func (o *Orchestrator) ExecuteFlow(
	ctx context.Context, req *api.FlowRequest,
) *api.FlowResult {
	res := o.run(ctx, api.NewTransactionID(), req)
	o.observer.FlowCompleted(res)

	attrs := []any{
		log.TransactionID(res.TransactionID),
		slog.String("action_type", req.ActionType),
		slog.String("location", req.Location),
		log.Status(res.Status),
	}
	if res.Status == api.FlowFailed {
		slog.Warn("Flow failed",
			append(attrs, slog.String("reason", res.Reason))...)
	} else {
		slog.Info("Flow confirmed",
			append(attrs, slog.String("order_id", res.OrderID))...)
	}
	return res
}

// ExecutePlan runs one flow per mitigation action, at most MaxParallelFlows
// at a time, and returns the log in action order
func (o *Orchestrator) ExecutePlan(
	ctx context.Context, actions []api.MitigationAction, location string,
) []api.ExecutionLog {
	logs := make([]api.ExecutionLog, len(actions))
	var g errgroup.Group
	g.SetLimit(o.config.MaxParallelFlows)
	for i, action := range actions {
		g.Go(func() error {
			res := o.Execute(ctx, action.ActionType, location)
			logs[i] = api.ExecutionLog{
				AssetID:       action.AssetID,
				ServiceType:   action.ActionType,
				Provider:      res.Provider,
				Status:        res.Status,
				Reason:        res.Reason,
				TransactionID: res.TransactionID,
				OrderID:       res.OrderID,
			}
			return nil
		})
	}
	_ = g.Wait()
	return logs
}

func (o *Orchestrator) run(
	ctx context.Context, id api.TransactionID, req *api.FlowRequest,
) *api.FlowResult {
	slog.Info("Flow started",
		log.TransactionID(id),
		slog.String("action_type", req.ActionType),
		slog.String("location", req.Location))

	tx, reason := o.phase(ctx, id, searchPhase, func() bool {
		return o.client.TriggerSearch(ctx, req.ActionType, id)
	})
	if reason != "" {
		return api.Failed(id, reason)
	}

	if tx.Catalog == nil || len(tx.Catalog.Providers) == 0 {
		return api.Failed(id, api.ReasonNoProviders)
	}
	prov, item, ok := o.selector(tx.Catalog)
	if !ok {
		return api.Failed(id, api.ReasonNoItems)
	}

	tx, reason = o.phase(ctx, id, selectPhase, func() bool {
		return o.client.TriggerSelect(ctx, id, prov.ID, item.ID)
	})
	if reason != "" {
		return api.Failed(id, reason)
	}
	quote := tx.Quote

	details := client.ConfirmDetails{
		ProviderID:  prov.ID,
		Billing:     o.config.Billing,
		Fulfillment: o.config.Fulfillment,
	}
	if req.Billing != nil {
		details.Billing = *req.Billing
	}
	if req.Fulfillment != nil {
		details.Fulfillment = *req.Fulfillment
	}
	tx, reason = o.phase(ctx, id, confirmPhase, func() bool {
		return o.client.TriggerConfirm(ctx, id, item.ID, details)
	})
	if reason != "" {
		return api.Failed(id, reason)
	}

	res := &api.FlowResult{
		Status:        api.FlowConfirmed,
		TransactionID: id,
		ProviderID:    prov.ID,
		Provider:      prov.Descriptor.Name,
		ItemID:        item.ID,
		Quote:         quote,
	}
	if order := tx.ConfirmedOrder; order != nil {
		res.OrderID = order.ID
		res.OrderState = order.State
		res.Details = fmt.Sprintf("Order ID: %s, State: %s",
			order.ID, order.State)
	}
	return res
}

// phase sends a request and waits for its callback. It returns the record
// as of the callback, or a failure reason
func (o *Orchestrator) phase(
	ctx context.Context, id api.TransactionID, p phase, send func() bool,
) (*api.Transaction, string) {
	if ctx.Err() != nil {
		return nil, api.ReasonCancelled
	}
	start := time.Now()
	if !send() {
		return nil, p.sendFailed
	}
	tx, reason := o.await(ctx, id, p)
	if reason == "" {
		o.observer.PhaseCompleted(p.action, time.Since(start))
	} else {
		slog.Warn("Phase did not complete",
			log.TransactionID(id),
			log.Action(p.action),
			slog.String("reason", reason))
	}
	return tx, reason
}

func (o *Orchestrator) await(
	ctx context.Context, id api.TransactionID, p phase,
) (*api.Transaction, string) {
	deadline := time.NewTimer(o.config.PhaseTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		tx, err := o.store.Get(ctx, id)
		if err == nil {
			if tx.Status == p.want {
				return tx, ""
			}
			if tx.Status.IsTerminal() {
				return nil, p.timedOut
			}
		}

		select {
		case <-ctx.Done():
			return nil, api.ReasonCancelled
		case <-deadline.C:
			return nil, p.timedOut
		case <-ticker.C:
		}
	}
}

func (noopObserver) PhaseCompleted(api.Action, time.Duration) {}
func (noopObserver) FlowCompleted(*api.FlowResult)            {}
