package responder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/internal/client"
	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/internal/responder/scheduler"
	"github.com/kode4food/beckn/pkg/api"
)

type (
	harness struct {
		responder *responder.Responder
		timer     *manualTimer
		bapURI    string
		callbacks chan callback
		status    atomic.Int32
	}

	callback struct {
		path string
		body []byte
	}

	manualTimer struct {
		ch     chan time.Time
		resets chan time.Duration
	}
)

const waitTimeout = time.Second

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		timer: &manualTimer{
			ch:     make(chan time.Time, 1),
			resets: make(chan time.Duration, 16),
		},
		callbacks: make(chan callback, 8),
	}
	h.status.Store(http.StatusOK)

	bap := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var raw json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&raw)
			h.callbacks <- callback{path: r.URL.Path, body: raw}
			w.WriteHeader(int(h.status.Load()))
			_ = json.NewEncoder(w).Encode(api.NewAck())
		},
	))
	t.Cleanup(bap.Close)
	h.bapURI = bap.URL + "/beckn"

	sched := scheduler.New(
		func() time.Time { return testNow },
		func(time.Duration) scheduler.Timer { return h.timer },
	)
	h.responder = responder.New(responder.Config{
		ID:           "test-bpp",
		URI:          "http://bpp.test/mock-bpp",
		SearchDelay:  2 * time.Second,
		SelectDelay:  time.Second,
		ConfirmDelay: time.Second,
		UnitPrice:    decimal.RequireFromString("150.0"),
		Currency:     "GBP",
	}, responder.DefaultInventory(), sched,
		responder.NewDispatcher(time.Second, 1),
	)
	h.responder.Start()
	t.Cleanup(h.responder.Stop)
	return h
}

func (h *harness) context(action api.Action) api.Context {
	return *api.NewContext(action, "tx-1", api.ContextDefaults{
		BAPID:  "test-bap",
		BAPURI: h.bapURI,
	})
}

func (h *harness) waitScheduled(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-h.timer.resets:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("job was not scheduled")
		return 0
	}
}

func (h *harness) fire() {
	select {
	case h.timer.ch <- testNow:
	default:
	}
}

func (h *harness) nextCallback(t *testing.T) callback {
	t.Helper()
	select {
	case cb := <-h.callbacks:
		return cb
	case <-time.After(waitTimeout):
		t.Fatal("callback was not delivered")
		return callback{}
	}
}

func waitJob(t *testing.T, job *responder.Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return job.Wait(ctx)
}

func TestSearchCallback(t *testing.T) {
	h := newHarness(t)
	req := &api.SearchRequest{
		Context: h.context(api.ActionSearch),
		Message: api.SearchMessage{
			Intent: api.NewItemIntent("deploy_mobile_generator"),
		},
	}

	job, err := h.responder.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, h.waitScheduled(t))
	assert.Equal(t, testNow.Add(2*time.Second), job.At)

	select {
	case <-h.callbacks:
		t.Fatal("callback sent before the delay elapsed")
	case <-job.Done():
		t.Fatal("job completed before the delay elapsed")
	default:
	}

	h.fire()
	cb := h.nextCallback(t)
	assert.NoError(t, waitJob(t, job))
	assert.Equal(t, "/beckn/on_search", cb.path)

	var res api.OnSearchRequest
	require.NoError(t, json.Unmarshal(cb.body, &res))
	assert.Equal(t, api.ActionOnSearch, res.Context.Action)
	assert.Equal(t, req.Context.TransactionID, res.Context.TransactionID)
	assert.Equal(t, req.Context.MessageID, res.Context.MessageID)
	assert.Equal(t, "test-bpp", res.Context.BPPID)
	assert.Equal(t, "http://bpp.test/mock-bpp", res.Context.BPPURI)

	cat := res.Message.Catalog
	require.NotNil(t, cat)
	require.Len(t, cat.Providers, 1)
	prov := cat.Providers[0]
	assert.Equal(t, responder.DefaultProviderID, prov.ID)
	assert.Equal(t, responder.DefaultProviderName, prov.Descriptor.Name)
	require.Len(t, prov.Items, 2)
	assert.Equal(t, "gen_100kw", prov.Items[0].ID)
	assert.Equal(t, "gen_500kw", prov.Items[1].ID)
	assert.Equal(t, 2, *prov.Items[1].ETA)
	assert.Equal(t, "GBP", prov.Items[0].Price.Currency)
}

func TestSearchFallback(t *testing.T) {
	h := newHarness(t)
	req := &api.SearchRequest{
		Context: h.context(api.ActionSearch),
		Message: api.SearchMessage{Intent: api.NewItemIntent("teleporter")},
	}

	_, err := h.responder.Search(context.Background(), req)
	require.NoError(t, err)
	h.waitScheduled(t)
	h.fire()

	var res api.OnSearchRequest
	require.NoError(t, json.Unmarshal(h.nextCallback(t).body, &res))
	items := res.Message.Catalog.Providers[0].Items
	require.Len(t, items, 1)
	assert.Equal(t, "generic_service", items[0].ID)
}

func TestSelectQuote(t *testing.T) {
	h := newHarness(t)
	req := &api.SelectRequest{
		Context: h.context(api.ActionSelect),
		Message: api.SelectMessage{Order: api.Order{
			Provider: &api.ProviderRef{ID: "prov_mock_1"},
			Items:    []api.Item{{ID: "gen_100kw"}, {ID: "gen_500kw"}},
		}},
	}

	job, err := h.responder.Select(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, time.Second, h.waitScheduled(t))
	h.fire()

	cb := h.nextCallback(t)
	assert.NoError(t, waitJob(t, job))
	assert.Equal(t, "/beckn/on_select", cb.path)

	var res api.OnSelectRequest
	require.NoError(t, json.Unmarshal(cb.body, &res))
	require.NotNil(t, res.Message.Quote)
	require.NotNil(t, res.Message.Order)
	assert.Equal(t, "300.00", res.Message.Quote.Price.Value)
	assert.Equal(t, "GBP", res.Message.Quote.Price.Currency)
	require.Len(t, res.Message.Quote.Breakup, 1)
	assert.Equal(t, "Item Total", res.Message.Quote.Breakup[0].Title)
	assert.Equal(t, res.Message.Quote, res.Message.Order.Quote)
	assert.Len(t, res.Message.Order.Items, 2)
	assert.Equal(t, "prov_mock_1", res.Message.Order.Provider.ID)
}

func TestConfirmAssignsOrderID(t *testing.T) {
	h := newHarness(t)
	req := &api.ConfirmRequest{
		Context: h.context(api.ActionConfirm),
		Message: api.ConfirmMessage{Order: api.Order{
			Items:   []api.Item{{ID: "gen_500kw"}},
			Billing: &api.Billing{Name: "Grid Ops"},
		}},
	}

	job, err := h.responder.Confirm(context.Background(), req)
	require.NoError(t, err)
	h.waitScheduled(t)
	h.fire()

	cb := h.nextCallback(t)
	assert.NoError(t, waitJob(t, job))
	assert.Equal(t, "/beckn/on_confirm", cb.path)

	var res api.OnConfirmRequest
	require.NoError(t, json.Unmarshal(cb.body, &res))
	order := res.Message.Order
	require.NotNil(t, order)
	assert.Regexp(t, `^ORD-[0-9a-f]{8}$`, order.ID)
	assert.Equal(t, api.OrderStateCreated, order.State)
	assert.Equal(t, "Grid Ops", order.Billing.Name)
}

func TestConfirmKeepsExistingOrderID(t *testing.T) {
	h := newHarness(t)
	req := &api.ConfirmRequest{
		Context: h.context(api.ActionConfirm),
		Message: api.ConfirmMessage{Order: api.Order{
			ID:    "ORD-fixed",
			Items: []api.Item{{ID: "gen_500kw"}},
		}},
	}

	_, err := h.responder.Confirm(context.Background(), req)
	require.NoError(t, err)
	h.waitScheduled(t)
	h.fire()

	var res api.OnConfirmRequest
	require.NoError(t, json.Unmarshal(h.nextCallback(t).body, &res))
	assert.Equal(t, "ORD-fixed", res.Message.Order.ID)
}

func TestCancelPendingJobs(t *testing.T) {
	h := newHarness(t)
	req := &api.SearchRequest{
		Context: h.context(api.ActionSearch),
		Message: api.SearchMessage{Intent: api.NewItemIntent("x")},
	}

	job, err := h.responder.Search(context.Background(), req)
	require.NoError(t, err)
	h.waitScheduled(t)
	assert.Equal(t, 1, h.responder.Pending())

	assert.Equal(t, 1, h.responder.Cancel(context.Background(), "tx-1"))
	assert.ErrorIs(t, waitJob(t, job), responder.ErrJobCancelled)
	assert.Equal(t, 0, h.responder.Pending())

	h.fire()
	select {
	case <-h.callbacks:
		t.Fatal("cancelled job delivered a callback")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, h.responder.Cancel(context.Background(), "tx-1"))
}

func TestCallbackFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.status.Store(http.StatusInternalServerError)
	req := &api.SearchRequest{
		Context: h.context(api.ActionSearch),
		Message: api.SearchMessage{Intent: api.NewItemIntent("x")},
	}

	job, err := h.responder.Search(context.Background(), req)
	require.NoError(t, err)
	h.waitScheduled(t)
	h.fire()

	h.nextCallback(t)
	assert.ErrorIs(t, waitJob(t, job), client.ErrHTTPStatus)
	assert.Equal(t, 0, h.responder.Pending())
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wrong := &api.SearchRequest{Context: h.context(api.ActionSelect)}
	_, err := h.responder.Search(ctx, wrong)
	assert.ErrorIs(t, err, responder.ErrWrongAction)

	missing := &api.SearchRequest{Context: h.context(api.ActionSearch)}
	missing.Context.TransactionID = ""
	_, err = h.responder.Search(ctx, missing)
	assert.ErrorIs(t, err, api.ErrMissingTransactionID)

	empty := &api.SelectRequest{Context: h.context(api.ActionSelect)}
	_, err = h.responder.Select(ctx, empty)
	assert.ErrorIs(t, err, responder.ErrNoItems)

	noItems := &api.ConfirmRequest{Context: h.context(api.ActionConfirm)}
	_, err = h.responder.Confirm(ctx, noItems)
	assert.ErrorIs(t, err, responder.ErrNoItems)

	assert.Equal(t, 0, h.responder.Pending())
}

func (t *manualTimer) Channel() <-chan time.Time {
	return t.ch
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.drain()
	t.resets <- d
	return true
}

func (t *manualTimer) Stop() bool {
	t.drain()
	return true
}

func (t *manualTimer) drain() {
	select {
	case <-t.ch:
	default:
	}
}
