package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/internal/metrics"
	"github.com/kode4food/beckn/internal/orchestrator"
	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
)

var (
	_ orchestrator.Observer      = (*metrics.Metrics)(nil)
	_ responder.DeliveryObserver = (*metrics.Metrics)(nil).Delivered
)

func TestFlowCompleted(t *testing.T) {
	m := metrics.New()
	m.FlowCompleted(&api.FlowResult{Status: api.FlowConfirmed})
	m.FlowCompleted(&api.FlowResult{Status: api.FlowConfirmed})
	m.FlowCompleted(api.Failed("x", api.ReasonSelectTimeout))

	expected := `
# HELP beckn_flows_total Orchestrated flows by outcome
# TYPE beckn_flows_total counter
beckn_flows_total{reason="",status="confirmed"} 2
beckn_flows_total{reason="select timeout",status="failed"} 1
`
	err := testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(expected), "beckn_flows_total",
	)
	assert.NoError(t, err)
}

func TestPhaseCompleted(t *testing.T) {
	m := metrics.New()
	m.PhaseCompleted(api.ActionSearch, 2*time.Second)
	m.PhaseCompleted(api.ActionSearch, time.Second)
	m.PhaseCompleted(api.ActionConfirm, time.Second)

	count, err := testutil.GatherAndCount(m.Registry(),
		"beckn_phase_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCallbackAndDelivery(t *testing.T) {
	m := metrics.New()
	m.Callback(api.ActionOnSearch, metrics.OutcomeApplied)
	m.Callback(api.ActionOnSearch, metrics.OutcomeRejected)
	m.Callback(api.ActionOnSearch, metrics.OutcomeApplied)
	m.Delivered(api.ActionOnSelect, nil)
	m.Delivered(api.ActionOnSelect, errors.New("refused"))

	expected := `
# HELP beckn_callbacks_total Callbacks received by the initiator
# TYPE beckn_callbacks_total counter
beckn_callbacks_total{action="on_search",outcome="applied"} 2
beckn_callbacks_total{action="on_search",outcome="rejected"} 1
# HELP beckn_callback_deliveries_total Callbacks sent by the responder
# TYPE beckn_callback_deliveries_total counter
beckn_callback_deliveries_total{action="on_select",result="failed"} 1
beckn_callback_deliveries_total{action="on_select",result="ok"} 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"beckn_callbacks_total", "beckn_callback_deliveries_total",
	)
	assert.NoError(t, err)
}

func TestWatch(t *testing.T) {
	m := metrics.New()
	st := store.NewMemory()
	defer func() { _ = st.Close() }()

	m.Watch(st.Events())
	defer m.Stop()

	// each change is counted before the next one is made, so the watcher
	// is idle whenever the feed publishes and when Stop closes it
	ctx := context.Background()
	_, err := st.Create(ctx, "a")
	require.NoError(t, err)
	awaitChanges(t, m, 1)
	_, err = st.Create(ctx, "b")
	require.NoError(t, err)
	awaitChanges(t, m, 2)
	_, err = st.Fail(ctx, "b", "gone")
	require.NoError(t, err)
	awaitChanges(t, m, 3)

	count, err := testutil.GatherAndCount(m.Registry(),
		"beckn_transaction_changes_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.Callback(api.ActionOnConfirm, metrics.OutcomeInvalid)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body),
		`beckn_callbacks_total{action="on_confirm",outcome="invalid"} 1`,
	)
	assert.Contains(t, string(body), "go_goroutines")
}

func awaitChanges(t *testing.T, m *metrics.Metrics, want float64) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return changes(m) == want
	}, time.Second, 5*time.Millisecond)
}

func changes(m *metrics.Metrics) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != "beckn_transaction_changes_total" {
			continue
		}
		for _, c := range mf.GetMetric() {
			total += c.GetCounter().GetValue()
		}
	}
	return total
}
