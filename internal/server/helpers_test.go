package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/internal/client"
	"github.com/kode4food/beckn/internal/metrics"
	"github.com/kode4food/beckn/internal/orchestrator"
	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/internal/responder/scheduler"
	"github.com/kode4food/beckn/internal/server"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
)

type testServerEnv struct {
	Server       *server.Server
	Router       *gin.Engine
	HTTP         *httptest.Server
	Store        *store.Memory
	Responder    *responder.Responder
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Metrics
	Defaults     api.ContextDefaults
}

type envOption func(*envConfig)

type envConfig struct {
	opts  []server.Option
	delay time.Duration
}

const testDelay = 20 * time.Millisecond

func init() {
	gin.SetMode(gin.TestMode)
}

func withServerOptions(opts ...server.Option) envOption {
	return func(c *envConfig) {
		c.opts = append(c.opts, opts...)
	}
}

func withDelay(d time.Duration) envOption {
	return func(c *envConfig) {
		c.delay = d
	}
}

// newTestServerEnv runs both roles behind one listener, the way the
// service is deployed
func newTestServerEnv(t *testing.T, opts ...envOption) *testServerEnv {
	t.Helper()
	cfg := &envConfig{delay: testDelay}
	for _, opt := range opts {
		opt(cfg)
	}

	env := &testServerEnv{
		Store:   store.NewMemory(),
		Metrics: metrics.New(),
	}
	env.HTTP = httptest.NewUnstartedServer(nil)
	baseURL := "http://" + env.HTTP.Listener.Addr().String()

	env.Defaults = api.ContextDefaults{
		BAPID:  "test-bap",
		BAPURI: baseURL + "/beckn",
	}
	bppURI := baseURL + "/mock-bpp"

	dispatcher := responder.NewDispatcher(time.Second, 2)
	dispatcher.Observe(env.Metrics.Delivered)
	env.Responder = responder.New(responder.Config{
		ID:           "test-bpp",
		URI:          bppURI,
		SearchDelay:  cfg.delay,
		SelectDelay:  cfg.delay,
		ConfirmDelay: cfg.delay,
		UnitPrice:    decimal.RequireFromString("150.0"),
		Currency:     "GBP",
	}, responder.DefaultInventory(), scheduler.NewSystem(), dispatcher)

	cl := client.NewHTTPClient(client.Config{
		Context: env.Defaults,
		BPPURI:  bppURI,
		Timeout: time.Second,
	}, env.Store)
	env.Orchestrator = orchestrator.New(cl, env.Store, orchestrator.Config{
		PollInterval: 10 * time.Millisecond,
		PhaseTimeout: 2 * time.Second,
		Billing:      api.Billing{Name: "Test Payer"},
		Fulfillment:  api.Fulfillment{ID: "ful_1"},
	}, orchestrator.WithObserver(env.Metrics))

	serverOpts := append([]server.Option{
		server.WithMetrics(env.Metrics),
		server.WithVersion("test"),
	}, cfg.opts...)
	env.Server = server.NewServer(
		env.Store, env.Responder, env.Orchestrator, serverOpts...,
	)
	env.Router = env.Server.SetupRoutes()
	env.HTTP.Config.Handler = env.Router
	env.HTTP.Start()

	env.Responder.Start()
	t.Cleanup(func() {
		env.Server.CloseWebSockets()
		env.Responder.Stop()
		env.HTTP.Close()
		_ = env.Store.Close()
	})
	return env
}

func (e *testServerEnv) context(
	action api.Action, id api.TransactionID,
) api.Context {
	return *api.NewContext(action, id, e.Defaults)
}

func (e *testServerEnv) post(
	t *testing.T, path string, body any,
) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return e.postRaw(path, data)
}

func (e *testServerEnv) postRaw(
	path string, data []byte,
) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func (e *testServerEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *T {
	t.Helper()
	var res T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return &res
}

func testCatalog() *api.Catalog {
	return &api.Catalog{
		Descriptor: api.Descriptor{Name: "Catalog"},
		Providers: []api.Provider{{
			ID:    "prov_1",
			Items: []api.Item{{ID: "gen_500kw"}},
		}},
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testServerEnv, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
