package server_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/internal/server"
	"github.com/kode4food/beckn/pkg/api"
)

func TestSearchAcksThenCallsBack(t *testing.T) {
	env := newTestServerEnv(t)
	ctx := context.Background()
	_, err := env.Store.Create(ctx, "tx-1")
	require.NoError(t, err)

	w := env.post(t, "/mock-bpp/search", api.SearchRequest{
		Context: env.context(api.ActionSearch, "tx-1"),
		Message: api.SearchMessage{
			Intent: api.NewItemIntent("deploy_mobile_generator"),
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.Response](t, w).Acked())

	tx, err := env.Store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, api.TxInitiated, tx.Status)

	assert.Eventually(t, func() bool {
		tx, err := env.Store.Get(ctx, "tx-1")
		return err == nil && tx.Status == api.TxSearchCompleted
	}, 2*time.Second, 5*time.Millisecond)

	tx, err = env.Store.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, tx.Catalog.Providers, 1)
	var ids []string
	for _, it := range tx.Catalog.Providers[0].Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"gen_100kw", "gen_500kw"}, ids)
}

func TestIntakeRejects(t *testing.T) {
	env := newTestServerEnv(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "bad_json", path: "/mock-bpp/search", body: "]"},
		{
			name: "wrong_action",
			path: "/mock-bpp/select",
			body: mustJSON(t, api.SelectRequest{
				Context: env.context(api.ActionSearch, "tx-1"),
				Message: api.SelectMessage{Order: api.Order{
					Items: []api.Item{{ID: "gen_500kw"}},
				}},
			}),
		},
		{
			name: "no_items",
			path: "/mock-bpp/confirm",
			body: mustJSON(t, api.ConfirmRequest{
				Context: env.context(api.ActionConfirm, "tx-1"),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.postRaw(tt.path, []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			res := decode[api.Response](t, w)
			assert.False(t, res.Acked())
			assert.Equal(t, api.ErrCodeInvalidRequest, res.Error.Code)
		})
	}
	assert.Zero(t, env.Responder.Pending())
}

func TestCancelJobs(t *testing.T) {
	env := newTestServerEnv(t, withDelay(time.Hour))
	ctx := context.Background()
	_, err := env.Store.Create(ctx, "tx-1")
	require.NoError(t, err)

	w := env.post(t, "/mock-bpp/search", api.SearchRequest{
		Context: env.context(api.ActionSearch, "tx-1"),
		Message: api.SearchMessage{Intent: api.NewItemIntent("x")},
	})
	require.True(t, decode[api.Response](t, w).Acked())
	assert.Equal(t, 1, env.Responder.Pending())

	req := newRequest(http.MethodDelete, "/mock-bpp/jobs/tx-1")
	w = serve(env, req)
	assert.Equal(t, http.StatusOK, w.Code)
	res := decode[server.CancelResponse](t, w)
	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, api.TransactionID("tx-1"), res.TransactionID)
	assert.Zero(t, env.Responder.Pending())
}
