package server_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/internal/server"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
)

const wsReadTimeout = 500 * time.Millisecond

func dialWebSocket(t *testing.T, env *testServerEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.HTTP.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribe(
	t *testing.T, conn *websocket.Conn, sub api.ClientSubscription,
) *api.SubscribedResult {
	t.Helper()
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type: api.MessageSubscribe,
		Data: sub,
	}))
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var res api.SubscribedResult
	require.NoError(t, conn.ReadJSON(&res))
	assert.Equal(t, api.MessageSubscribed, res.Type)
	return &res
}

func TestSocketSilentUntilSubscribed(t *testing.T) {
	env := newTestServerEnv(t)
	conn := dialWebSocket(t, env)

	_, err := env.Store.Create(context.Background(), "tx-1")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestSocketStreamsSubscribedTransaction(t *testing.T) {
	env := newTestServerEnv(t)
	ctx := context.Background()
	_, err := env.Store.Create(ctx, "tx-1")
	require.NoError(t, err)
	_, err = env.Store.Create(ctx, "tx-2")
	require.NoError(t, err)
	_, err = env.Store.Fail(ctx, "tx-2", "ignored")
	require.NoError(t, err)

	conn := dialWebSocket(t, env)
	res := subscribe(t, conn, api.ClientSubscription{
		TransactionIDs: []api.TransactionID{"tx-1", "missing"},
	})
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, api.TransactionID("tx-1"), res.Transactions[0].ID)
	assert.Equal(t, api.TxInitiated, res.Transactions[0].Status)

	// one change while connected: the client has consumed it by the time
	// the connection closes and its feed consumer is released
	_, err = env.Store.ApplyCallback(ctx, "tx-1", api.ActionOnSearch,
		store.Payload{Catalog: &api.Catalog{}})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var ev api.WebSocketEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, api.MessageTransaction, ev.Type)
	assert.Equal(t, api.TransactionID("tx-1"), ev.Data.TransactionID)
	assert.Equal(t, api.ActionOnSearch, ev.Data.Action)
	assert.Equal(t, api.TxSearchCompleted, ev.Data.Status)
}

func TestSocketInvalidMessage(t *testing.T) {
	env := newTestServerEnv(t)
	conn := dialWebSocket(t, env)

	require.NoError(t,
		conn.WriteMessage(websocket.TextMessage, []byte("not json")),
	)
	res := subscribe(t, conn, api.ClientSubscription{All: true})
	assert.Empty(t, res.Transactions)

	_, err := env.Store.Create(context.Background(), "tx-9")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var ev api.WebSocketEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, api.TransactionID("tx-9"), ev.Data.TransactionID)
}

func TestSocketClosedByServer(t *testing.T) {
	env := newTestServerEnv(t)
	conn := dialWebSocket(t, env)
	subscribe(t, conn, api.ClientSubscription{All: true})

	env.Server.CloseWebSockets()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestBuildFilter(t *testing.T) {
	ev := &api.TransactionEvent{
		TransactionID: "tx-1",
		Status:        api.TxFailed,
	}

	tests := []struct {
		name string
		sub  api.ClientSubscription
		want bool
	}{
		{name: "empty", want: false},
		{name: "all", sub: api.ClientSubscription{All: true}, want: true},
		{
			name: "id",
			sub: api.ClientSubscription{
				TransactionIDs: []api.TransactionID{"tx-1"},
			},
			want: true,
		},
		{
			name: "other_id",
			sub: api.ClientSubscription{
				TransactionIDs: []api.TransactionID{"tx-2"},
			},
			want: false,
		},
		{
			name: "status",
			sub: api.ClientSubscription{
				All:      true,
				Statuses: []api.TxStatus{api.TxFailed},
			},
			want: true,
		},
		{
			name: "id_and_other_status",
			sub: api.ClientSubscription{
				TransactionIDs: []api.TransactionID{"tx-1"},
				Statuses:       []api.TxStatus{api.TxConfirmCompleted},
			},
			want: false,
		},
		{
			name: "status_only",
			sub: api.ClientSubscription{
				Statuses: []api.TxStatus{api.TxFailed},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, server.BuildFilter(&tt.sub)(ev))
		})
	}
}

func TestUpgradeRequired(t *testing.T) {
	env := newTestServerEnv(t)
	w := env.get("/ws")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
