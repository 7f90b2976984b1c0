package api_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/beckn/pkg/api"
)

func TestNewItemIntent(t *testing.T) {
	intent := api.NewItemIntent("deploy_mobile_generator")

	var item struct {
		Descriptor api.Descriptor `json:"descriptor"`
	}
	require.NoError(t, json.Unmarshal(intent.Item, &item))
	assert.Equal(t, "deploy_mobile_generator", item.Descriptor.Name)
	assert.Nil(t, intent.Provider)
}

func TestIntentRoundTrip(t *testing.T) {
	body := `{"item":{"descriptor":{"name":"x"}},"category":{"id":"c1"}}`

	var intent api.Intent
	require.NoError(t, json.Unmarshal([]byte(body), &intent))

	out, err := json.Marshal(intent)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestFindItem(t *testing.T) {
	cat := &api.Catalog{
		Providers: []api.Provider{
			{ID: "p1", Items: []api.Item{{ID: "a"}, {ID: "b"}}},
			{ID: "p2", Items: []api.Item{{ID: "b"}}},
		},
	}

	p, it, ok := cat.FindItem("p2", "b")
	assert.True(t, ok)
	assert.Equal(t, "p2", p.ID)
	assert.Equal(t, "b", it.ID)

	_, _, ok = cat.FindItem("p2", "a")
	assert.False(t, ok)

	_, _, ok = cat.FindItem("p3", "a")
	assert.False(t, ok)
}

func TestAckResponses(t *testing.T) {
	assert.True(t, api.NewAck().Acked())

	nack := api.NewNack(api.ErrCodeUnknownTxn, "nope")
	assert.False(t, nack.Acked())
	assert.Equal(t, api.ErrCodeUnknownTxn, nack.Error.Code)

	var nilResp *api.Response
	assert.False(t, nilResp.Acked())
}

func TestTxStatusTerminal(t *testing.T) {
	assert.False(t, api.TxInitiated.IsTerminal())
	assert.False(t, api.TxSearchCompleted.IsTerminal())
	assert.False(t, api.TxSelectCompleted.IsTerminal())
	assert.True(t, api.TxConfirmCompleted.IsTerminal())
	assert.True(t, api.TxFailed.IsTerminal())
}
