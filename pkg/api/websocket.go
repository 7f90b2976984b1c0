package api

type (
	// SubscribeRequest is sent by clients to choose which transaction
	// events they receive
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription filters the event stream. An empty subscription
	// matches nothing; All matches every transaction
	ClientSubscription struct {
		TransactionIDs []TransactionID `json:"transaction_ids,omitempty"`
		Statuses       []TxStatus      `json:"statuses,omitempty"`
		All            bool            `json:"all,omitempty"`
	}

	// SubscribedResult carries the current records of the subscribed
	// transactions that exist
	SubscribedResult struct {
		Type         string         `json:"type"`
		Transactions []*Transaction `json:"transactions"`
	}

	// WebSocketEvent wraps a record change sent to WebSocket clients
	WebSocketEvent struct {
		Type      string           `json:"type"`
		Data      TransactionEvent `json:"data"`
		Timestamp int64            `json:"timestamp"`
	}
)

const (
	MessageSubscribe   = "subscribe"
	MessageSubscribed  = "subscribed"
	MessageTransaction = "transaction_event"
)
