package api

import "time"

type (
	// TxStatus is the position of a transaction in its state machine
	TxStatus string

	// Transaction is the record that correlates callbacks back to a flow.
	// Attached payloads are never mutated once set
	Transaction struct {
		ID             TransactionID `json:"transaction_id"`
		Status         TxStatus      `json:"status"`
		CreatedAt      time.Time     `json:"created_at"`
		UpdatedAt      time.Time     `json:"updated_at"`
		Catalog        *Catalog      `json:"catalog,omitempty"`
		Quote          *Quote        `json:"quote,omitempty"`
		SelectedOrder  *Order        `json:"selected_order,omitempty"`
		ConfirmedOrder *Order        `json:"confirmed_order,omitempty"`
		Error          string        `json:"error,omitempty"`
	}

	// TransactionEvent is published whenever a transaction record changes
	TransactionEvent struct {
		TransactionID TransactionID `json:"transaction_id"`
		Action        Action        `json:"action,omitempty"`
		Status        TxStatus      `json:"status"`
		Timestamp     time.Time     `json:"timestamp"`
		Error         string        `json:"error,omitempty"`
	}
)

const (
	TxInitiated        TxStatus = "INITIATED"
	TxSearchCompleted  TxStatus = "SEARCH_COMPLETED"
	TxSelectCompleted  TxStatus = "SELECT_COMPLETED"
	TxConfirmCompleted TxStatus = "CONFIRM_COMPLETED"
	TxFailed           TxStatus = "FAILED"
)

// IsTerminal reports whether no further transition may leave the status
func (s TxStatus) IsTerminal() bool {
	return s == TxConfirmCompleted || s == TxFailed
}

// Copy returns a shallow copy of the record. Payload pointers are shared,
// which is safe because payloads are immutable once attached
func (t *Transaction) Copy() *Transaction {
	res := *t
	return &res
}
