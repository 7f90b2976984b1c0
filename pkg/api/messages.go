package api

type (
	// SearchMessage is the body of a search request
	SearchMessage struct {
		Intent Intent `json:"intent"`
	}

	// OnSearchMessage is the body of an on_search callback. A nil Catalog
	// means the callback carried none
	OnSearchMessage struct {
		Catalog *Catalog `json:"catalog"`
	}

	// SelectMessage is the body of a select request
	SelectMessage struct {
		Order Order `json:"order"`
	}

	// OnSelectMessage is the body of an on_select callback
	OnSelectMessage struct {
		Order *Order `json:"order"`
		Quote *Quote `json:"quote,omitempty"`
	}

	// ConfirmMessage is the body of a confirm request
	ConfirmMessage struct {
		Order Order `json:"order"`
	}

	// OnConfirmMessage is the body of an on_confirm callback
	OnConfirmMessage struct {
		Order *Order `json:"order"`
	}

	// SearchRequest starts the discovery phase
	SearchRequest struct {
		Context Context       `json:"context"`
		Message SearchMessage `json:"message"`
	}

	// OnSearchRequest completes the discovery phase
	OnSearchRequest struct {
		Context Context         `json:"context"`
		Message OnSearchMessage `json:"message"`
	}

	// SelectRequest starts the selection phase
	SelectRequest struct {
		Context Context       `json:"context"`
		Message SelectMessage `json:"message"`
	}

	// OnSelectRequest completes the selection phase
	OnSelectRequest struct {
		Context Context         `json:"context"`
		Message OnSelectMessage `json:"message"`
	}

	// ConfirmRequest starts the confirmation phase
	ConfirmRequest struct {
		Context Context        `json:"context"`
		Message ConfirmMessage `json:"message"`
	}

	// OnConfirmRequest completes the confirmation phase
	OnConfirmRequest struct {
		Context Context          `json:"context"`
		Message OnConfirmMessage `json:"message"`
	}

	// AckStatus is the receipt status returned for every protocol message
	AckStatus string

	// Ack acknowledges receipt of a message, not its outcome
	Ack struct {
		Status AckStatus `json:"status"`
	}

	// Error explains why a message was not acknowledged
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	// Response is the synchronous reply to every protocol message
	Response struct {
		Message Ack    `json:"message"`
		Error   *Error `json:"error,omitempty"`
	}

	// ErrorResponse contains error details for failed non-protocol requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Version string `json:"version,omitempty"`
	}
)

const (
	AckStatusACK  AckStatus = "ACK"
	AckStatusNACK AckStatus = "NACK"
)

const (
	ErrCodeInvalidRequest  = "invalid-request"
	ErrCodeUnknownTxn      = "unknown-transaction"
	ErrCodeUnexpected      = "unexpected-action"
	ErrCodeRateLimited     = "rate-limited"
	ErrCodeInternal        = "internal-error"
	ErrCodeAlreadyTerminal = "transaction-terminal"
)

// NewAck builds a positive acknowledgment
func NewAck() *Response {
	return &Response{Message: Ack{Status: AckStatusACK}}
}

// NewNack builds a negative acknowledgment carrying the reason
func NewNack(code, msg string) *Response {
	return &Response{
		Message: Ack{Status: AckStatusNACK},
		Error:   &Error{Code: code, Message: msg},
	}
}

// Acked reports whether the response acknowledges receipt
func (r *Response) Acked() bool {
	return r != nil && r.Message.Status == AckStatusACK
}
