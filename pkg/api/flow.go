package api

type (
	// FlowStatus is the terminal outcome of an orchestrated flow
	FlowStatus string

	// FlowResult is returned by the orchestrator for every flow, successful
	// or not. Reason is only set on failure
	FlowResult struct {
		Status        FlowStatus    `json:"status"`
		Reason        string        `json:"reason,omitempty"`
		TransactionID TransactionID `json:"transaction_id"`
		ProviderID    string        `json:"provider_id,omitempty"`
		Provider      string        `json:"provider,omitempty"`
		ItemID        string        `json:"item_id,omitempty"`
		OrderID       string        `json:"order_id,omitempty"`
		OrderState    string        `json:"order_state,omitempty"`
		Quote         *Quote        `json:"quote,omitempty"`
		Details       string        `json:"details,omitempty"`
	}

	// FlowRequest asks for one end-to-end flow for a service type. Billing
	// and Fulfillment replace the configured defaults when present
	FlowRequest struct {
		ActionType  string       `json:"action_type" binding:"required"`
		Location    string       `json:"location"`
		Billing     *Billing     `json:"billing,omitempty"`
		Fulfillment *Fulfillment `json:"fulfillment,omitempty"`
	}

	// ExecutionLog records the outcome of one mitigation action's flow
	ExecutionLog struct {
		AssetID       string        `json:"asset_id"`
		ServiceType   string        `json:"service_type"`
		Provider      string        `json:"provider,omitempty"`
		Status        FlowStatus    `json:"status"`
		Reason        string        `json:"reason,omitempty"`
		TransactionID TransactionID `json:"transaction_id,omitempty"`
		OrderID       string        `json:"order_id,omitempty"`
	}

	// ExecutionRequest asks for a flow per mitigation action
	ExecutionRequest struct {
		Actions  []MitigationAction `json:"actions"`
		Location string             `json:"location"`
	}

	// ExecutionResponse lists flow outcomes in action order
	ExecutionResponse struct {
		Log []ExecutionLog `json:"log"`
	}
)

const (
	FlowConfirmed FlowStatus = "confirmed"
	FlowFailed    FlowStatus = "failed"
)

const (
	ReasonSearchRequestFailed  = "search request failed"
	ReasonSearchTimeout        = "search timeout or no providers"
	ReasonNoProviders          = "no providers returned in catalog"
	ReasonNoItems              = "no items returned in catalog"
	ReasonSelectRequestFailed  = "select request failed"
	ReasonSelectTimeout        = "select timeout"
	ReasonConfirmRequestFailed = "confirm request failed"
	ReasonConfirmTimeout       = "confirm timeout"
	ReasonCancelled            = "flow cancelled"
)

// Failed builds a failed FlowResult for the transaction
func Failed(id TransactionID, reason string) *FlowResult {
	return &FlowResult{
		Status:        FlowFailed,
		Reason:        reason,
		TransactionID: id,
	}
}
