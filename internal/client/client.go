// Package client sends phase-initiating requests to a provider platform on
// behalf of a flow. It reports whether a send was acknowledged, never the
// eventual outcome, which arrives later as a callback
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Client initiates the three protocol phases
	Client interface {
		TriggerSearch(context.Context, string, api.TransactionID) bool
		TriggerSelect(
			ctx context.Context, id api.TransactionID,
			providerID, itemID string,
		) bool
		TriggerConfirm(
			ctx context.Context, id api.TransactionID, itemID string,
			details ConfirmDetails,
		) bool
	}

	// ConfirmDetails carries the caller-supplied parts of a confirm order
	ConfirmDetails struct {
		ProviderID  string
		Billing     api.Billing
		Fulfillment api.Fulfillment
	}

	// Config identifies the initiator and the responder it talks to
	Config struct {
		Context api.ContextDefaults
		BPPURI  string
		Timeout time.Duration
	}

	// HTTPClient is a Client that posts JSON to {bpp_uri}/{action}
	HTTPClient struct {
		httpClient *http.Client
		store      store.Store
		config     Config
	}
)

const userAgent = "Beckn-BAP/1.0"

var (
	ErrHTTPStatus  = errors.New("peer returned HTTP error")
	ErrNacked      = errors.New("peer did not acknowledge message")
	ErrBadResponse = errors.New("peer returned an unreadable response")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client that records new transactions in st
func NewHTTPClient(cfg Config, st store.Store) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		store:      st,
		config:     cfg,
	}
}

// TriggerSearch records the transaction as INITIATED and sends a search for
// items named query. The record is written before the send so a fast
// callback always finds it
func (c *HTTPClient) TriggerSearch(
	ctx context.Context, query string, id api.TransactionID,
) bool {
	if _, err := c.store.Create(ctx, id); err != nil {
		slog.Error("Failed to create transaction record",
			log.TransactionID(id),
			log.Error(err))
		return false
	}

	req := &api.SearchRequest{
		Context: *c.newContext(api.ActionSearch, id),
		Message: api.SearchMessage{Intent: api.NewItemIntent(query)},
	}
	return c.send(ctx, &req.Context, req)
}

// TriggerSelect sends a select for a single item. Provider and item details
// are the caller's to supply
func (c *HTTPClient) TriggerSelect(
	ctx context.Context, id api.TransactionID, providerID, itemID string,
) bool {
	order := api.Order{
		Items: []api.Item{{
			ID:         itemID,
			Descriptor: api.Descriptor{Name: "Selected Item"},
		}},
	}
	if providerID != "" {
		order.Provider = &api.ProviderRef{ID: providerID}
	}
	req := &api.SelectRequest{
		Context: *c.newContext(api.ActionSelect, id),
		Message: api.SelectMessage{Order: order},
	}
	return c.send(ctx, &req.Context, req)
}

// TriggerConfirm sends a confirm for the item with the supplied billing and
// fulfillment blocks
func (c *HTTPClient) TriggerConfirm(
	ctx context.Context, id api.TransactionID, itemID string,
	details ConfirmDetails,
) bool {
	billing := details.Billing
	fulfillment := details.Fulfillment
	order := api.Order{
		Items: []api.Item{{
			ID:         itemID,
			Descriptor: api.Descriptor{Name: "Confirmed Item"},
		}},
		Billing:     &billing,
		Fulfillment: &fulfillment,
	}
	if details.ProviderID != "" {
		order.Provider = &api.ProviderRef{ID: details.ProviderID}
	}
	req := &api.ConfirmRequest{
		Context: *c.newContext(api.ActionConfirm, id),
		Message: api.ConfirmMessage{Order: order},
	}
	return c.send(ctx, &req.Context, req)
}

func (c *HTTPClient) newContext(
	action api.Action, id api.TransactionID,
) *api.Context {
	return api.NewContext(action, id, c.config.Context)
}

func (c *HTTPClient) send(
	ctx context.Context, pc *api.Context, body any,
) bool {
	url := api.JoinURL(c.config.BPPURI, string(pc.Action))
	start := time.Now()
	_, err := PostJSON(ctx, c.httpClient, url, body)
	if err != nil {
		slog.Error("Request not acknowledged",
			log.TransactionID(pc.TransactionID),
			log.MessageID(pc.MessageID),
			log.Action(pc.Action),
			log.URL(url),
			slog.Duration("duration", time.Since(start)),
			log.Error(err))
		return false
	}
	slog.Info("Request acknowledged",
		log.TransactionID(pc.TransactionID),
		log.MessageID(pc.MessageID),
		log.Action(pc.Action),
		slog.Duration("duration", time.Since(start)))
	return true
}

// PostJSON sends body to url and decodes the protocol acknowledgment. It
// returns an error unless the peer replied HTTP 200 with an ACK
func PostJSON(
	ctx context.Context, hc *http.Client, url string, body any,
) (*api.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewBuffer(data),
	)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var res api.Response
	decodeErr := json.Unmarshal(respBody, &res)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && res.Error != nil {
			return &res, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPStatus,
				resp.StatusCode, res.Error.Message)
		}
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, decodeErr)
	}
	if !res.Acked() {
		if res.Error != nil {
			return &res, fmt.Errorf("%w: %s: %s", ErrNacked,
				res.Error.Code, res.Error.Message)
		}
		return &res, ErrNacked
	}
	return &res, nil
}
