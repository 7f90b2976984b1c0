package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// TransactionID identifies one end-to-end three-phase negotiation
	TransactionID string

	// Context is the metadata attached to every protocol message
	Context struct {
		Domain        string        `json:"domain" binding:"required"`
		Country       string        `json:"country,omitempty"`
		City          string        `json:"city,omitempty"`
		Action        Action        `json:"action" binding:"required"`
		CoreVersion   string        `json:"core_version,omitempty"`
		BAPID         string        `json:"bap_id" binding:"required"`
		BAPURI        string        `json:"bap_uri" binding:"required"`
		BPPID         string        `json:"bpp_id,omitempty"`
		BPPURI        string        `json:"bpp_uri,omitempty"`
		TransactionID TransactionID `json:"transaction_id" binding:"required"`
		MessageID     string        `json:"message_id" binding:"required"`
		Timestamp     string        `json:"timestamp" binding:"required"`
		TTL           string        `json:"ttl,omitempty"`
	}

	// ContextDefaults carries the initiator identity and the per-deployment
	// values stamped into every new Context
	ContextDefaults struct {
		Domain      string
		Country     string
		City        string
		CoreVersion string
		TTL         string
		BAPID       string
		BAPURI      string
	}
)

const (
	DefaultDomain      = "energy-grid"
	DefaultCountry     = "GB"
	DefaultCity        = "std:020"
	DefaultCoreVersion = "0.9.3"
	DefaultTTL         = "PT30S"
)

var (
	ErrMissingTransactionID = errors.New("context has no transaction_id")
	ErrMissingMessageID     = errors.New("context has no message_id")
	ErrMissingInitiator     = errors.New("context has no bap_id or bap_uri")
	ErrInvalidAction        = errors.New("context has an invalid action")
)

// NewContext builds a Context for the given action and transaction. The
// message_id is freshly generated and the timestamp is the current UTC time
func NewContext(
	action Action, id TransactionID, def ContextDefaults,
) *Context {
	return &Context{
		Domain:        orDefault(def.Domain, DefaultDomain),
		Country:       orDefault(def.Country, DefaultCountry),
		City:          orDefault(def.City, DefaultCity),
		Action:        action,
		CoreVersion:   orDefault(def.CoreVersion, DefaultCoreVersion),
		BAPID:         def.BAPID,
		BAPURI:        def.BAPURI,
		TransactionID: id,
		MessageID:     uuid.NewString(),
		Timestamp:     FormatTimestamp(time.Now()),
		TTL:           orDefault(def.TTL, DefaultTTL),
	}
}

// NewTransactionID generates an identifier for a new flow
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// FormatTimestamp renders a time the way every envelope carries it
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Reply returns a copy of the Context addressed back to the initiator. The
// action is rewritten to its callback counterpart, and the responder
// identity and a fresh timestamp are stamped in
func (c *Context) Reply(bppID, bppURI string, now time.Time) *Context {
	res := *c
	res.Action = c.Action.Callback()
	res.BPPID = bppID
	res.BPPURI = bppURI
	res.Timestamp = FormatTimestamp(now)
	return &res
}

// Validate checks the fields every wrapper must carry
func (c *Context) Validate() error {
	if c.TransactionID == "" {
		return ErrMissingTransactionID
	}
	if c.MessageID == "" {
		return ErrMissingMessageID
	}
	if c.BAPID == "" || c.BAPURI == "" {
		return ErrMissingInitiator
	}
	if !c.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, c.Action)
	}
	return nil
}

// CallbackURL returns the initiator endpoint that receives the callback for
// this Context's phase. bap_uri is the complete callback base, including any
// service path prefix, so only the callback action is appended
func (c *Context) CallbackURL() string {
	return JoinURL(c.BAPURI, string(c.Action.Callback()))
}

// JoinURL appends a single path segment to a base address
func JoinURL(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(segment, "/")
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
