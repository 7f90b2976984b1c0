package store

import (
	"fmt"
	"time"

	"github.com/kode4food/beckn/pkg/api"
)

type transition struct {
	from api.TxStatus
	to   api.TxStatus
}

// transitions maps each callback action to the only status it may leave
// and the status it produces
var transitions = map[api.Action]transition{
	api.ActionOnSearch: {
		from: api.TxInitiated,
		to:   api.TxSearchCompleted,
	},
	api.ActionOnSelect: {
		from: api.TxSearchCompleted,
		to:   api.TxSelectCompleted,
	},
	api.ActionOnConfirm: {
		from: api.TxSelectCompleted,
		to:   api.TxConfirmCompleted,
	},
}

// ExpectedCallback returns the callback action that would advance a record
// in the given status, or false if the status accepts none
func ExpectedCallback(status api.TxStatus) (api.Action, bool) {
	for action, t := range transitions {
		if t.from == status {
			return action, true
		}
	}
	return "", false
}

// applyCallback mutates tx in place. On error tx is left untouched
func applyCallback(
	tx *api.Transaction, action api.Action, p Payload, now time.Time,
) error {
	if tx.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, tx.Status)
	}
	t, ok := transitions[action]
	if !ok || t.from != tx.Status {
		return fmt.Errorf("%w: %s while %s", ErrUnexpectedAction,
			action, tx.Status)
	}

	switch action {
	case api.ActionOnSearch:
		if p.Catalog == nil {
			return fmt.Errorf("%w: catalog", ErrMissingPayload)
		}
		tx.Catalog = p.Catalog
	case api.ActionOnSelect:
		if p.Order == nil {
			return fmt.Errorf("%w: order", ErrMissingPayload)
		}
		if len(p.Order.Items) == 0 {
			return fmt.Errorf("%w: order items", ErrMissingPayload)
		}
		tx.SelectedOrder = p.Order
		tx.Quote = p.Quote
		if tx.Quote == nil {
			tx.Quote = p.Order.Quote
		}
	case api.ActionOnConfirm:
		if p.Order == nil {
			return fmt.Errorf("%w: order", ErrMissingPayload)
		}
		if p.Order.ID == "" {
			return fmt.Errorf("%w: order id", ErrMissingPayload)
		}
		tx.ConfirmedOrder = p.Order
	}

	tx.Status = t.to
	tx.UpdatedAt = now
	return nil
}

func expire(
	tx *api.Transaction, reason string, seen, now time.Time,
) error {
	if !tx.UpdatedAt.Equal(seen) {
		return fmt.Errorf("%w: %s", ErrRecordChanged, tx.Status)
	}
	return fail(tx, reason, now)
}

func fail(tx *api.Transaction, reason string, now time.Time) error {
	if tx.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, tx.Status)
	}
	tx.Status = api.TxFailed
	tx.Error = reason
	tx.UpdatedAt = now
	return nil
}
