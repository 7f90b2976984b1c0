package api

import "strings"

// Action names the message carried by an envelope
type Action string

const (
	ActionSearch    Action = "search"
	ActionOnSearch  Action = "on_search"
	ActionSelect    Action = "select"
	ActionOnSelect  Action = "on_select"
	ActionConfirm   Action = "confirm"
	ActionOnConfirm Action = "on_confirm"
)

const callbackPrefix = "on_"

// Valid reports whether the action is one of the six protocol actions
func (a Action) Valid() bool {
	switch a {
	case ActionSearch, ActionOnSearch, ActionSelect, ActionOnSelect,
		ActionConfirm, ActionOnConfirm:
		return true
	default:
		return false
	}
}

// IsCallback reports whether the action completes a phase
func (a Action) IsCallback() bool {
	return a.Valid() && strings.HasPrefix(string(a), callbackPrefix)
}

// Callback returns the phase-completing counterpart of a request action. A
// callback action is returned unchanged
func (a Action) Callback() Action {
	if a.IsCallback() {
		return a
	}
	return Action(callbackPrefix + string(a))
}

// Request returns the phase-initiating counterpart of a callback action. A
// request action is returned unchanged
func (a Action) Request() Action {
	return Action(strings.TrimPrefix(string(a), callbackPrefix))
}
