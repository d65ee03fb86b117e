package model

import (
	"fmt"
	"time"
)

// Invalidation is an immutable marker that a record is no longer trustworthy.
//
// RootID is empty for the record where an invalidation originates. Every
// record invalidated by the same cascade carries the originating event's id,
// so "why is this invalid" is answered with one lookup.
type Invalidation struct {
	ID        string    `json:"id"`
	Cause     string    `json:"cause"`
	RootID    string    `json:"root_invalidation_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsRoot reports whether this invalidation started a cascade.
func (i Invalidation) IsRoot() bool {
	return i.RootID == ""
}

// ActionType selects how an InvalidationAction is dispatched.
type ActionType string

const (
	// ActionShell runs Command with Params["args"] as process arguments.
	ActionShell ActionType = "shell"

	// ActionExternalEvent hands the substituted payload to an event publisher.
	ActionExternalEvent ActionType = "external_event"
)

// ParseActionType converts CLI/manifest input to an ActionType.
// Empty input means ActionShell.
func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "", "shell", "SHELL_COMMAND", "shell_command":
		return ActionShell, nil
	case "external_event", "EXTERNAL_EVENT", "event":
		return ActionExternalEvent, nil
	}
	return "", NewInvalidArgument(fmt.Sprintf("unknown action type %q", s))
}

// InvalidationAction is a side effect fired once per invalidation of each
// record bound to it.
//
// Command and every string inside Params are templates; "{key}" placeholders
// are replaced from the record's tags plus the reserved keys "name" and "uri".
type InvalidationAction struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    ActionType `json:"action_type"`
	Command string     `json:"command"`
	Params  Object     `json:"params"`
}

// Args returns Params["args"]. Absent args yield nil; a non-array value is
// an INVALID_ARGUMENT error.
func (a InvalidationAction) Args() (Array, error) {
	v, ok := a.Params["args"]
	if !ok {
		return nil, nil
	}
	arr, ok := v.(Array)
	if !ok {
		return nil, NewInvalidArgument(fmt.Sprintf("action %q: params.args must be an array, got %T", a.Name, v))
	}
	return arr, nil
}

// ShellParams builds the conventional {"args": [...]} params object.
func ShellParams(args ...string) Object {
	arr := make(Array, len(args))
	for i, a := range args {
		arr[i] = String(a)
	}
	return Object{"args": arr}
}
