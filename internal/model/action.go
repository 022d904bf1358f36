package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is the kind of change a push event carries.
//
// The set is closed. The zero value is not a valid action; decoding an absent
// tag yields ActionCreate.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionEdit
	ActionDelete
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionEdit:
		return "edit"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction maps a wire tag to an Action. The empty tag is ActionCreate.
func ParseAction(tag string) (Action, error) {
	switch tag {
	case "", "create":
		return ActionCreate, nil
	case "edit":
		return ActionEdit, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, &UnknownActionError{Tag: tag}
	}
}

// UnknownActionError is returned when a push event names an action outside
// the closed set.
type UnknownActionError struct {
	Tag string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Tag)
}

// UnmarshalJSON decodes a wire tag. null decodes to ActionCreate.
func (a *Action) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = ActionCreate
		return nil
	}
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	parsed, err := ParseAction(tag)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the wire tag.
func (a Action) MarshalJSON() ([]byte, error) {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete:
		return json.Marshal(a.String())
	default:
		return nil, fmt.Errorf("encode action: invalid value %d", int(a))
	}
}
