package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor is the opaque pagination cursor used by every list operation in the
// store facade (§4.7): "(created_at, id)" as the cursor.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// Encode serializes the cursor for transport to callers.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a cursor previously produced by Encode. An empty
// string decodes to the zero Cursor (start of the list).
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, err
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// GoalCursor is the opaque pagination cursor for Goals.List specifically:
// "(priority, created_at, id)", since goals are the one entity ordered
// priority-first (§3 Goal invariants) rather than by the facade's general
// (created_at, id) order.
type GoalCursor struct {
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// Encode serializes the goal cursor for transport to callers.
func (c GoalCursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeGoalCursor parses a cursor previously produced by GoalCursor.Encode.
// An empty string decodes to the zero GoalCursor (start of the list).
func DecodeGoalCursor(s string) (GoalCursor, error) {
	if s == "" {
		return GoalCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return GoalCursor{}, err
	}
	var c GoalCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return GoalCursor{}, err
	}
	return c, nil
}

// Page is a generic cursor-paginated result.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Pagination configures a list call.
type Pagination struct {
	Cursor string
	Limit  int
}

// DefaultLimit applied when callers do not specify one.
const DefaultLimit = 50

func (p Pagination) limitOrDefault() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}
