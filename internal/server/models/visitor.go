package models

import "time"

// VisitorStateKind tags where an anonymous device stands in its lifecycle.
type VisitorStateKind string

const (
	// VisitorUnclaimed has its one anonymous attempt left.
	VisitorUnclaimed VisitorStateKind = "unclaimed"
	// VisitorExhausted used its anonymous attempt and is not linked to a user.
	VisitorExhausted VisitorStateKind = "exhausted"
	// VisitorClaimed is linked to a user; the link never changes afterwards.
	VisitorClaimed VisitorStateKind = "claimed"
)

// VisitorState is the explicit per-visitor record. A visitor with no row is
// read as VisitorUnclaimed.
type VisitorState struct {
	VisitorID  string
	Kind       VisitorStateKind
	UserID     string // set only when Kind == VisitorClaimed
	ConsumedAt *time.Time
	ClaimedAt  *time.Time
}

// Principal identifies who is acting. An authenticated request carries
// UserID (and usually the device's VisitorID as well); an anonymous one only
// VisitorID.
type Principal struct {
	UserID    string
	VisitorID string
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

// Ref returns the identifier used for payer and ownership bookkeeping.
func (p Principal) Ref() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.VisitorID
}
