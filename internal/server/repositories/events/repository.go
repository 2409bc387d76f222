// Package events records which payment processor events have been settled.
package events

import "context"

type Repository interface {
	// MarkProcessed records eventID. It returns false, without error, when
	// the event was recorded before.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}
