package models

import "time"

// Generation records one successful image generation. OwnerUserID may be
// filled in later when the owning visitor is claimed.
type Generation struct {
	ID             string
	OwnerVisitorID string
	OwnerUserID    string
	ArtifactRef    string
	Prompt         string
	CreatedAt      time.Time
}

// Artifact is a generation as listed to its owner, with a temporary URL.
type Artifact struct {
	Ref       string
	URL       string
	Prompt    string
	CreatedAt time.Time
}
