package models

import "time"

type Entitlement struct {
	UserID                  string
	IsPaid                  bool
	AttemptsRemaining       int
	SubscriptionFormat      string
	SubscriptionQuality     string
	CustomerRef             string
	IncludedPosterAvailable bool
	IncludedPosterRef       string
	UpdatedAt               time.Time
}

// EntitlementGrant is what a settled purchase writes in a single upsert.
// Empty strings leave existing subscription and customer fields untouched.
type EntitlementGrant struct {
	UserID              string
	Attempts            int
	SubscriptionFormat  string
	SubscriptionQuality string
	CustomerRef         string
	GrantIncludedPoster bool
}
