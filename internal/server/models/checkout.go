package models

import "time"

type PurchaseType string

const (
	PurchasePoster PurchaseType = "poster"
	PurchasePlan   PurchaseType = "plan"
	PurchaseCart   PurchaseType = "cart"
)

type PayerType string

const (
	PayerUser    PayerType = "user"
	PayerVisitor PayerType = "visitor"
)

// PendingSignup holds credentials for an account that will only exist once
// payment settles. The password is stored sealed, never in plaintext.
type PendingSignup struct {
	ID                 string
	Email              string
	PasswordCiphertext []byte
	Nonce              []byte
	VisitorID          string
	CreatedAt          time.Time
}

// Order is the durable trace of a settled purchase or an included-poster
// redemption.
type Order struct {
	ID             string
	EventID        string
	SessionRef     string
	PurchaseType   PurchaseType
	PayerUserID    string
	PayerVisitorID string
	AmountCents    int64
	CustomerRef    string
	PosterRef      string
	Format         string
	Quality        string
	PricingVersion string
	PromoCode      string
	ItemCount      int
	CreatedAt      time.Time
}
