// Package common contains shared constants, helpers and sentinel errors used
// across Neoma components.
package common

// VisitorIDHeaderName carries the anonymous device fingerprint on HTTP requests.
const VisitorIDHeaderName = "X-Visitor-ID"

// MaxVisitorIDLength bounds the fingerprint accepted from clients.
const MaxVisitorIDLength = 128

// Currency is the single settlement currency (ISO 4217, lower case as the
// payment processor expects it).
const Currency = "eur"
