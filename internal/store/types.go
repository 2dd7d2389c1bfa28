// internal/store/types.go
package store

import (
	"encoding/json"

	"github.com/yourorg/mailharvest/internal/provider"
)

// Account is one external mailbox. Credentials are the opaque provider-issued
// client config; Token is the mutable session state. The token is either
// absent or the most recently returned one: every successful connect may
// produce a new token that is persisted before the next provider call.
type Account struct {
	ID          int64
	Email       string
	ServiceType provider.ServiceType
	Credentials json.RawMessage
	Token       json.RawMessage
}

// Message is one ingested mail message. A message created during listing has
// only ExternalID/ThreadID populated (stub state) until full-fetch completes.
type Message struct {
	ID           int64
	AccountID    int64
	ExternalID   string
	ThreadID     string
	Snippet      string
	InternalDate string
	LabelIDs     []string
	HistoryID    string
	Subject      string
	Sender       string // raw From header
	Recipient    string
	Copy         string // raw Cc header
	Body         string
	SenderID     *int64 // resolved sender identity, if any
}

// Sender is a derived sender identity. Name and Email may both be empty when
// the raw header did not match the expected "Name <address>" shape.
// Duplicates are possible; reconciliation is a separate concern.
type Sender struct {
	ID           int64
	AccountID    int64
	Name         string
	Email        string
	MessageCount int
}
