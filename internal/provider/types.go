// internal/provider/types.go
package provider

// ServiceType selects a loader implementation for an account.
type ServiceType string

const ServiceGmail ServiceType = "gmail"

// MessageID is a provider-assigned message identifier, unique within an account.
type MessageID string

// Query is an already-formed provider search string (e.g. `from:alerts@example.com`).
type Query struct {
	Raw string
}

// Stub carries the identifying fields returned by a listing call.
type Stub struct {
	ID       MessageID
	ThreadID string
}

// ListPage is one page of a message listing. NextPageToken is the
// continuation cursor; empty means the listing is exhausted.
type ListPage struct {
	Stubs         []Stub
	NextPageToken string
}

// RawMessage is the full provider representation of a single message:
// envelope metadata plus the base64url-encoded MIME envelope.
type RawMessage struct {
	ID           MessageID
	ThreadID     string
	Snippet      string
	InternalDate string
	HistoryID    string
	LabelIDs     []string
	Raw          string
}
