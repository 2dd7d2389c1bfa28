package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence surface required by the ingestion core. The core
// treats it as a repository, not a specific engine.
type Store interface {
	// Account operations. DeleteAccount cascades to the account's messages
	// and senders.
	CreateAccount(ctx context.Context, a *Account) error
	UpdateAccount(ctx context.Context, a *Account) error
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	SaveToken(ctx context.Context, accountID int64, token json.RawMessage) error
	DeleteAccount(ctx context.Context, accountID int64) error

	// Message operations. CreateStubs ignores rows whose
	// (account_id, external_id) already exists and reports how many rows
	// were actually inserted, so re-running a listing appends rather than
	// duplicating.
	CreateStubs(ctx context.Context, msgs []*Message) (int, error)
	MessageByExternalID(ctx context.Context, accountID int64, externalID string) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message) error
	UnfilledMessages(ctx context.Context, accountID int64) ([]*Message, error)
	MessagesMissingSubject(ctx context.Context, accountID int64) ([]*Message, error)

	// Sender operations.
	DistinctSenders(ctx context.Context, accountID int64) ([]string, error)
	CreateSenders(ctx context.Context, senders []*Sender) error
	LinkSender(ctx context.Context, accountID, senderID int64, rawSender string) (int64, error)
	TopSenders(ctx context.Context, accountID int64, limit int) ([]*Sender, error)
}
