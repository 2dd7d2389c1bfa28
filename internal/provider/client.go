package provider

import (
	"context"
	"encoding/json"
)

// Client is the narrow message-service surface required by mailharvest.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	GetRaw(ctx context.Context, id MessageID) (RawMessage, error)
	Delete(ctx context.Context, id MessageID) error
}

// Session pairs a connected Client with the token that backs it. When
// Refreshed is true the token differs from the one the caller supplied and
// must be persisted before the client is used for any provider call.
type Session struct {
	Client    Client
	Token     json.RawMessage
	Refreshed bool
}

// Loader turns stored account credentials into a connected session.
// Credentials are the opaque provider-issued client config; token is the
// mutable session state, possibly nil when the account was never authorized.
type Loader interface {
	Connect(ctx context.Context, credentials, token json.RawMessage) (Session, error)
}
