package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yourorg/mailharvest/internal/provider"
)

// Every test runs against both implementations so they honor the same
// repository contract.
func stores(t *testing.T) map[string]Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "open in-memory database")
	gs, err := NewGormStore(db)
	require.NoError(t, err, "create gorm store")
	return map[string]Store{"gorm": gs, "memory": NewMemoryStore()}
}

func seedAccount(t *testing.T, s Store) *Account {
	t.Helper()
	a := &Account{
		Email:       "user@example.com",
		ServiceType: provider.ServiceGmail,
		Credentials: json.RawMessage(`{"installed":{"client_id":"x"}}`),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func TestAccountLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)
			assert.NotZero(t, a.ID)

			got, err := s.AccountByEmail(ctx, "user@example.com")
			require.NoError(t, err)
			assert.Equal(t, a.ID, got.ID)
			assert.Equal(t, provider.ServiceGmail, got.ServiceType)
			assert.Empty(t, got.Token)

			tok := json.RawMessage(`{"access_token":"abc"}`)
			require.NoError(t, s.SaveToken(ctx, a.ID, tok))
			got, err = s.AccountByEmail(ctx, "user@example.com")
			require.NoError(t, err)
			assert.JSONEq(t, string(tok), string(got.Token))

			_, err = s.AccountByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCreateStubsIgnoresDuplicates(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)

			stubs := []*Message{
				{AccountID: a.ID, ExternalID: "m1", ThreadID: "t1"},
				{AccountID: a.ID, ExternalID: "m2", ThreadID: "t2"},
			}
			created, err := s.CreateStubs(ctx, stubs)
			require.NoError(t, err)
			assert.Equal(t, 2, created)

			// Re-listing appends by id: existing stubs are skipped.
			again := []*Message{
				{AccountID: a.ID, ExternalID: "m2", ThreadID: "t2"},
				{AccountID: a.ID, ExternalID: "m3", ThreadID: "t3"},
			}
			created, err = s.CreateStubs(ctx, again)
			require.NoError(t, err)
			assert.Equal(t, 1, created)

			unfilled, err := s.UnfilledMessages(ctx, a.ID)
			require.NoError(t, err)
			assert.Len(t, unfilled, 3)
		})
	}
}

func TestUpdateMessageRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)
			_, err := s.CreateStubs(ctx, []*Message{{AccountID: a.ID, ExternalID: "m1", ThreadID: "t1"}})
			require.NoError(t, err)

			m, err := s.MessageByExternalID(ctx, a.ID, "m1")
			require.NoError(t, err)
			m.Subject = "Hi"
			m.Sender = "Jane Doe <jane@example.com>"
			m.LabelIDs = []string{"INBOX", "UNREAD"}
			m.Body = "hello"
			require.NoError(t, s.UpdateMessage(ctx, m))

			got, err := s.MessageByExternalID(ctx, a.ID, "m1")
			require.NoError(t, err)
			assert.Equal(t, "Hi", got.Subject)
			assert.Equal(t, []string{"INBOX", "UNREAD"}, got.LabelIDs)
			assert.Equal(t, "hello", got.Body)
		})
	}
}

func TestUnfilledAndMissingSubjectQueries(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)
			_, err := s.CreateStubs(ctx, []*Message{
				{AccountID: a.ID, ExternalID: "m1"},
				{AccountID: a.ID, ExternalID: "m2"},
				{AccountID: a.ID, ExternalID: "m3"},
			})
			require.NoError(t, err)

			m, err := s.MessageByExternalID(ctx, a.ID, "m1")
			require.NoError(t, err)
			m.Subject = "filled"
			m.Body = "content"
			require.NoError(t, s.UpdateMessage(ctx, m))

			// m2 has a body but no subject: refill candidate, not unfilled.
			m, err = s.MessageByExternalID(ctx, a.ID, "m2")
			require.NoError(t, err)
			m.Body = "content"
			require.NoError(t, s.UpdateMessage(ctx, m))

			unfilled, err := s.UnfilledMessages(ctx, a.ID)
			require.NoError(t, err)
			require.Len(t, unfilled, 1)
			assert.Equal(t, "m3", unfilled[0].ExternalID)

			missing, err := s.MessagesMissingSubject(ctx, a.ID)
			require.NoError(t, err)
			require.Len(t, missing, 2)
			assert.Equal(t, "m2", missing[0].ExternalID)
			assert.Equal(t, "m3", missing[1].ExternalID)
		})
	}
}

func TestSenderQueries(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)
			_, err := s.CreateStubs(ctx, []*Message{
				{AccountID: a.ID, ExternalID: "m1", Sender: "Jane Doe <jane@example.com>"},
				{AccountID: a.ID, ExternalID: "m2", Sender: "Jane Doe <jane@example.com>"},
				{AccountID: a.ID, ExternalID: "m3", Sender: "noreply@example.com"},
			})
			require.NoError(t, err)

			distinct, err := s.DistinctSenders(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"Jane Doe <jane@example.com>", "noreply@example.com"}, distinct)

			senders := []*Sender{
				{AccountID: a.ID, Name: "Jane Doe", Email: "jane@example.com"},
				{AccountID: a.ID, Name: "", Email: ""},
			}
			require.NoError(t, s.CreateSenders(ctx, senders))
			assert.NotZero(t, senders[0].ID)
			assert.NotZero(t, senders[1].ID)

			linked, err := s.LinkSender(ctx, a.ID, senders[0].ID, "Jane Doe <jane@example.com>")
			require.NoError(t, err)
			assert.EqualValues(t, 2, linked)

			linked, err = s.LinkSender(ctx, a.ID, senders[1].ID, " <>")
			require.NoError(t, err)
			assert.EqualValues(t, 0, linked)

			top, err := s.TopSenders(ctx, a.ID, 5)
			require.NoError(t, err)
			require.NotEmpty(t, top)
			assert.Equal(t, "jane@example.com", top[0].Email)
			assert.Equal(t, 2, top[0].MessageCount)
		})
	}
}

// Updates must not rewrite row timestamps: a fill pass touches every message.
func TestUpdateKeepsCreatedAt(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := NewGormStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	a := seedAccount(t, s)
	a.Token = json.RawMessage(`{"access_token":"abc"}`)
	require.NoError(t, s.UpdateAccount(ctx, a))

	var accEnt accountEntity
	require.NoError(t, db.First(&accEnt, "id = ?", a.ID).Error)
	assert.False(t, accEnt.CreatedAt.IsZero())

	_, err = s.CreateStubs(ctx, []*Message{{AccountID: a.ID, ExternalID: "m1"}})
	require.NoError(t, err)
	m, err := s.MessageByExternalID(ctx, a.ID, "m1")
	require.NoError(t, err)
	m.Body = "filled"
	require.NoError(t, s.UpdateMessage(ctx, m))

	var msgEnt messageEntity
	require.NoError(t, db.First(&msgEnt, "id = ?", m.ID).Error)
	assert.False(t, msgEnt.CreatedAt.IsZero())
	assert.Equal(t, "filled", msgEnt.Body)
}

func TestDeleteAccountCascades(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := seedAccount(t, s)
			_, err := s.CreateStubs(ctx, []*Message{{AccountID: a.ID, ExternalID: "m1"}})
			require.NoError(t, err)
			require.NoError(t, s.CreateSenders(ctx, []*Sender{{AccountID: a.ID, Name: "n", Email: "e"}}))

			require.NoError(t, s.DeleteAccount(ctx, a.ID))

			_, err = s.AccountByEmail(ctx, "user@example.com")
			assert.True(t, errors.Is(err, ErrNotFound))
			msgs, err := s.UnfilledMessages(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, msgs)
			top, err := s.TopSenders(ctx, a.ID, 5)
			require.NoError(t, err)
			assert.Empty(t, top)
		})
	}
}
