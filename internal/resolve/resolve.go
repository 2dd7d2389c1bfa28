// internal/resolve/resolve.go
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yourorg/mailharvest/internal/store"
)

// senderPattern matches the conventional "Display Name <address>" header
// shape. Anything else (bare addresses included) yields empty fields.
var senderPattern = regexp.MustCompile(`^(.*?)\s*<(.*)>`)

// ParseSender splits a raw From header into display name and address.
// Headers that do not match the angle-bracket shape return two empty strings;
// that is a data outcome, not an error.
func ParseSender(raw string) (name, email string) {
	m := senderPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

// Service derives sender identities from stored messages after ingestion and
// links messages back to them.
type Service struct {
	Store store.Store
	Log   *slog.Logger
}

// Resolve scans the account's distinct raw sender headers, creates one
// identity per header, and backfills each message's sender link. Messages
// whose raw header cannot be reconstructed from the parsed fields stay
// unlinked. Returns the number of identities created and messages linked.
func (s *Service) Resolve(ctx context.Context, accountID int64) (created, linked int, err error) {
	raws, err := s.Store.DistinctSenders(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("query distinct senders: %w", err)
	}

	senders := make([]*store.Sender, 0, len(raws))
	for _, raw := range raws {
		if raw == "" {
			continue
		}
		name, email := ParseSender(raw)
		senders = append(senders, &store.Sender{AccountID: accountID, Name: name, Email: email})
	}
	if len(senders) > 0 {
		if err := s.Store.CreateSenders(ctx, senders); err != nil {
			return 0, 0, fmt.Errorf("create senders: %w", err)
		}
	}
	created = len(senders)

	for _, sender := range senders {
		// link only messages whose header equals the reconstructed form
		n, err := s.Store.LinkSender(ctx, accountID, sender.ID, fmt.Sprintf("%s <%s>", sender.Name, sender.Email))
		if err != nil {
			return created, linked, fmt.Errorf("link sender %q: %w", sender.Email, err)
		}
		linked += int(n)
	}
	s.Log.Info("sender resolution complete",
		"account", accountID, "created", created, "linked", linked)
	return created, linked, nil
}

// TopSenders reports the account's most frequent resolved senders.
func (s *Service) TopSenders(ctx context.Context, accountID int64, limit int) ([]*store.Sender, error) {
	senders, err := s.Store.TopSenders(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top senders: %w", err)
	}
	return senders, nil
}
