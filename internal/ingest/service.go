// internal/ingest/service.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/mailharvest/internal/dispatch"
	"github.com/yourorg/mailharvest/internal/extract"
	"github.com/yourorg/mailharvest/internal/provider"
	"github.com/yourorg/mailharvest/internal/rate"
	"github.com/yourorg/mailharvest/internal/store"
)

// Service drives mailbox ingestion for stored accounts: listing message
// identifiers, persisting stubs, and filling stubs with full message content.
type Service struct {
	Store      store.Store
	Loaders    *provider.Registry
	Dispatcher dispatch.Dispatcher
	Log        *slog.Logger

	// Rate gates provider pagination calls. Job submission has its own
	// gate inside the dispatcher.
	Rate rate.Limiter

	// PageSize is the per-page maximum passed to the provider listing call.
	PageSize int
	// MaxResults caps how many identifiers a listing collects. The cap is
	// soft: the loop stops after the page that crosses it, so up to
	// PageSize-1 extra identifiers may be returned.
	MaxResults int
	// Mode selects the body extraction strategy for fetched messages.
	Mode extract.Mode
}

// Result reports a composed read of several messages. Failed maps each
// message identifier that could not be fetched or parsed to its error.
type Result struct {
	Succeeded []*store.Message
	Failed    map[string]error
}

// connect resolves the account's loader and opens a session. A refreshed
// token is persisted before the returned client sees any use, so a crash
// mid-run never strands a revoked token in the store.
func (s *Service) connect(ctx context.Context, account *store.Account) (provider.Client, error) {
	loader, err := s.Loaders.Lookup(account.ServiceType)
	if err != nil {
		return nil, err
	}
	sess, err := loader.Connect(ctx, account.Credentials, account.Token)
	if err != nil {
		return nil, fmt.Errorf("connect account %s: %w", account.Email, err)
	}
	if sess.Refreshed {
		if err := s.Store.SaveToken(ctx, account.ID, sess.Token); err != nil {
			return nil, fmt.Errorf("save refreshed token for %s: %w", account.Email, err)
		}
		account.Token = sess.Token
	}
	return sess.Client, nil
}

// ListIDs walks the provider's paginated listing for query and returns the
// collected stubs. The first call always runs, even when MaxResults is 0;
// thereafter the walk continues while a continuation cursor is present and
// the collected count is below MaxResults.
func (s *Service) ListIDs(ctx context.Context, client provider.Client, query provider.Query) ([]provider.Stub, error) {
	var stubs []provider.Stub
	pageToken := ""
	for {
		if s.Rate != nil {
			if err := s.Rate.Wait(ctx); err != nil {
				return nil, err
			}
		}
		page, err := client.List(ctx, query, pageToken, s.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		stubs = append(stubs, page.Stubs...)
		pageToken = page.NextPageToken
		if pageToken == "" || len(stubs) >= s.MaxResults {
			break
		}
	}
	return stubs, nil
}

// SyncStubs lists matching message identifiers and persists any that are not
// yet stored. It returns the number of newly created stubs.
func (s *Service) SyncStubs(ctx context.Context, account *store.Account, query provider.Query) (int, error) {
	client, err := s.connect(ctx, account)
	if err != nil {
		return 0, err
	}
	stubs, err := s.ListIDs(ctx, client, query)
	if err != nil {
		return 0, err
	}
	msgs := make([]*store.Message, 0, len(stubs))
	for _, st := range stubs {
		msgs = append(msgs, &store.Message{
			AccountID:  account.ID,
			ExternalID: string(st.ID),
			ThreadID:   st.ThreadID,
		})
	}
	created, err := s.Store.CreateStubs(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("persist stubs: %w", err)
	}
	s.Log.Info("stub sync complete",
		"account", account.Email, "listed", len(stubs), "created", created)
	return created, nil
}

// Fill submits a fetch job for every stored message that still has no body.
func (s *Service) Fill(ctx context.Context, account *store.Account) (int, error) {
	msgs, err := s.Store.UnfilledMessages(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("query unfilled messages: %w", err)
	}
	return s.submit(ctx, account, msgs)
}

// Refill re-submits fetch jobs for messages whose subject never arrived,
// typically after a transient outage left filled-looking rows incomplete.
func (s *Service) Refill(ctx context.Context, account *store.Account) (int, error) {
	msgs, err := s.Store.MessagesMissingSubject(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("query messages missing subject: %w", err)
	}
	return s.submit(ctx, account, msgs)
}

func (s *Service) submit(ctx context.Context, account *store.Account, msgs []*store.Message) (int, error) {
	submitted := 0
	for _, m := range msgs {
		job := dispatch.NewJob(account.Email, m.ExternalID)
		if err := s.Dispatcher.Submit(ctx, job); err != nil {
			return submitted, fmt.Errorf("submit job for message %s: %w", m.ExternalID, err)
		}
		submitted++
	}
	s.Log.Info("fetch jobs submitted", "account", account.Email, "count", submitted)
	return submitted, nil
}

// FetchFull retrieves one message in raw form, extracts its envelope and
// body, and stores the result. Re-running it overwrites the previous content
// with identical values, so redelivered jobs are harmless. A message with an
// empty extracted body is stored and returned like any other.
func (s *Service) FetchFull(ctx context.Context, client provider.Client, account *store.Account, externalID string) (*store.Message, error) {
	raw, err := client.GetRaw(ctx, provider.MessageID(externalID))
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", externalID, err)
	}
	env, err := extract.Extract(raw.Raw, s.Mode)
	if err != nil {
		return nil, fmt.Errorf("extract message %s: %w", externalID, err)
	}

	msg, err := s.Store.MessageByExternalID(ctx, account.ID, externalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		msg = &store.Message{AccountID: account.ID, ExternalID: externalID}
		if _, err := s.Store.CreateStubs(ctx, []*store.Message{msg}); err != nil {
			return nil, fmt.Errorf("create stub for message %s: %w", externalID, err)
		}
		if msg, err = s.Store.MessageByExternalID(ctx, account.ID, externalID); err != nil {
			return nil, fmt.Errorf("reload stub for message %s: %w", externalID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("load stub for message %s: %w", externalID, err)
	}

	msg.ThreadID = raw.ThreadID
	msg.Snippet = raw.Snippet
	msg.InternalDate = raw.InternalDate
	msg.HistoryID = raw.HistoryID
	msg.LabelIDs = raw.LabelIDs
	msg.Subject = env.Subject
	msg.Sender = env.Sender
	msg.Recipient = env.Recipient
	msg.Copy = env.Copy
	msg.Body = env.Body
	if err := s.Store.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message %s: %w", externalID, err)
	}
	return msg, nil
}

// ListMessages is the composed read path: list matching identifiers, fetch
// each inline, and return the fully extracted messages. Messages that fail to
// fetch or parse are skipped and reported in Result.Failed; messages whose
// extracted body is empty are dropped silently.
func (s *Service) ListMessages(ctx context.Context, account *store.Account, query provider.Query) (*Result, error) {
	client, err := s.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	stubs, err := s.ListIDs(ctx, client, query)
	if err != nil {
		return nil, err
	}
	res := &Result{Failed: map[string]error{}}
	for _, st := range stubs {
		msg, err := s.FetchFull(ctx, client, account, string(st.ID))
		if err != nil {
			s.Log.Warn("skipping message", "account", account.Email, "message", st.ID, "error", err)
			res.Failed[string(st.ID)] = err
			continue
		}
		if msg.Body == "" {
			continue
		}
		res.Succeeded = append(res.Succeeded, msg)
	}
	return res, nil
}

// Delete removes the message at the provider. The stored copy, if any, is
// left alone.
func (s *Service) Delete(ctx context.Context, account *store.Account, externalID string) error {
	client, err := s.connect(ctx, account)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, provider.MessageID(externalID)); err != nil {
		return fmt.Errorf("delete message %s: %w", externalID, err)
	}
	return nil
}

// HandleJob executes one dispatched fetch job. Unparsable messages are
// logged and acknowledged rather than redelivered, since retrying cannot
// make a malformed envelope parse.
func (s *Service) HandleJob(ctx context.Context, job dispatch.Job) error {
	account, err := s.Store.AccountByEmail(ctx, job.AccountEmail)
	if err != nil {
		return fmt.Errorf("load account %s: %w", job.AccountEmail, err)
	}
	client, err := s.connect(ctx, account)
	if err != nil {
		return err
	}
	if _, err := s.FetchFull(ctx, client, account, job.MessageID); err != nil {
		if errors.Is(err, extract.ErrUnparsable) {
			s.Log.Warn("skipping unparsable message",
				"account", account.Email, "message", job.MessageID, "error", err)
			return nil
		}
		return err
	}
	return nil
}
