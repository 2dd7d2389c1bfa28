// internal/gmailapi/client.go — adapts *gmail.Service to the provider surface
package gmailapi

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/yourorg/mailharvest/internal/provider"
)

type apiClient struct{ svc *gmail.Service }

// NewClient wraps an authenticated Gmail service.
func NewClient(svc *gmail.Service) provider.Client { return &apiClient{svc: svc} }

func (c *apiClient) List(ctx context.Context, q provider.Query, pageToken string, pageSize int) (provider.ListPage, error) {
	call := c.svc.Users.Messages.List("me").Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return provider.ListPage{}, classify(err)
	}
	page := provider.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.Stubs = append(page.Stubs, provider.Stub{
			ID:       provider.MessageID(m.Id),
			ThreadID: m.ThreadId,
		})
	}
	return page, nil
}

func (c *apiClient) GetRaw(ctx context.Context, id provider.MessageID) (provider.RawMessage, error) {
	msg, err := c.svc.Users.Messages.Get("me", string(id)).Format("raw").Context(ctx).Do()
	if err != nil {
		return provider.RawMessage{}, classify(err)
	}
	return provider.RawMessage{
		ID:           provider.MessageID(msg.Id),
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: strconv.FormatInt(msg.InternalDate, 10),
		HistoryID:    strconv.FormatUint(msg.HistoryId, 10),
		LabelIDs:     msg.LabelIds,
		Raw:          msg.Raw,
	}, nil
}

func (c *apiClient) Delete(ctx context.Context, id provider.MessageID) error {
	return classify(c.svc.Users.Messages.Delete("me", string(id)).Context(ctx).Do())
}

// classify maps Google API failures onto the error taxonomy: 401/403 need
// re-consent, 429 and 5xx are transient, everything else passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		switch {
		case ge.Code == 401 || ge.Code == 403:
			return errors.Join(provider.ErrAuthorization, err)
		case ge.Code == 429 || ge.Code >= 500:
			return provider.MarkTransient(err)
		}
	}
	return err
}
