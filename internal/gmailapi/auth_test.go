package gmailapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const clientConfig = `{"installed":{"client_id":"id","client_secret":"secret",` +
	`"redirect_uris":["http://localhost"],` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth",` +
	`"token_uri":"https://oauth2.googleapis.com/token"}}`

// Two accounts sharing one OAuth client config must never receive each
// other's session: the flight key has to separate them by token.
func TestConnectKeepsAccountsSeparate(t *testing.T) {
	loader := NewLoader(slogDiscard())
	creds := json.RawMessage(clientConfig)
	tokens := []json.RawMessage{
		json.RawMessage(`{"access_token":"tok-a","token_type":"Bearer"}`),
		json.RawMessage(`{"access_token":"tok-b","token_type":"Bearer"}`),
	}
	want := map[string]string{"tok-a": "tok-a", "tok-b": "tok-b"}

	var wg sync.WaitGroup
	failures := make(chan string, 64)
	for i := 0; i < 32; i++ {
		for _, tok := range tokens {
			wg.Add(1)
			go func(tok json.RawMessage) {
				defer wg.Done()
				sess, err := loader.Connect(context.Background(), creds, tok)
				if err != nil {
					failures <- err.Error()
					return
				}
				if sess.Refreshed {
					failures <- "valid token reported as refreshed"
					return
				}
				var got struct {
					AccessToken string `json:"access_token"`
				}
				if err := json.Unmarshal(sess.Token, &got); err != nil {
					failures <- err.Error()
					return
				}
				var asked struct {
					AccessToken string `json:"access_token"`
				}
				_ = json.Unmarshal(tok, &asked)
				if got.AccessToken != want[asked.AccessToken] {
					failures <- "asked for " + asked.AccessToken + " got " + got.AccessToken
				}
			}(tok)
		}
	}
	wg.Wait()
	close(failures)
	for f := range failures {
		t.Fatal(f)
	}
}
