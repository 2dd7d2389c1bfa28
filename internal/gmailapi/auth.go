// internal/gmailapi/auth.go
package gmailapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/yourorg/mailharvest/internal/provider"
)

// Loader implements provider.Loader for Gmail. It owns the OAuth credential
// lifecycle: reuse a valid token, refresh an expired one, or run the
// interactive authorization flow against a local callback port. The refreshed
// or newly obtained token is returned to the caller, never persisted here.
type Loader struct {
	Scopes       []string
	CallbackPort int
	Log          *slog.Logger

	// Concurrent connects for the same account serialize behind a
	// single-flight guard so a token is refreshed at most once.
	group singleflight.Group
}

func NewLoader(log *slog.Logger) *Loader {
	return &Loader{
		Scopes:       []string{gmail.GmailReadonlyScope},
		CallbackPort: 8080,
		Log:          log,
	}
}

func (l *Loader) Connect(ctx context.Context, credentials, token json.RawMessage) (provider.Session, error) {
	// Accounts routinely share one OAuth client config, so the flight key
	// pairs the credentials with the stored token: only connects for the
	// same account coalesce.
	key := string(credentials) + "\x00" + string(token)
	v, err, _ := l.group.Do(key, func() (any, error) {
		return l.connect(ctx, credentials, token)
	})
	if err != nil {
		return provider.Session{}, err
	}
	return v.(provider.Session), nil
}

func (l *Loader) connect(ctx context.Context, credentials, token json.RawMessage) (provider.Session, error) {
	cfg, err := google.ConfigFromJSON(credentials, l.Scopes...)
	if err != nil {
		return provider.Session{}, fmt.Errorf("parse client credentials: %w", err)
	}

	var tok *oauth2.Token
	if len(token) > 0 {
		tok = new(oauth2.Token)
		if err := json.Unmarshal(token, tok); err != nil {
			return provider.Session{}, fmt.Errorf("decode stored token: %w", err)
		}
	}

	refreshed := false
	switch {
	case tok != nil && tok.Valid():
		// reuse as-is
	case tok != nil && tok.RefreshToken != "":
		nt, err := cfg.TokenSource(ctx, tok).Token()
		if err != nil {
			return provider.Session{}, fmt.Errorf("refresh token: %w", err)
		}
		tok = nt
		refreshed = true
	default:
		nt, err := l.authorize(ctx, cfg)
		if err != nil {
			return provider.Session{}, fmt.Errorf("%w: %v", provider.ErrAuthorization, err)
		}
		tok = nt
		refreshed = true
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return provider.Session{}, fmt.Errorf("encode token: %w", err)
	}

	// A static source keeps refresh explicit: the session never rewrites the
	// token behind the caller's back mid-operation.
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return provider.Session{}, fmt.Errorf("create gmail service: %w", err)
	}

	return provider.Session{Client: NewClient(svc), Token: raw, Refreshed: refreshed}, nil
}

// authorize runs the authorization-code flow with a throwaway HTTP listener
// on the callback port. Failure here is fatal for the calling operation.
func (l *Loader) authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	local := *cfg
	local.RedirectURL = fmt.Sprintf("http://localhost:%d/", l.CallbackPort)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", l.CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("listen on callback port: %w", err)
	}

	codeCh := make(chan string, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authorization received. You may close this window.")
			select {
			case codeCh <- r.URL.Query().Get("code"):
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	authURL := local.AuthCodeURL(state, oauth2.AccessTypeOffline)
	l.Log.Info("visit the authorization URL in your browser", "url", authURL)

	select {
	case code := <-codeCh:
		tok, err := local.Exchange(ctx, code, oauth2.AccessTypeOffline)
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
