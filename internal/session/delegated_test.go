package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"reelup/internal/services"
)

func newTokenServer(t *testing.T, wantCode string, body map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.Form.Get("code"); got != wantCode {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// browserFollowing simulates the user approving the login: it follows the
// authorization URL's redirect_uri with the given code and state override.
func browserFollowing(t *testing.T, code string, tamperState bool) func(string) error {
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := parsed.Query()
		if q.Get("login_hint") != "ed@studio.example" {
			t.Errorf("expected login_hint in auth url, got %q", q.Get("login_hint"))
		}
		state := q.Get("state")
		if tamperState {
			state = "forged"
		}
		callback := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {state}}.Encode()
		resp, err := http.Get(callback)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func TestDelegatedLoginExchangesCode(t *testing.T) {
	tokens := newTokenServer(t, "abc", map[string]any{
		"access_token": "tok-1",
		"token_type":   "bearer",
		"user_id":      "u-77",
	})
	var printed string
	login := NewDelegatedLogin(DelegatedConfig{
		ClientID:     "reelup",
		AuthorizeURL: "https://auth.invalid/authorize",
		TokenURL:     tokens.URL,
		CallbackBind: "127.0.0.1:0",
		Timeout:      5 * time.Second,
	}, WithBrowserOpener(browserFollowing(t, "abc", false)), WithAuthURLHook(func(u string) { printed = u }))

	pair, err := login.Login(context.Background(), Credentials{Email: "ed@studio.example"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.UserID != "u-77" || pair.Token != "tok-1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if printed == "" {
		t.Fatal("expected auth url hook to be called")
	}
}

func TestDelegatedLoginAcceptsNumericUserID(t *testing.T) {
	tokens := newTokenServer(t, "abc", map[string]any{
		"access_token": "tok",
		"token_type":   "bearer",
		"user_id":      42,
	})
	login := NewDelegatedLogin(DelegatedConfig{TokenURL: tokens.URL, AuthorizeURL: "https://auth.invalid/a", Timeout: 5 * time.Second},
		WithBrowserOpener(browserFollowing(t, "abc", false)))

	result := <-login.Begin(context.Background(), "ed@studio.example")
	if result.Err != nil || result.Pair.UserID != "42" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDelegatedLoginRejectsStateMismatch(t *testing.T) {
	tokens := newTokenServer(t, "abc", map[string]any{"access_token": "tok", "user_id": "u"})
	login := NewDelegatedLogin(DelegatedConfig{TokenURL: tokens.URL, AuthorizeURL: "https://auth.invalid/a", Timeout: 5 * time.Second},
		WithBrowserOpener(browserFollowing(t, "abc", true)))

	_, err := login.Login(context.Background(), Credentials{Email: "ed@studio.example"})
	if !errors.Is(err, services.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestDelegatedLoginRejectedCode(t *testing.T) {
	tokens := newTokenServer(t, "expected", map[string]any{"access_token": "tok", "user_id": "u"})
	login := NewDelegatedLogin(DelegatedConfig{TokenURL: tokens.URL, AuthorizeURL: "https://auth.invalid/a", Timeout: 5 * time.Second},
		WithBrowserOpener(browserFollowing(t, "other", false)))

	_, err := login.Login(context.Background(), Credentials{Email: "ed@studio.example"})
	if !errors.Is(err, services.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for rejected code, got %v", err)
	}
}

func TestDelegatedLoginTimesOut(t *testing.T) {
	login := NewDelegatedLogin(DelegatedConfig{AuthorizeURL: "https://auth.invalid/a", TokenURL: "https://auth.invalid/t", Timeout: 50 * time.Millisecond},
		WithBrowserOpener(func(string) error { return errors.New("no browser") }))

	_, err := login.Login(context.Background(), Credentials{Email: "ed@studio.example"})
	if !errors.Is(err, services.ErrInvalidCredentials) {
		t.Fatalf("expected timeout to surface as invalid credentials, got %v", err)
	}
}

func TestDelegatedLoginHonoursCancellation(t *testing.T) {
	login := NewDelegatedLogin(DelegatedConfig{AuthorizeURL: "https://auth.invalid/a", TokenURL: "https://auth.invalid/t", Timeout: time.Minute},
		WithBrowserOpener(func(string) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	results := login.Begin(ctx, "ed@studio.example")
	cancel()
	result := <-results
	if !errors.Is(result.Err, services.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", result.Err)
	}
}
