package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"

	"reelup/internal/logging"
	"reelup/internal/services"
)

const defaultDelegatedTimeout = 3 * time.Minute

// DelegatedConfig describes the authorization-code endpoints used for browser login.
type DelegatedConfig struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	// CallbackBind is the local address the redirect listener binds to.
	CallbackBind string
	Timeout      time.Duration
}

// DelegatedResult is the single value a browser login resolves to.
type DelegatedResult struct {
	Pair TokenPair
	Err  error
}

// DelegatedOption customises a DelegatedLogin.
type DelegatedOption func(*DelegatedLogin)

// WithBrowserOpener replaces the function used to open the authorization URL.
func WithBrowserOpener(fn func(string) error) DelegatedOption {
	return func(d *DelegatedLogin) {
		if fn != nil {
			d.openURL = fn
		}
	}
}

// WithAuthURLHook registers fn to receive the authorization URL before the
// browser is opened, so a CLI can print it for manual use.
func WithAuthURLHook(fn func(string)) DelegatedOption {
	return func(d *DelegatedLogin) {
		d.onAuthURL = fn
	}
}

// WithDelegatedLogger sets the logger used for callback diagnostics.
func WithDelegatedLogger(logger *slog.Logger) DelegatedOption {
	return func(d *DelegatedLogin) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DelegatedLogin runs an OAuth2 authorization-code flow through the user's
// browser. The code arrives on a short-lived local HTTP listener.
type DelegatedLogin struct {
	cfg       DelegatedConfig
	openURL   func(string) error
	onAuthURL func(string)
	logger    *slog.Logger
}

// NewDelegatedLogin constructs a browser login strategy.
func NewDelegatedLogin(cfg DelegatedConfig, opts ...DelegatedOption) *DelegatedLogin {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDelegatedTimeout
	}
	if strings.TrimSpace(cfg.CallbackBind) == "" {
		cfg.CallbackBind = "127.0.0.1:0"
	}
	d := &DelegatedLogin{
		cfg:     cfg,
		openURL: open.Start,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Login blocks until Begin's result arrives.
func (d *DelegatedLogin) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	result, ok := <-d.Begin(ctx, creds.Email)
	if !ok {
		return TokenPair{}, services.Wrap(services.ErrCancelled, "session", "delegated login", "login abandoned", nil)
	}
	return result.Pair, result.Err
}

// Begin starts the browser flow and returns a channel that yields exactly one
// result and is then closed. The caller is never blocked.
func (d *DelegatedLogin) Begin(ctx context.Context, email string) <-chan DelegatedResult {
	out := make(chan DelegatedResult, 1)
	go func() {
		defer close(out)
		pair, err := d.run(ctx, email)
		out <- DelegatedResult{Pair: pair, Err: err}
	}()
	return out
}

func (d *DelegatedLogin) run(ctx context.Context, email string) (TokenPair, error) {
	listener, err := net.Listen("tcp", d.cfg.CallbackBind)
	if err != nil {
		return TokenPair{}, services.Wrap(services.ErrNetworkUnreachable, "session", "delegated login", "start callback listener", err)
	}

	conf := &oauth2.Config{
		ClientID: d.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  d.cfg.AuthorizeURL,
			TokenURL: d.cfg.TokenURL,
		},
		RedirectURL: "http://" + listener.Addr().String() + "/callback",
	}

	cb := &callbackServer{
		state:  uuid.NewString(),
		result: make(chan callbackResult, 1),
		logger: d.logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cb.handle)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	server.SetKeepAlivesEnabled(false)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Debug("callback server stopped", logging.Error(err))
		}
	}()
	defer server.Close()

	authURL := conf.AuthCodeURL(cb.state, oauth2.SetAuthURLParam("login_hint", strings.TrimSpace(email)))
	if d.onAuthURL != nil {
		d.onAuthURL(authURL)
	}
	if err := d.openURL(authURL); err != nil {
		d.logger.Warn("could not open browser for login",
			logging.Error(err),
			logging.String(logging.FieldEventType, "browser_open_failed"),
			logging.String(logging.FieldErrorHint, "open the printed URL manually"),
		)
	}

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()

	var code string
	select {
	case res := <-cb.result:
		if res.err != nil {
			return TokenPair{}, res.err
		}
		code = res.code
	case <-timer.C:
		return TokenPair{}, services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", fmt.Sprintf("no authorization received within %s", d.cfg.Timeout), nil)
	case <-ctx.Done():
		return TokenPair{}, services.Wrap(services.ErrCancelled, "session", "delegated login", "", ctx.Err())
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return TokenPair{}, services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", "code exchange rejected", err)
		}
		return TokenPair{}, services.Wrap(services.ErrNetworkUnreachable, "session", "delegated login", "code exchange", err)
	}

	pair := TokenPair{UserID: extraString(token.Extra("user_id")), Token: token.AccessToken}
	if !pair.valid() {
		return TokenPair{}, services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", "token response missing user_id or access_token", nil)
	}
	return pair, nil
}

func extraString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}

type callbackResult struct {
	code string
	err  error
}

type callbackServer struct {
	state  string
	result chan callbackResult
	once   sync.Once
	logger *slog.Logger
}

func (s *callbackServer) deliver(res callbackResult) {
	s.once.Do(func() {
		s.result <- res
	})
}

func (s *callbackServer) handle(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	reply := func(status int, message string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "<html><body><p>"+message+"</p></body></html>")
	}

	if query.Get("state") != s.state {
		s.logger.Debug("callback state mismatch", logging.String("got", query.Get("state")))
		reply(http.StatusBadRequest, "Login state did not match. Please try again.")
		s.deliver(callbackResult{err: services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", "state mismatch", nil)})
		return
	}
	if reason := query.Get("error"); reason != "" {
		reply(http.StatusForbidden, "Login was not authorized. You can close this window.")
		detail := reason
		if desc := query.Get("error_description"); desc != "" {
			detail = reason + ": " + desc
		}
		s.deliver(callbackResult{err: services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", detail, nil)})
		return
	}
	code := query.Get("code")
	if code == "" {
		reply(http.StatusBadRequest, "No authorization code was returned.")
		s.deliver(callbackResult{err: services.Wrap(services.ErrInvalidCredentials, "session", "delegated login", "callback missing code", nil)})
		return
	}
	reply(http.StatusOK, "Login complete. You can close this window.")
	s.deliver(callbackResult{code: code})
}

var _ LoginStrategy = (*DelegatedLogin)(nil)
