package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"reelup/internal/api"
	"reelup/internal/config"
	"reelup/internal/logging"
	"reelup/internal/services"
)

// UserDataSource fetches the projects visible to an authenticated user.
type UserDataSource interface {
	UserData(ctx context.Context, auth api.Auth) (*api.UserData, error)
}

// Option customises a Session.
type Option func(*Session)

// WithStrategy binds the strategy used for emails classified as provider.
func WithStrategy(provider Provider, strategy LoginStrategy) Option {
	return func(s *Session) {
		if strategy != nil {
			s.strategies[provider] = strategy
		}
	}
}

// WithDelegatedDomains sets the email domains that use the delegated strategy.
func WithDelegatedDomains(domains []string) Option {
	return func(s *Session) {
		s.delegatedDomains = append([]string(nil), domains...)
	}
}

// WithTokenStore persists the session between processes.
func WithTokenStore(store TokenStore) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvents shares an existing event bus instead of a private one.
func WithEvents(events *Events) Option {
	return func(s *Session) {
		if events != nil {
			s.events = events
		}
	}
}

// Session owns the authenticated identity and the selected destination.
// The zero state is unauthenticated; the token pair is present only while
// authenticated.
type Session struct {
	users            UserDataSource
	strategies       map[Provider]LoginStrategy
	delegatedDomains []string
	store            TokenStore
	logger           *slog.Logger
	events           *Events
	flight           singleflight.Group

	mu            sync.Mutex
	email         string
	authenticated bool
	pair          TokenPair
	projectID     string
	folderID      string
	cache         *api.UserData
	generation    uint64
	loginSeq      uint64
}

// New creates an unauthenticated session.
func New(users UserDataSource, opts ...Option) *Session {
	s := &Session{
		users:      users,
		strategies: make(map[Provider]LoginStrategy),
		logger:     logging.NewNop(),
		events:     NewEvents(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "session")
	return s
}

// NewFromConfig wires the password strategy against client and, when
// delegated domains are configured, the browser strategy.
func NewFromConfig(cfg *config.Config, client *api.Client, logger *slog.Logger, opts ...Option) *Session {
	base := []Option{
		WithLogger(logger),
		WithStrategy(ProviderPassword, NewPasswordLogin(client)),
		WithTokenStore(NewFileTokenStore(cfg.SessionPath())),
	}
	if cfg.DelegatedLoginEnabled() {
		base = append(base,
			WithDelegatedDomains(cfg.Auth.DelegatedDomains),
			WithStrategy(ProviderDelegated, NewDelegatedLogin(DelegatedConfigFrom(cfg), WithDelegatedLogger(logger))),
		)
	}
	return New(client, append(base, opts...)...)
}

// DelegatedConfigFrom reads the browser login settings from cfg.
func DelegatedConfigFrom(cfg *config.Config) DelegatedConfig {
	return DelegatedConfig{
		ClientID:     cfg.Auth.ClientID,
		AuthorizeURL: cfg.Auth.AuthorizeURL,
		TokenURL:     cfg.Auth.TokenURL,
		CallbackBind: cfg.Auth.CallbackBind,
		Timeout:      cfg.LoginTimeout(),
	}
}

// Events exposes the connection-changed bus.
func (s *Session) Events() *Events {
	return s.events
}

// Subscribe is shorthand for Events().Subscribe.
func (s *Session) Subscribe(fn func(ConnectionEvent)) func() {
	return s.events.Subscribe(fn)
}

// Provider reports which strategy Login would use for email.
func (s *Session) Provider(email string) (Provider, error) {
	return Classify(email, s.delegatedDomains)
}

// Login authenticates email with the strategy its domain selects. Any
// previous identity is dropped first; on failure the session stays
// unauthenticated.
func (s *Session) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)

	s.mu.Lock()
	wasAuthenticated := s.authenticated
	s.resetLocked()
	s.loginSeq++
	seq := s.loginSeq
	s.mu.Unlock()
	if wasAuthenticated {
		// Disk follows memory so a failed login cannot be restored as the old user.
		s.clearStore()
		s.events.Publish(ConnectionEvent{})
	}

	provider, err := Classify(email, s.delegatedDomains)
	if err != nil {
		return err
	}
	strategy, ok := s.strategies[provider]
	if !ok {
		return services.Wrap(services.ErrUnsupportedProvider, "session", "login", "no "+provider.String()+" strategy configured", nil)
	}

	s.logger.Debug("login started", logging.String("provider", provider.String()))
	pair, err := strategy.Login(ctx, Credentials{Email: email, Password: password})
	if err != nil {
		return classifyLoginFailure(ctx, err)
	}
	if !pair.valid() {
		return services.Wrap(services.ErrInvalidCredentials, "session", "login", "strategy returned an empty token pair", nil)
	}

	s.mu.Lock()
	if s.loginSeq != seq {
		s.mu.Unlock()
		return services.Wrap(services.ErrCancelled, "session", "login", "superseded by a newer login", nil)
	}
	s.email = email
	s.pair = pair
	s.authenticated = true
	s.generation++
	state := s.stateLocked()
	s.mu.Unlock()

	s.persist(state)
	s.logger.Info("logged in", logging.String("provider", provider.String()), logging.String("user_id", pair.UserID))
	s.events.Publish(ConnectionEvent{Authenticated: true, Email: email, UserID: pair.UserID})
	return nil
}

// LoginAsync runs Login on a goroutine. The returned channel yields one
// value and is closed.
func (s *Session) LoginAsync(ctx context.Context, email, password string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.Login(ctx, email, password)
	}()
	return done
}

func classifyLoginFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrUnsupportedProvider),
		errors.Is(err, services.ErrNetworkUnreachable),
		errors.Is(err, services.ErrCancelled):
		return err
	case ctx.Err() != nil:
		return services.Wrap(services.ErrCancelled, "session", "login", "", err)
	default:
		return services.Wrap(services.ErrInvalidCredentials, "session", "login", "", err)
	}
}

// Logout drops the identity, the cache and the persisted token. It always
// fires the connection event.
func (s *Session) Logout() {
	s.mu.Lock()
	s.resetLocked()
	s.loginSeq++
	s.mu.Unlock()

	s.clearStore()
	s.logger.Info("logged out")
	s.events.Publish(ConnectionEvent{})
}

func (s *Session) clearStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Clear(); err != nil {
		logging.WarnWithContext(s.logger, "failed to clear persisted session", "session_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the session file manually"),
		)
	}
}

// Restore loads a persisted session. It reports whether an identity was
// restored; an empty or missing store is not an error.
func (s *Session) Restore() (bool, error) {
	if s.store == nil {
		return false, nil
	}
	state, err := s.store.Load()
	if err != nil {
		return false, err
	}
	pair := TokenPair{UserID: state.UserID, Token: state.Token}
	if !pair.valid() {
		return false, nil
	}

	s.mu.Lock()
	s.email = state.Email
	s.pair = pair
	s.authenticated = true
	s.projectID = state.ProjectID
	s.folderID = state.FolderID
	s.cache = nil
	s.generation++
	s.mu.Unlock()

	s.logger.Debug("session restored", logging.String("user_id", pair.UserID))
	s.events.Publish(ConnectionEvent{Authenticated: true, Email: state.Email, UserID: pair.UserID})
	return true, nil
}

// SetProject selects the current project and clears the folder selection.
func (s *Session) SetProject(id string) {
	s.mu.Lock()
	s.projectID = strings.TrimSpace(id)
	s.folderID = ""
	s.invalidateLocked()
	state, save := s.stateLocked(), s.authenticated
	s.mu.Unlock()
	if save {
		s.persist(state)
	}
}

// SetFolder selects the upload destination folder.
func (s *Session) SetFolder(id string) {
	s.mu.Lock()
	s.folderID = strings.TrimSpace(id)
	s.invalidateLocked()
	state, save := s.stateLocked(), s.authenticated
	s.mu.Unlock()
	if save {
		s.persist(state)
	}
}

// Auth returns the identity fields for an authenticated call.
func (s *Session) Auth() (api.Auth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return api.Auth{}, services.ErrNotAuthenticated
	}
	return api.Auth{UserID: s.pair.UserID, Token: s.pair.Token, ProjectID: s.projectID}, nil
}

// TokenPair returns the current pair and whether the session is authenticated.
func (s *Session) TokenPair() (TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair, s.authenticated
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

func (s *Session) FolderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folderID
}

// InvalidateUserData drops the cached user data.
func (s *Session) InvalidateUserData() {
	s.mu.Lock()
	s.invalidateLocked()
	s.mu.Unlock()
}

// ReloadUserData returns the cached user data, fetching it when the cache is
// empty. Concurrent callers share one request.
func (s *Session) ReloadUserData(ctx context.Context) (*api.UserData, error) {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return nil, services.ErrNotAuthenticated
	}
	if s.cache != nil {
		data := s.cache
		s.mu.Unlock()
		return data, nil
	}
	auth := api.Auth{UserID: s.pair.UserID, Token: s.pair.Token, ProjectID: s.projectID}
	gen := s.generation
	s.mu.Unlock()

	if s.users == nil {
		return nil, services.Wrap(services.ErrServerError, "session", "user data", "no user data source configured", nil)
	}

	v, err, _ := s.flight.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		data, err := s.users.UserData(ctx, auth)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.generation == gen {
			s.cache = data
		}
		s.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*api.UserData), nil
}

// FindProject looks a project up by id in the user data.
func (s *Session) FindProject(ctx context.Context, id string) (*api.Project, error) {
	data, err := s.ReloadUserData(ctx)
	if err != nil {
		return nil, err
	}
	for i := range data.Projects {
		if data.Projects[i].ID == id {
			return &data.Projects[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "session", "find project", "project "+id+" not found", nil)
}

// FindFolder walks every project's folder tree for id.
func (s *Session) FindFolder(ctx context.Context, id string) (*api.Folder, error) {
	data, err := s.ReloadUserData(ctx)
	if err != nil {
		return nil, err
	}
	for i := range data.Projects {
		if folder := findFolder(&data.Projects[i].RootFolder, id); folder != nil {
			return folder, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "session", "find folder", "folder "+id+" not found", nil)
}

// DestinationFolder resolves where uploads go: the selected folder, or the
// root folder of the selected project.
func (s *Session) DestinationFolder(ctx context.Context) (string, error) {
	s.mu.Lock()
	folderID, projectID := s.folderID, s.projectID
	s.mu.Unlock()
	if folderID != "" {
		return folderID, nil
	}
	if projectID == "" {
		return "", services.Wrap(services.ErrBadRequest, "session", "destination", "no project selected; run `reelup use --project ID`", nil)
	}
	project, err := s.FindProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.RootFolder.ID == "" {
		return "", services.Wrap(services.ErrNotFound, "session", "destination", "project has no root folder", nil)
	}
	return project.RootFolder.ID, nil
}

func findFolder(folder *api.Folder, id string) *api.Folder {
	if folder.ID == id {
		return folder
	}
	for i := range folder.Folders {
		if found := findFolder(&folder.Folders[i], id); found != nil {
			return found
		}
	}
	return nil
}

func (s *Session) resetLocked() {
	s.email = ""
	s.pair = TokenPair{}
	s.authenticated = false
	s.projectID = ""
	s.folderID = ""
	s.invalidateLocked()
}

func (s *Session) invalidateLocked() {
	s.cache = nil
	s.generation++
}

func (s *Session) stateLocked() State {
	return State{
		Email:     s.email,
		UserID:    s.pair.UserID,
		Token:     s.pair.Token,
		ProjectID: s.projectID,
		FolderID:  s.folderID,
	}
}

func (s *Session) persist(state State) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(state); err != nil {
		logging.WarnWithContext(s.logger, "failed to persist session", "session_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
		)
	}
}
