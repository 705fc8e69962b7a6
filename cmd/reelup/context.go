package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelup/internal/api"
	"reelup/internal/config"
	"reelup/internal/deps"
	"reelup/internal/logging"
	"reelup/internal/session"
	"reelup/internal/transcode"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	// Replaced in tests.
	openBrowser func(string) error
	newEncoder  func() transcode.Encoder
	checkTools  func() []deps.Status
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		newEncoder: func() transcode.Encoder { return transcode.NewLibrary() },
		checkTools: func() []deps.Status { return deps.Check(deps.EncoderRequirements()) },
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) apiClient() (*config.Config, *api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, api.NewFromConfig(cfg, c.loggerValue()), nil
}

// openSession restores the persisted session. Browser logins print the
// authorization URL to out so it can be opened by hand.
func (c *commandContext) openSession(out io.Writer) (*session.Session, *api.Client, error) {
	cfg, client, err := c.apiClient()
	if err != nil {
		return nil, nil, err
	}
	var opts []session.Option
	if cfg.DelegatedLoginEnabled() {
		delegatedOpts := []session.DelegatedOption{
			session.WithDelegatedLogger(c.loggerValue()),
			session.WithAuthURLHook(func(url string) {
				fmt.Fprintf(out, "If the browser does not open, visit:\n  %s\n", url)
			}),
		}
		if c.openBrowser != nil {
			delegatedOpts = append(delegatedOpts, session.WithBrowserOpener(c.openBrowser))
		}
		opts = append(opts, session.WithStrategy(session.ProviderDelegated,
			session.NewDelegatedLogin(session.DelegatedConfigFrom(cfg), delegatedOpts...)))
	}
	sess := session.NewFromConfig(cfg, client, c.loggerValue(), opts...)
	if _, err := sess.Restore(); err != nil {
		logging.WarnWithContext(c.loggerValue(), "failed to restore session", "session_restore_failed", logging.Error(err))
	}
	return sess, client, nil
}

func (c *commandContext) requireSession(cmd *cobra.Command) (*session.Session, *api.Client, error) {
	sess, client, err := c.openSession(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	if !sess.Authenticated() {
		return nil, nil, errors.New("not logged in; run `reelup login` first")
	}
	return sess, client, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
