// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/model"
	"github.com/teslu/teslu/internal/paramstore"
)

const (
	defaultLockTTL = 30 * time.Second

	// defaultRefreshTimeout bounds a shared token load including the wait
	// for the refresh lock.
	defaultRefreshTimeout = 2 * time.Minute
)

// DefaultScopes are requested by the authorization-code flow.
var DefaultScopes = []string{
	"openid",
	"offline_access",
	"vehicle_device_data",
	"vehicle_location",
	"vehicle_cmds",
	"vehicle_charging_cmds",
}

// Config describes the authorization server and where tokens are kept.
type Config struct {
	TokenURL     string
	AuthorizeURL string
	RedirectURL  string
	// Audience is the Fleet API base URL the tokens are issued for.
	Audience string
	Scopes   []string

	ParameterPrefix string
	LockTTL         time.Duration

	HTTPClient *http.Client
}

// Manager hands out access tokens. A token is taken from memory, then from
// the store, and only then refreshed. Refreshes are serialized within the
// process and, through a lease lock in the store, across invocations.
type Manager struct {
	config Config
	store  paramstore.Store
	lock   *paramstore.Lock
	group  singleflight.Group
	now    func() time.Time

	refreshTimeout time.Duration

	mutex  sync.Mutex
	cached AccessToken
}

func NewManager(config Config, store paramstore.Store) *Manager {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaultLockTTL
	}
	return &Manager{
		config: config,
		store:  store,
		lock:   paramstore.NewLock(store, paramstore.Join(config.ParameterPrefix, paramstore.RefreshLockName), config.LockTTL),
		now:    time.Now,

		refreshTimeout: defaultRefreshTimeout,
	}
}

// Token returns an access token valid for at least the expiry margin.
func (m *Manager) Token(ctx context.Context, client Client) (string, error) {
	if tok, ok := m.fromMemory(); ok {
		logging.FromContext(ctx).Debug("Using access token cached in memory")
		return tok.AccessToken, nil
	}

	// Waiting callers share the load, so it outlives a cancelled caller.
	ch := m.group.DoChan("token", func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.load(shared, client)
	})

	select {
	case <-ctx.Done():
		return "", model.NewError(model.ErrorRefreshFailed, model.WithCause(ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(AccessToken).AccessToken, nil
	}
}

func (m *Manager) fromMemory() (AccessToken, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.cached, m.cached.Valid(m.now())
}

func (m *Manager) remember(tok AccessToken) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cached = tok
}

// Invalidate drops the in-memory token, e.g. after the API rejected it.
func (m *Manager) Invalidate() {
	m.remember(AccessToken{})
}

func (m *Manager) load(ctx context.Context, client Client) (AccessToken, error) {
	logger := logging.FromContext(ctx)

	if tok, ok := m.fromStore(ctx); ok {
		logger.Debug("Using access token cached in the parameter store")
		m.remember(tok)
		return tok, nil
	}

	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return AccessToken{}, model.Wrap(err, model.ErrorParameterStore)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to release token refresh lock")
		}
	}()

	// A concurrent invocation may have refreshed while we waited.
	if tok, ok := m.fromStore(ctx); ok {
		logger.Debug("Access token refreshed by a concurrent invocation")
		m.remember(tok)
		return tok, nil
	}

	tok, err := m.refresh(ctx, client)
	if err != nil {
		return AccessToken{}, err
	}
	m.remember(tok)
	return tok, nil
}

func (m *Manager) fromStore(ctx context.Context) (AccessToken, bool) {
	p, err := paramstore.Get(ctx, m.store, m.name(paramstore.AccessTokenName))
	if err != nil {
		if !errors.Is(err, paramstore.ErrNotFound) {
			logging.FromContext(ctx).WithError(err).Warn("Failed to read cached access token")
		}
		return AccessToken{}, false
	}
	tok, ok := unmarshalAccessToken(p.Value)
	if !ok {
		return AccessToken{}, false
	}
	return tok, tok.Valid(m.now())
}

func (m *Manager) refresh(ctx context.Context, client Client) (AccessToken, error) {
	logger := logging.FromContext(ctx)

	p, err := paramstore.Get(ctx, m.store, m.name(paramstore.RefreshTokenName))
	if errors.Is(err, paramstore.ErrNotFound) || (err == nil && p.Value == "") {
		return AccessToken{}, model.NewError(model.ErrorMissingParameter,
			model.WithSeverity(model.ErrorSeverityFatal),
			model.WithErrorMessage(m.name(paramstore.RefreshTokenName)))
	}
	if err != nil {
		return AccessToken{}, model.Wrap(err, model.ErrorParameterStore)
	}

	logger.Info("Refreshing access token")
	conf := m.oauthConfig(Client{ID: client.ID})
	tok, err := conf.TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: p.Value}).Token()
	if err != nil {
		return AccessToken{}, classifyTokenError(err, model.ErrorRefreshTokenRejected, model.ErrorRefreshFailed)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != p.Value {
		if err := m.store.Put(ctx, m.name(paramstore.RefreshTokenName), tok.RefreshToken, true); err != nil {
			// The old refresh token may already be revoked; the next
			// invocation will need the browser flow again.
			logger.WithError(err).Error("Failed to persist rotated refresh token")
		} else {
			logger.Debug("Persisted rotated refresh token")
		}
	}

	return m.persistAccessToken(ctx, tok), nil
}

func (m *Manager) persistAccessToken(ctx context.Context, tok *oauth2.Token) AccessToken {
	access := AccessToken{AccessToken: tok.AccessToken, ExpiresAt: expiryOf(tok)}
	if access.ExpiresAt.IsZero() {
		logging.FromContext(ctx).Warn("Access token expiry unknown, not caching it")
		return access
	}

	value, err := access.marshal()
	if err == nil {
		err = m.store.Put(ctx, m.name(paramstore.AccessTokenName), value, true)
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to cache access token")
	} else {
		logging.FromContext(ctx).WithField("expiresAt", access.ExpiresAt).Debug("Cached access token")
	}
	return access
}

// Save stores a token pair obtained outside of Token, i.e. by the
// authorization-code flow.
func (m *Manager) Save(ctx context.Context, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		return model.NewError(model.ErrorCodeExchangeFailed, model.WithErrorMessage("no refresh token issued, is offline_access granted?"))
	}
	if err := m.store.Put(ctx, m.name(paramstore.RefreshTokenName), tok.RefreshToken, true); err != nil {
		return model.Wrap(err, model.ErrorParameterStore)
	}
	m.remember(m.persistAccessToken(ctx, tok))
	return nil
}

func (m *Manager) name(elem string) string {
	return paramstore.Join(m.config.ParameterPrefix, elem)
}

func (m *Manager) oauthConfig(client Client) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.config.AuthorizeURL,
			TokenURL:  m.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: m.config.RedirectURL,
		Scopes:      m.config.Scopes,
	}
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.config.HTTPClient)
}

// classifyTokenError separates a rejected grant, which needs the browser
// flow again, from transient failures.
func classifyTokenError(err error, rejected, failed model.ErrorType) model.AppError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		log.WithField("status", status).WithField("errorCode", retrieveErr.ErrorCode).Debug("Token endpoint rejected request")

		if retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.ErrorCode == "unauthorized_client" || status == http.StatusUnauthorized {
			return model.WrapFatal(err, rejected)
		}
	}
	return model.Wrap(err, failed)
}
