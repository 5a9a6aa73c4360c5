// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teslu/teslu/internal/credentials"
	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/model"
)

// stateTTL bounds how long a login may take.
const stateTTL = 10 * time.Minute

type tokenService interface {
	AuthCodeURL(client credentials.Client, state string) string
	Exchange(ctx context.Context, client credentials.Client, code string) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// summary is rendered once the authorization code was exchanged.
type summary struct {
	Stored    bool       `json:"stored"`
	Subject   string     `json:"subject,omitempty"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Only set with --print-only.
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type authServer struct {
	tokens    tokenService
	client    credentials.Client
	printOnly bool
	now       func() time.Time

	mutex  sync.Mutex
	states map[string]time.Time

	done chan *summary
}

func newAuthServer(tokens tokenService, client credentials.Client, printOnly bool) *authServer {
	return &authServer{
		tokens:    tokens,
		client:    client,
		printOnly: printOnly,
		now:       time.Now,
		states:    make(map[string]time.Time),
		done:      make(chan *summary, 1),
	}
}

func (s *authServer) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Get("/", s.login)
	router.Get("/callback", s.callback)
	return router
}

func (s *authServer) login(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()

	s.mutex.Lock()
	s.states[state] = s.now()
	s.mutex.Unlock()

	http.Redirect(w, r, s.tokens.AuthCodeURL(s.client, state), http.StatusFound)
}

// takeState consumes state. Each state is good for one callback.
func (s *authServer) takeState(state string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	issued, ok := s.states[state]
	delete(s.states, state)
	return ok && s.now().Sub(issued) < stateTTL
}

func (s *authServer) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if code := query.Get("error"); code != "" {
		renderError(w, r, http.StatusBadRequest, model.NewError(model.ErrorCodeExchangeFailed,
			model.WithSeverity(model.ErrorSeverityInvalid),
			model.WithErrorMessage(code+": "+query.Get("error_description"))))
		return
	}

	if !s.takeState(query.Get("state")) {
		renderError(w, r, http.StatusBadRequest, model.NewError(model.ErrorCodeExchangeFailed,
			model.WithSeverity(model.ErrorSeverityInvalid),
			model.WithErrorMessage("unknown or expired state")))
		return
	}

	tok, err := s.tokens.Exchange(ctx, s.client, query.Get("code"))
	if err != nil {
		logging.Err(ctx, "Authorization code exchange failed", err)
		renderError(w, r, statusOf(err), err)
		return
	}

	sum := newSummary(tok)
	if s.printOnly {
		sum.AccessToken = tok.AccessToken
		sum.RefreshToken = tok.RefreshToken
	} else {
		if err := s.tokens.Save(ctx, tok); err != nil {
			logging.Err(ctx, "Failed to store tokens", err)
			renderError(w, r, http.StatusInternalServerError, err)
			return
		}
		sum.Stored = true
	}

	render.JSON(w, r, sum)

	select {
	case s.done <- sum:
	default:
	}
}

func newSummary(tok *oauth2.Token) *summary {
	sum := &summary{}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		sum.ExpiresAt = &expiry
	}

	claims, err := credentials.ParseClaims(tok.AccessToken)
	if err != nil {
		return sum
	}
	sum.Subject = claims.Subject
	sum.Scopes = claims.Scopes
	if sum.ExpiresAt == nil && claims.Expiry != nil {
		expiry := claims.Expiry.Time()
		sum.ExpiresAt = &expiry
	}
	return sum
}

// statusOf maps an exchange failure to the status of the callback.
func statusOf(err error) int {
	var appErr model.AppError
	if errors.As(err, &appErr) && appErr.Severity() == model.ErrorSeverityInvalid {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	render.JSON(w, r, &model.FunctionError{
		Type:    model.TypeOf(err),
		Message: err.Error(),
	})
}
