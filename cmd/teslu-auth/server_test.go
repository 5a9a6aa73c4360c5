// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teslu/teslu/internal/credentials"
	"github.com/teslu/teslu/internal/model"
)

var testClient = credentials.Client{ID: "client-id"}

type mockTokenService struct {
	mock.Mock
}

func (m *mockTokenService) AuthCodeURL(client credentials.Client, state string) string {
	return "https://auth.example.com/authorize?state=" + url.QueryEscape(state)
}

func (m *mockTokenService) Exchange(ctx context.Context, client credentials.Client, code string) (*oauth2.Token, error) {
	args := m.Called(client, code)
	tok, _ := args.Get(0).(*oauth2.Token)
	return tok, args.Error(1)
}

func (m *mockTokenService) Save(ctx context.Context, tok *oauth2.Token) error {
	return m.Called(tok).Error(0)
}

func noRedirect(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// login follows / and returns the issued state.
func login(t *testing.T, server *httptest.Server) string {
	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func callback(t *testing.T, server *httptest.Server, query url.Values) (*http.Response, map[string]interface{}) {
	resp, err := http.Get(server.URL + "/callback?" + query.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestCallbackStoresTokens(t *testing.T) {
	tokens := &mockTokenService{}
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	tokens.On("Exchange", testClient, "the-code").Return(tok, nil)
	tokens.On("Save", tok).Return(nil)

	s := newAuthServer(tokens, testClient, false)
	server := httptest.NewServer(s.routes())
	defer server.Close()

	state := login(t, server)
	resp, body := callback(t, server, url.Values{"state": {state}, "code": {"the-code"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["stored"])
	assert.NotContains(t, body, "refresh_token")
	tokens.AssertExpectations(t)

	select {
	case sum := <-s.done:
		assert.True(t, sum.Stored)
	default:
		t.Fatal("summary not delivered")
	}
}

func TestCallbackPrintOnly(t *testing.T) {
	tokens := &mockTokenService{}
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}
	tokens.On("Exchange", testClient, "the-code").Return(tok, nil)

	s := newAuthServer(tokens, testClient, true)
	server := httptest.NewServer(s.routes())
	defer server.Close()

	resp, body := callback(t, server, url.Values{"state": {login(t, server)}, "code": {"the-code"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["stored"])
	assert.Equal(t, "refresh", body["refresh_token"])
	tokens.AssertNotCalled(t, "Save", mock.Anything)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	tokens := &mockTokenService{}
	server := httptest.NewServer(newAuthServer(tokens, testClient, false).routes())
	defer server.Close()

	resp, body := callback(t, server, url.Values{"state": {"forged"}, "code": {"the-code"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(model.ErrorCodeExchangeFailed), body["errorType"])
	tokens.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
}

func TestStateIsSingleUse(t *testing.T) {
	tokens := &mockTokenService{}
	tokens.On("Exchange", testClient, "the-code").Return(&oauth2.Token{AccessToken: "access"}, nil)

	server := httptest.NewServer(newAuthServer(tokens, testClient, true).routes())
	defer server.Close()

	query := url.Values{"state": {login(t, server)}, "code": {"the-code"}}
	first, _ := callback(t, server, query)
	second, _ := callback(t, server, query)

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusBadRequest, second.StatusCode)
	tokens.AssertNumberOfCalls(t, "Exchange", 1)
}

func TestStateExpires(t *testing.T) {
	s := newAuthServer(&mockTokenService{}, testClient, false)
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.states["old"] = issued

	s.now = func() time.Time { return issued.Add(stateTTL) }
	assert.False(t, s.takeState("old"))
}

func TestCallbackAuthorizationDenied(t *testing.T) {
	server := httptest.NewServer(newAuthServer(&mockTokenService{}, testClient, false).routes())
	defer server.Close()

	resp, body := callback(t, server, url.Values{"error": {"access_denied"}, "error_description": {"user cancelled"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["errorMessage"], "access_denied")
}

func TestCallbackExchangeFailure(t *testing.T) {
	tokens := &mockTokenService{}
	tokens.On("Exchange", testClient, "bad").Return(nil, model.NewError(model.ErrorCodeExchangeFailed, model.WithErrorMessage("invalid_grant")))

	server := httptest.NewServer(newAuthServer(tokens, testClient, false).routes())
	defer server.Close()

	resp, body := callback(t, server, url.Values{"state": {login(t, server)}, "code": {"bad"}})

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, string(model.ErrorCodeExchangeFailed), body["errorType"])
}
