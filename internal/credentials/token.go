// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"encoding/json"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

// expiryMargin keeps a token from being used if it expires during the
// invocation.
const expiryMargin = time.Minute

var parseAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.ES256, jose.ES384,
	jose.EdDSA, jose.HS256,
}

// Client identifies the OAuth application registered with the manufacturer.
type Client struct {
	ID     string
	Secret string
}

// AccessToken is the cached access token as persisted in the store.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(expiryMargin).Before(t.ExpiresAt)
}

func (t AccessToken) marshal() (string, error) {
	data, err := json.Marshal(t)
	return string(data), err
}

func unmarshalAccessToken(value string) (AccessToken, bool) {
	var t AccessToken
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return AccessToken{}, false
	}
	return t, true
}

// Claims are the access token claims we look at.
type Claims struct {
	jwt.Claims
	Scopes []string `json:"scp,omitempty"`
}

// ParseClaims decodes the claims of a JWT access token. The signature is not
// verified.
func ParseClaims(raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, parseAlgorithms)
	if err != nil {
		return nil, err
	}
	var claims Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// expiryOf returns the expiry reported by the token endpoint, or the exp
// claim when expires_in was absent. Zero means unknown.
func expiryOf(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	claims, err := ParseClaims(tok.AccessToken)
	if err != nil || claims.Expiry == nil {
		return time.Time{}
	}
	return claims.Expiry.Time()
}
