// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/model"
)

// AuthCodeURL is the page the user opens to grant access. state is echoed
// back to the redirect URL.
func (m *Manager) AuthCodeURL(client Client, state string) string {
	return m.oauthConfig(client).AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt_missing_scopes", "true"),
	)
}

// Exchange trades an authorization code for a token pair. The token is not
// stored; see Save.
func (m *Manager) Exchange(ctx context.Context, client Client, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, model.NewError(model.ErrorCodeExchangeFailed,
			model.WithSeverity(model.ErrorSeverityInvalid),
			model.WithErrorMessage("empty authorization code"))
	}

	logging.FromContext(ctx).Info("Exchanging authorization code")
	tok, err := m.oauthConfig(client).Exchange(m.httpContext(ctx), code,
		oauth2.SetAuthURLParam("audience", m.config.Audience),
	)
	if err != nil {
		return nil, classifyTokenError(err, model.ErrorCodeExchangeFailed, model.ErrorCodeExchangeFailed)
	}
	return tok, nil
}
