// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// teslu-auth runs the OAuth authorization-code flow once and stores the
// resulting refresh token where the Lambda function reads it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/teslu/teslu/internal/credentials"
	"github.com/teslu/teslu/internal/env"
	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/paramstore"
)

type authOptions struct {
	Listen       string `long:"listen" description:"address of the callback server (default $TESLU_AUTH_LISTEN or localhost:8080)"`
	RedirectURL  string `long:"redirect-url" env:"TESLU_REDIRECT_URL" description:"redirect URI registered for the application, defaults to http://<listen>/callback"`
	ClientID     string `long:"client-id" env:"TESLA_CLIENT_ID" description:"OAuth client id, read from the parameter store if empty"`
	ClientSecret string `long:"client-secret" env:"TESLA_CLIENT_SECRET" description:"OAuth client secret, read from the parameter store if empty"`
	PrintOnly    bool   `long:"print-only" description:"print the tokens instead of storing them"`
	SecretsFile  string `long:"secrets-file" env:"TESLU_SECRETS_FILE" description:"JSON file of parameters relative to the prefix, implies --print-only"`
}

func main() {
	opts, auth := getCLIArgs()
	logging.SetOutput(os.Stderr)
	if err := logging.SetLogLevel(opts.LogLevel, false); err != nil {
		log.WithError(err).Fatal("Failed to set log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if auth.SecretsFile != "" && !auth.PrintOnly {
		log.Info("Tokens are not written back to the secrets file, printing them instead")
		auth.PrintOnly = true
	}

	store, err := paramstore.Open(ctx, auth.SecretsFile, opts.ParameterPrefix)
	if err != nil {
		log.WithError(err).Fatal("Failed to open parameter store")
	}

	client, err := loadClient(ctx, store, opts.ParameterPrefix, auth)
	if err != nil {
		log.WithError(err).Fatal("Failed to load OAuth client")
	}

	manager := credentials.NewManager(credentials.Config{
		TokenURL:        opts.TokenURL(),
		AuthorizeURL:    opts.AuthorizeURL(),
		RedirectURL:     auth.RedirectURL,
		Audience:        opts.FleetBaseURL(),
		ParameterPrefix: opts.ParameterPrefix,
		HTTPClient:      &http.Client{Timeout: opts.HTTPTimeout},
	}, store)

	server := newAuthServer(manager, client, auth.PrintOnly)
	httpServer := &http.Server{Addr: auth.Listen, Handler: server.routes()}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Callback server failed")
		}
	}()
	log.Infof("Open http://%s/ in a browser to authorize the application", auth.Listen)

	select {
	case sum := <-server.done:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			log.WithError(err).Error("Failed to write token summary")
		}
	case <-ctx.Done():
		log.Info("Interrupted before authorization completed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down callback server")
	}
}

func getCLIArgs() (*env.Options, authOptions) {
	opts, rest, err := env.Parse(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}

	var auth authOptions
	if _, err := flags.NewParser(&auth, flags.Default).ParseArgs(rest); err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	if auth.Listen == "" {
		auth.Listen = env.GetenvWithDefault("TESLU_AUTH_LISTEN", "localhost:8080")
	}
	if auth.RedirectURL == "" {
		auth.RedirectURL = "http://" + auth.Listen + "/callback"
	}
	return opts, auth
}

// loadClient fills in the client credentials missing from the command line
// from the parameter store.
func loadClient(ctx context.Context, store paramstore.Store, prefix string, auth authOptions) (credentials.Client, error) {
	client := credentials.Client{ID: auth.ClientID, Secret: auth.ClientSecret}
	if client.ID != "" {
		return client, nil
	}

	idName := paramstore.Join(prefix, paramstore.ClientIDName)
	secretName := paramstore.Join(prefix, paramstore.ClientSecretName)
	params, err := store.GetParameters(ctx, []string{idName, secretName})
	if err != nil {
		return client, err
	}

	client.ID = strings.TrimSpace(params[idName].Value)
	if client.Secret == "" {
		client.Secret = strings.TrimSpace(params[secretName].Value)
	}
	if client.ID == "" {
		return client, errors.New("no client id: set --client-id or " + idName)
	}
	return client, nil
}
