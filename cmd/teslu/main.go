// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/teslu/teslu/internal/credentials"
	"github.com/teslu/teslu/internal/env"
	"github.com/teslu/teslu/internal/fleet"
	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/paramstore"
	"github.com/teslu/teslu/internal/sentry"
)

// localOptions drive a single invocation from the command line.
type localOptions struct {
	Local       bool   `long:"local" description:"run one invocation instead of starting the Lambda runtime"`
	Sentry      string `long:"sentry" default:"on" description:"target sentry mode state of a local run"`
	VIN         string `long:"vin" description:"vehicle of a local run, overrides the stored VIN"`
	SecretsFile string `long:"secrets-file" env:"TESLU_SECRETS_FILE" description:"JSON file of parameters relative to the prefix, used instead of SSM"`
}

func main() {
	opts, local := getCLIArgs()
	if err := configureLogging(opts, os.Stderr); err != nil {
		log.WithError(err).Fatal("Failed to set log level")
	}

	ctx := context.Background()
	store, err := openStore(ctx, opts, local)
	if err != nil {
		log.WithError(err).Fatal("Failed to open parameter store")
	}

	handler := newHandler(opts, store)
	if !local.Local {
		lambda.Start(handler.Invoke)
		return
	}

	state, err := json.Marshal(local.Sentry)
	if err != nil {
		log.WithError(err).Fatal("Failed to build event")
	}
	event, err := json.Marshal(sentry.Event{Sentry: state, VIN: local.VIN})
	if err != nil {
		log.WithError(err).Fatal("Failed to build event")
	}
	res, err := handler.Invoke(ctx, event)
	if err != nil {
		os.Exit(1)
	}
	if err := writeResult(os.Stdout, res); err != nil {
		log.WithError(err).Fatal("Failed to write result")
	}
}

// configureLogging sends the standard library logger and logrus to w.
func configureLogging(opts *env.Options, w io.Writer) error {
	logging.SetOutput(w)
	return logging.SetLogLevel(opts.LogLevel, env.IsLambda())
}

func openStore(ctx context.Context, opts *env.Options, local localOptions) (paramstore.Store, error) {
	if local.SecretsFile != "" {
		log.WithField("file", local.SecretsFile).Warn("Rotated refresh tokens are kept in memory only and not written back to the secrets file")
	}
	return paramstore.Open(ctx, local.SecretsFile, opts.ParameterPrefix)
}

func writeResult(w io.Writer, res *sentry.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func getCLIArgs() (*env.Options, localOptions) {
	opts, rest, err := env.Parse(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}

	var local localOptions
	if _, err := flags.NewParser(&local, flags.Default).ParseArgs(rest); err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	return opts, local
}

func newHandler(opts *env.Options, store paramstore.Store) *sentry.Handler {
	httpClient := &http.Client{Timeout: opts.HTTPTimeout}

	tokens := credentials.NewManager(credentials.Config{
		TokenURL:        opts.TokenURL(),
		AuthorizeURL:    opts.AuthorizeURL(),
		Audience:        opts.FleetBaseURL(),
		ParameterPrefix: opts.ParameterPrefix,
		LockTTL:         opts.RefreshLockTTL,
		HTTPClient:      httpClient,
	}, store)
	client := fleet.NewClient(opts.FleetBaseURL(), httpClient)

	return sentry.NewHandler(sentry.Config{
		ParameterPrefix:  opts.ParameterPrefix,
		WakeRounds:       opts.WakeRounds,
		WakePollInterval: opts.WakePollInterval,
		WakeTimeout:      opts.WakeTimeout,
	}, store, tokens, client, commanders(opts, client))
}

// commanders signs commands locally when a private key is stored. A
// configured Fleet URL is taken to be a signing proxy.
func commanders(opts *env.Options, client *fleet.Client) sentry.CommanderFunc {
	return func(secrets *paramstore.Secrets) fleet.Commander {
		if secrets.PrivateKey != "" && opts.FleetURL == "" {
			return fleet.NewSignedCommander(secrets.PrivateKey, env.TempDir())
		}
		return client
	}
}
