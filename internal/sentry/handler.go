// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sentry turns sentry mode on or off in response to geofence and
// schedule events.
package sentry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	log "github.com/sirupsen/logrus"

	"github.com/teslu/teslu/internal/credentials"
	"github.com/teslu/teslu/internal/fleet"
	"github.com/teslu/teslu/internal/geo"
	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/model"
	"github.com/teslu/teslu/internal/paramstore"
)

// TokenProvider hands out Fleet API access tokens.
type TokenProvider interface {
	Token(ctx context.Context, client credentials.Client) (string, error)
	// Invalidate drops a token the API rejected.
	Invalidate()
}

// Vehicles reads vehicle state.
type Vehicles interface {
	Vehicle(ctx context.Context, token, vin string) (*fleet.Vehicle, error)
	WakeUp(ctx context.Context, token, vin string) (*fleet.Vehicle, error)
	VehicleData(ctx context.Context, token, vin string, endpoints ...string) (*fleet.VehicleData, error)
}

// CommanderFunc picks how the command is delivered for the loaded secrets.
type CommanderFunc func(secrets *paramstore.Secrets) fleet.Commander

type Config struct {
	ParameterPrefix string

	// WakeRounds is the number of wake_up requests sent to a sleeping
	// vehicle. Zero disables waking.
	WakeRounds       int
	WakePollInterval time.Duration
	WakeTimeout      time.Duration
}

type Handler struct {
	config     Config
	store      paramstore.Store
	tokens     TokenProvider
	vehicles   Vehicles
	commanders CommanderFunc

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewHandler(config Config, store paramstore.Store, tokens TokenProvider, vehicles Vehicles, commanders CommanderFunc) *Handler {
	return &Handler{
		config:     config,
		store:      store,
		tokens:     tokens,
		vehicles:   vehicles,
		commanders: commanders,
		now:        time.Now,
		sleep:      sleep,
	}
}

// Invoke is the Lambda entry point.
func (h *Handler) Invoke(ctx context.Context, event json.RawMessage) (*Result, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = logging.WithRequestID(ctx, lc.AwsRequestID)
	}

	req, err := ParseEvent(event)
	if err != nil {
		logging.Err(ctx, "Rejected event", err)
		return nil, err
	}

	res, err := h.Handle(ctx, req)
	if err != nil {
		logging.Err(ctx, "Sentry mode toggle failed", err)
		return nil, err
	}

	logging.FromContext(ctx).WithFields(log.Fields{
		"status":     res.Status,
		"sentryMode": res.SentryMode,
		"reason":     res.Reason,
	}).Info("Sentry mode toggle done")
	return res, nil
}

// Handle applies req to the configured vehicle.
func (h *Handler) Handle(ctx context.Context, req Request) (*Result, error) {
	secrets, err := paramstore.LoadSecrets(ctx, h.store, h.config.ParameterPrefix)
	if err != nil {
		return nil, err
	}

	vin := secrets.VIN
	if req.VIN != "" {
		vin = req.VIN
	}
	ctx = logging.WithFields(ctx, log.Fields{"vin": vin, "target": req.State()})
	logger := logging.FromContext(ctx)

	token, err := h.tokens.Token(ctx, credentials.Client{ID: secrets.ClientID, Secret: secrets.ClientSecret})
	if err != nil {
		return nil, err
	}

	if err := h.ensureOnline(ctx, token, vin); err != nil {
		return nil, h.checkToken(err)
	}

	data, err := h.vehicles.VehicleData(ctx, token, vin,
		fleet.EndpointLocationData, fleet.EndpointVehicleState, fleet.EndpointDriveState)
	if err != nil {
		return nil, h.checkToken(err)
	}

	home := geo.Geofence{
		Center: geo.Point{Latitude: secrets.HomeLatitude, Longitude: secrets.HomeLongitude},
		Radius: secrets.HomeRadius,
	}
	if reason := skipReason(req.Enable, data, home); reason != "" {
		logger.WithField("reason", reason).Info("Skipping sentry mode command")
		return skipped(data.VehicleState.SentryMode, reason), nil
	}

	logger.Info("Sending set_sentry_mode")
	res, err := h.commanders(secrets).SetSentryMode(ctx, token, vin, req.Enable)
	if err != nil {
		return nil, h.checkToken(model.Wrap(err, model.ErrorVehicleAPI))
	}
	if !res.Result {
		return nil, model.NewError(model.ErrorCommandFailed, model.WithErrorMessage(res.Reason))
	}
	return success(req.Enable), nil
}

// skipReason returns why the command must not be sent, or "" if it should.
func skipReason(enable bool, data *fleet.VehicleData, home geo.Geofence) string {
	switch {
	case data.InService:
		return ReasonInService
	case !data.VehicleState.SentryModeAvailable:
		return ReasonUnavailable
	case data.VehicleState.SentryMode == enable:
		return ReasonAlreadySet
	case !data.DriveState.Parked():
		return ReasonNotParked
	}

	if !enable {
		at := geo.Point{Latitude: data.DriveState.Latitude, Longitude: data.DriveState.Longitude}
		if !home.Contains(at) {
			return ReasonNotAtHome
		}
	}
	return ""
}

// ensureOnline wakes the vehicle if it is asleep. Each round sends one
// wake_up and polls the vehicle summary until it is online or the round
// times out.
func (h *Handler) ensureOnline(ctx context.Context, token, vin string) error {
	logger := logging.FromContext(ctx)

	v, err := h.vehicles.Vehicle(ctx, token, vin)
	if err != nil {
		return err
	}

	for round := 1; !v.Online() && round <= h.config.WakeRounds; round++ {
		logger.WithField("state", v.State).WithField("round", round).Info("Waking vehicle")
		if _, err := h.vehicles.WakeUp(ctx, token, vin); err != nil {
			return err
		}

		start := h.now()
		for !v.Online() && h.now().Sub(start) < h.config.WakeTimeout {
			if err := h.sleep(ctx, h.config.WakePollInterval); err != nil {
				return model.NewError(model.ErrorVehicleUnreachable, model.WithErrorMessage("waiting for vehicle"), model.WithCause(err))
			}
			if v, err = h.vehicles.Vehicle(ctx, token, vin); err != nil {
				return err
			}
		}
	}

	if !v.Online() {
		return model.NewError(model.ErrorVehicleUnreachable,
			model.WithErrorMessage(fmt.Sprintf("vehicle is %s after %d wake_up requests", v.State, h.config.WakeRounds)))
	}
	return nil
}

// checkToken drops the cached access token if the API rejected it.
func (h *Handler) checkToken(err error) error {
	if fleet.IsUnauthorized(err) {
		h.tokens.Invalidate()
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
