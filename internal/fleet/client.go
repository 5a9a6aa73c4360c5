// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/teslu/teslu/internal/model"
)

const (
	// UserAgent is sent with every Fleet API request.
	UserAgent = "teslu/1.0"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4096
)

// APIError is a non-2xx answer of the Fleet API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Commander issues the sentry mode command.
type Commander interface {
	SetSentryMode(ctx context.Context, token, vin string, on bool) (*CommandResult, error)
}

// Client is a REST client of the Fleet API. Commands sent through it are
// unsigned; point the base URL at a command signing proxy for vehicles that
// require signed commands.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Vehicle returns the vehicle summary. It does not wake the vehicle.
func (c *Client) Vehicle(ctx context.Context, token, vin string) (*Vehicle, error) {
	var v Vehicle
	if err := c.do(ctx, http.MethodGet, vehiclePath(vin, ""), token, nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// WakeUp asks the vehicle to connect. The returned summary reflects the
// state at the time of the request, usually not yet online.
func (c *Client) WakeUp(ctx context.Context, token, vin string) (*Vehicle, error) {
	var v Vehicle
	if err := c.do(ctx, http.MethodPost, vehiclePath(vin, "wake_up"), token, nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// VehicleData returns live data for the requested endpoints. The vehicle
// must be online.
func (c *Client) VehicleData(ctx context.Context, token, vin string, endpoints ...string) (*VehicleData, error) {
	query := url.Values{}
	if len(endpoints) > 0 {
		query.Set("endpoints", strings.Join(endpoints, ";"))
	}

	var data VehicleData
	if err := c.do(ctx, http.MethodGet, vehiclePath(vin, "vehicle_data"), token, query, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) SetSentryMode(ctx context.Context, token, vin string, on bool) (*CommandResult, error) {
	var res CommandResult
	if err := c.do(ctx, http.MethodPost, vehiclePath(vin, "command/set_sentry_mode"), token, nil, sentryModeRequest{On: on}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func vehiclePath(vin, action string) string {
	p := "/api/1/vehicles/" + url.PathEscape(vin)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := log.WithField("method", method).WithField("path", path)
	logger.Debug("Fleet API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage(method+" "+path), model.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		logger.WithField("status", resp.StatusCode).Debug("Fleet API error")
		if apiErr.StatusCode == http.StatusRequestTimeout {
			return model.NewError(model.ErrorVehicleUnreachable, model.WithCause(apiErr))
		}
		return model.NewError(model.ErrorVehicleAPI, model.WithCause(apiErr))
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage("decode "+path), model.WithCause(err))
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage(fmt.Sprintf("%s %s: empty response %s", method, path, env.Error)))
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage("decode "+path), model.WithCause(err))
	}
	return nil
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	var env envelope[json.RawMessage]
	if err := json.Unmarshal(data, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(data))
}

// IsUnauthorized reports whether err is the API rejecting the access token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
