// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sentry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/teslu/teslu/internal/model"
)

// Event is the invocation payload, either sent directly or as the detail
// of an EventBridge event.
type Event struct {
	Sentry json.RawMessage `json:"sentry"`
	VIN    string          `json:"vin,omitempty"`
}

// Request is a validated Event.
type Request struct {
	Enable bool
	// VIN overrides the stored vehicle if set.
	VIN string
}

// State renders the target state the way it is reported back.
func (r Request) State() string {
	return stateName(r.Enable)
}

func stateName(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

var stateSpellings = map[string]bool{
	"on":       true,
	"true":     true,
	"enable":   true,
	"enabled":  true,
	"off":      false,
	"false":    false,
	"disable":  false,
	"disabled": false,
}

// ParseEvent validates raw and returns the requested state.
func ParseEvent(raw []byte) (Request, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Request{}, invalidEvent("empty event")
	}

	if detail, ok := eventBridgeDetail(raw); ok {
		raw = detail
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Request{}, model.WrapInvalid(err, model.ErrorInvalidEvent)
	}

	enable, err := parseState(ev.Sentry)
	if err != nil {
		return Request{}, err
	}

	vin := strings.ToUpper(strings.TrimSpace(ev.VIN))
	if vin != "" && len(vin) != 17 {
		return Request{}, invalidEvent(fmt.Sprintf("vin %q must have 17 characters", ev.VIN))
	}

	return Request{Enable: enable, VIN: vin}, nil
}

// eventBridgeDetail unwraps the detail of an EventBridge event.
func eventBridgeDetail(raw []byte) (json.RawMessage, bool) {
	var ev events.CloudWatchEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, false
	}
	if ev.DetailType == "" || ev.Source == "" || len(ev.Detail) == 0 {
		return nil, false
	}
	return ev.Detail, true
}

func parseState(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, invalidEvent(`missing "sentry" state`)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, invalidEvent(fmt.Sprintf(`"sentry" must be a string or boolean, got %s`, raw))
	}
	enable, ok := stateSpellings[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return false, invalidEvent(fmt.Sprintf("invalid target Sentry Mode state %q", s))
	}
	return enable, nil
}

func invalidEvent(msg string) model.AppError {
	return model.NewError(model.ErrorInvalidEvent,
		model.WithSeverity(model.ErrorSeverityInvalid),
		model.WithErrorMessage(msg))
}
