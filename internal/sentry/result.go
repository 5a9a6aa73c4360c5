// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sentry

type Status string

const (
	StatusSuccess Status = "Success"
	StatusSkipped Status = "Skipped"
)

// Reasons reported with a Skipped result.
const (
	ReasonInService   = "vehicle is in service"
	ReasonUnavailable = "sentry mode is not available"
	ReasonAlreadySet  = "sentry mode is already in the requested state"
	ReasonNotParked   = "vehicle is not in park"
	ReasonNotAtHome   = "vehicle is not at home"
	reasonCommandSent = "set_sentry_mode accepted"
)

// Result is returned from a successful invocation.
type Result struct {
	Status     Status `json:"status"`
	SentryMode string `json:"sentry_mode"`
	Reason     string `json:"reason,omitempty"`
}

func success(on bool) *Result {
	return &Result{Status: StatusSuccess, SentryMode: stateName(on), Reason: reasonCommandSent}
}

// skipped reports the state the vehicle was found in.
func skipped(current bool, reason string) *Result {
	return &Result{Status: StatusSkipped, SentryMode: stateName(current), Reason: reason}
}
