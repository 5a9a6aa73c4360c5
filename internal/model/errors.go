// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ErrorSeverity string

const (
	ErrorSeverityError   ErrorSeverity = "Error"
	ErrorSeverityFatal   ErrorSeverity = "Fatal"
	ErrorSeverityInvalid ErrorSeverity = "Invalid"
)

type ErrorType string

const (
	ErrorInvalidEvent     ErrorType = "Sentry.InvalidEvent"
	ErrorMissingParameter ErrorType = "Config.MissingParameter"
	ErrorInvalidParameter ErrorType = "Config.InvalidParameter"
	ErrorParameterStore   ErrorType = "Config.ParameterStoreError"

	ErrorRefreshTokenRejected ErrorType = "Auth.RefreshTokenRejected"
	ErrorRefreshFailed        ErrorType = "Auth.RefreshFailed"
	ErrorCodeExchangeFailed   ErrorType = "Auth.CodeExchangeFailed"

	ErrorVehicleUnreachable ErrorType = "Vehicle.Unreachable"
	ErrorVehicleAPI         ErrorType = "Vehicle.APIError"
	ErrorCommandFailed      ErrorType = "Vehicle.CommandFailed"

	ErrorUnknown ErrorType = "Unknown"
)

func (e ErrorType) String() string {
	return string(e)
}

// AppError is returned from every failing invocation. The Lambda runtime
// reports Error() as the errorMessage of the invoke error response.
type AppError interface {
	error

	Severity() ErrorSeverity

	ErrorType() ErrorType

	Unwrap() error

	ErrorDetails() string
}

type appError struct {
	cause     error
	severity  ErrorSeverity
	errorType ErrorType

	errorMessage string
}

func (e *appError) Severity() ErrorSeverity {
	return e.severity
}

func (e *appError) ErrorType() ErrorType {
	return e.errorType
}

func (e *appError) ErrorDetails() string {
	msg := e.errorMessage
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	errorDetails, err := json.Marshal(FunctionError{
		Type:    e.errorType,
		Message: msg,
	})
	if err != nil {
		return fmt.Sprintf(`{"errorType":%q}`, e.errorType)
	}
	return string(errorDetails)
}

func (e *appError) Unwrap() error {
	return e.cause
}

func (e *appError) Error() string {
	switch {
	case e.cause == nil && e.errorMessage == "":
		return string(e.errorType)
	case e.cause == nil:
		return string(e.errorType) + ": " + e.errorMessage
	case e.errorMessage == "":
		return string(e.errorType) + ": " + e.cause.Error()
	default:
		return string(e.errorType) + ": " + e.errorMessage + ": " + e.cause.Error()
	}
}

type ErrorOption func(err *appError)

func WithErrorMessage(msg string) ErrorOption {
	return func(err *appError) {
		err.errorMessage = msg
	}
}

func WithSeverity(sev ErrorSeverity) ErrorOption {
	return func(err *appError) {
		err.severity = sev
	}
}

func WithCause(cause error) ErrorOption {
	return func(err *appError) {
		err.cause = cause
	}
}

func NewError(errorType ErrorType, opts ...ErrorOption) AppError {
	err := &appError{
		severity:  ErrorSeverityError,
		errorType: errorType,
	}
	for _, option := range opts {
		option(err)
	}
	return err
}

// WrapInvalid marks e as caused by bad input. An error that is already an
// AppError is returned unchanged.
func WrapInvalid(e error, errorType ErrorType) AppError {
	var appErr AppError
	if errors.As(e, &appErr) {
		return appErr
	}
	return NewError(errorType, WithCause(e), WithSeverity(ErrorSeverityInvalid))
}

// WrapFatal marks e as needing manual intervention before the next invocation
// can succeed.
func WrapFatal(e error, errorType ErrorType) AppError {
	var appErr AppError
	if errors.As(e, &appErr) {
		return appErr
	}
	return NewError(errorType, WithCause(e), WithSeverity(ErrorSeverityFatal))
}

func Wrap(e error, errorType ErrorType) AppError {
	var appErr AppError
	if errors.As(e, &appErr) {
		return appErr
	}
	return NewError(errorType, WithCause(e))
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) ErrorType {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.ErrorType()
	}
	return ErrorUnknown
}

type FunctionError struct {
	Type ErrorType `json:"errorType,omitempty"`

	Message string `json:"errorMessage,omitempty"`
}
