// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"context"
	"errors"
	"io"
	stdlog "log"

	log "github.com/sirupsen/logrus"

	"github.com/teslu/teslu/internal/model"
)

const RequestIDField = "requestId"

type loggerKey int

const (
	ctxLoggerKey loggerKey = iota
)

// SetOutput configures logging output for standard loggers.
func SetOutput(w io.Writer) {
	stdlog.SetOutput(w)
	log.SetOutput(w)
}

// SetLogLevel parses logLevel and applies it to the standard logrus logger.
// CloudWatch ingests one JSON object per line, so jsonFormat is set when
// running inside Lambda.
func SetLogLevel(logLevel string, jsonFormat bool) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	log.SetLevel(level)
	if jsonFormat {
		log.SetFormatter(&log.JSONFormatter{DisableHTMLEscape: true})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func WithFields(ctx context.Context, fields log.Fields) context.Context {
	entry := FromContext(ctx).WithFields(fields)
	return context.WithValue(ctx, ctxLoggerKey, entry)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return WithFields(ctx, log.Fields{RequestIDField: requestID})
}

func FromContext(ctx context.Context) *log.Entry {
	if entry, ok := ctx.Value(ctxLoggerKey).(*log.Entry); ok {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}

// Err logs an invocation failure. Invalid input is logged as a warning, any
// other failure as an error.
func Err(ctx context.Context, msg string, err error) {
	entry := FromContext(ctx).WithError(err).WithField("errorType", model.TypeOf(err))

	var appErr model.AppError
	if errors.As(err, &appErr) && appErr.Severity() == model.ErrorSeverityInvalid {
		entry.Warn(msg)
		return
	}
	entry.Error(msg)
}
