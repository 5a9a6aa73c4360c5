// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/teslamotors/vehicle-command/pkg/account"
	"github.com/teslamotors/vehicle-command/pkg/protocol"

	"github.com/teslu/teslu/internal/logging"
	"github.com/teslu/teslu/internal/model"
)

// SignedCommander sends commands over the Vehicle Command Protocol, signed
// with the key registered for the application.
type SignedCommander struct {
	privateKey []byte
	tempDir    string
}

// NewSignedCommander takes the PEM encoded private key. The key is written
// to a file below tempDir for the duration of each command only.
func NewSignedCommander(privateKeyPEM string, tempDir string) *SignedCommander {
	return &SignedCommander{
		privateKey: []byte(privateKeyPEM),
		tempDir:    tempDir,
	}
}

func (s *SignedCommander) SetSentryMode(ctx context.Context, token, vin string, on bool) (*CommandResult, error) {
	logger := logging.FromContext(ctx)

	keyPath, cleanup, err := s.writeKey()
	if err != nil {
		return nil, model.NewError(model.ErrorInvalidParameter, model.WithErrorMessage("private key"), model.WithCause(err))
	}
	defer cleanup()

	key, err := protocol.LoadPrivateKey(keyPath)
	if err != nil {
		return nil, model.NewError(model.ErrorInvalidParameter,
			model.WithSeverity(model.ErrorSeverityFatal),
			model.WithErrorMessage("private key"),
			model.WithCause(err))
	}

	acct, err := account.New(token, UserAgent)
	if err != nil {
		return nil, model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage("fleet account"), model.WithCause(err))
	}

	car, err := acct.GetVehicle(ctx, vin, key, nil)
	if err != nil {
		return nil, model.NewError(model.ErrorVehicleAPI, model.WithErrorMessage("get vehicle"), model.WithCause(err))
	}

	if err := car.Connect(ctx); err != nil {
		return nil, model.NewError(model.ErrorVehicleUnreachable, model.WithCause(err))
	}
	defer car.Disconnect()

	if err := car.StartSession(ctx, nil); err != nil {
		return nil, model.NewError(model.ErrorVehicleUnreachable, model.WithErrorMessage("start session"), model.WithCause(err))
	}

	logger.WithField("on", on).Debug("Sending signed set_sentry_mode")
	return commandOutcome(ctx, car.SetSentryMode(ctx, on))
}

// commandOutcome separates a command the vehicle refused from one that
// never reached it.
func commandOutcome(ctx context.Context, err error) (*CommandResult, error) {
	if err == nil {
		return &CommandResult{Result: true}, nil
	}

	var netErr net.Error
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return nil, model.NewError(model.ErrorVehicleUnreachable, model.WithErrorMessage("set_sentry_mode"), model.WithCause(err))
	}
	return &CommandResult{Result: false, Reason: err.Error()}, nil
}

func (s *SignedCommander) writeKey() (string, func(), error) {
	if err := os.MkdirAll(s.tempDir, 0o700); err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp(s.tempDir, "private_key-*.pem")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to remove private key file")
		}
	}

	if _, err := f.Write(s.privateKey); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write private key: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write private key: %w", err)
	}
	return f.Name(), cleanup, nil
}
