// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/teslu/teslu/internal/model"
)

// Parameter names relative to the configured prefix.
const (
	ClientIDName      = "client_id"
	ClientSecretName  = "client_secret"
	RefreshTokenName  = "refresh_token"
	AccessTokenName   = "access_token"
	PrivateKeyName    = "private_key"
	VINName           = "vin"
	HomeLatitudeName  = "home/latitude"
	HomeLongitudeName = "home/longitude"
	HomeRadiusName    = "home/effective_radius"
	RefreshLockName   = "lock/token-refresh"
)

var requiredSecrets = []string{ClientIDName, VINName, HomeLatitudeName, HomeLongitudeName, HomeRadiusName}
var optionalSecrets = []string{ClientSecretName, PrivateKeyName}

// Secrets holds the static settings of the function. The OAuth tokens are
// owned by the credentials package and are not part of it.
type Secrets struct {
	ClientID     string
	ClientSecret string
	PrivateKey   string
	VIN          string

	HomeLatitude  float64
	HomeLongitude float64
	HomeRadius    float64
}

// LoadSecrets fetches all settings under prefix in as few calls as the
// store allows.
func LoadSecrets(ctx context.Context, store Store, prefix string) (*Secrets, error) {
	names := make([]string, 0, len(requiredSecrets)+len(optionalSecrets))
	for _, name := range append(append([]string{}, requiredSecrets...), optionalSecrets...) {
		names = append(names, Join(prefix, name))
	}

	params, err := store.GetParameters(ctx, names)
	if err != nil {
		return nil, model.Wrap(err, model.ErrorParameterStore)
	}

	values := make(map[string]string, len(params))
	for name, p := range params {
		values[Relative(prefix, name)] = strings.TrimSpace(p.Value)
	}

	var missing []string
	for _, name := range requiredSecrets {
		if values[name] == "" {
			missing = append(missing, Join(prefix, name))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, model.NewError(model.ErrorMissingParameter,
			model.WithSeverity(model.ErrorSeverityFatal),
			model.WithErrorMessage(strings.Join(missing, ", ")))
	}

	secrets := &Secrets{
		ClientID:     values[ClientIDName],
		ClientSecret: values[ClientSecretName],
		PrivateKey:   values[PrivateKeyName],
		VIN:          values[VINName],
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{HomeLatitudeName, &secrets.HomeLatitude},
		{HomeLongitudeName, &secrets.HomeLongitude},
		{HomeRadiusName, &secrets.HomeRadius},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(values[f.name], 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = fmt.Errorf("%s is not a finite number", values[f.name])
		}
		if err != nil {
			return nil, model.NewError(model.ErrorInvalidParameter,
				model.WithSeverity(model.ErrorSeverityFatal),
				model.WithErrorMessage(Join(prefix, f.name)),
				model.WithCause(err))
		}
		*f.dst = v
	}

	if secrets.HomeRadius <= 0 {
		return nil, model.NewError(model.ErrorInvalidParameter,
			model.WithSeverity(model.ErrorSeverityFatal),
			model.WithErrorMessage(fmt.Sprintf("%s must be positive", Join(prefix, HomeRadiusName))))
	}

	return secrets, nil
}
