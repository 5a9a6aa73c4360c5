// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var (
	// ErrAlreadyExists is returned by Put without overwrite when the
	// parameter is present.
	ErrAlreadyExists = errors.New("parameter already exists")
	// ErrNotFound is returned by Get when the parameter is absent.
	ErrNotFound = errors.New("parameter not found")
)

// Parameter is a single stored value.
type Parameter struct {
	Name         string
	Value        string
	Version      int64
	LastModified time.Time
}

// Store is the secret store holding the OAuth credential, the vehicle
// settings and the refresh lock. Names are absolute paths.
type Store interface {
	// GetParameters returns the parameters that exist among names, keyed by
	// name. Absent names are not an error.
	GetParameters(ctx context.Context, names []string) (map[string]Parameter, error)

	// Put writes value under name as an encrypted parameter. With overwrite
	// false the write only succeeds if name does not exist yet, otherwise
	// ErrAlreadyExists is returned.
	Put(ctx context.Context, name, value string, overwrite bool) error

	// Delete removes name. Deleting an absent parameter is not an error.
	Delete(ctx context.Context, name string) error
}

// Get returns a single parameter or ErrNotFound.
func Get(ctx context.Context, s Store, name string) (Parameter, error) {
	params, err := s.GetParameters(ctx, []string{name})
	if err != nil {
		return Parameter{}, err
	}
	p, ok := params[name]
	if !ok {
		return Parameter{}, ErrNotFound
	}
	return p, nil
}

// Join builds a parameter name below prefix.
func Join(prefix string, elem ...string) string {
	return path.Join(append([]string{"/", prefix}, elem...)...)
}

// Relative strips prefix from name.
func Relative(prefix, name string) string {
	return strings.TrimPrefix(strings.TrimPrefix(name, Join(prefix)), "/")
}

// Open returns a MemoryStore seeded from secretsFile if it is set, and an
// SSMStore otherwise.
func Open(ctx context.Context, secretsFile, prefix string) (Store, error) {
	if secretsFile != "" {
		s, err := LoadMemoryStore(secretsFile, prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := NewSSMStore(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
