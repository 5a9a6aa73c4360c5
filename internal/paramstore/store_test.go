// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndRelative(t *testing.T) {
	assert.Equal(t, "/teslu/vin", Join("/teslu", "vin"))
	assert.Equal(t, "/teslu/home/latitude", Join("/teslu/", "home/latitude"))
	assert.Equal(t, "/teslu", Join("/teslu"))
	assert.Equal(t, "home/latitude", Relative("/teslu", "/teslu/home/latitude"))
}

func TestMemoryStorePutWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	require.NoError(t, s.Put(ctx, "/a", "1", false))
	assert.ErrorIs(t, s.Put(ctx, "/a", "2", false), ErrAlreadyExists)

	p, err := Get(ctx, s, "/a")
	require.NoError(t, err)
	assert.Equal(t, "1", p.Value)
	assert.Equal(t, int64(1), p.Version)
}

func TestMemoryStoreOverwriteBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]string{"/a": "1"})

	require.NoError(t, s.Put(ctx, "/a", "2", true))

	p, err := Get(ctx, s, "/a")
	require.NoError(t, err)
	assert.Equal(t, "2", p.Value)
	assert.Equal(t, int64(2), p.Version)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]string{"/a": "1"})

	require.NoError(t, s.Delete(ctx, "/a"))
	require.NoError(t, s.Delete(ctx, "/a"))

	_, err := Get(ctx, s, "/a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetParametersSkipsAbsentNames(t *testing.T) {
	s := NewMemoryStore(map[string]string{"/a": "1"})

	params, err := s.GetParameters(context.Background(), []string{"/a", "/b"})
	require.NoError(t, err)
	assert.Len(t, params, 1)
	assert.Equal(t, "1", params["/a"].Value)
}

func TestLoadMemoryStore(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"vin":"5YJ3E1EA7KF000000","home/latitude":"1.5"}`), 0o600))

	s, err := LoadMemoryStore(filename, "/teslu")
	require.NoError(t, err)

	v, ok := s.Value("/teslu/vin")
	assert.True(t, ok)
	assert.Equal(t, "5YJ3E1EA7KF000000", v)
	v, ok = s.Value("/teslu/home/latitude")
	assert.True(t, ok)
	assert.Equal(t, "1.5", v)
}

func TestLoadMemoryStoreRejectsInvalidJSON(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(filename, []byte(`["vin"]`), 0o600))

	_, err := LoadMemoryStore(filename, "/teslu")
	assert.Error(t, err)
}

func TestOpenWithSecretsFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"client_id":"abc"}`), 0o600))

	s, err := Open(context.Background(), filename, "/teslu")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	p, err := Get(context.Background(), s, "/teslu/client_id")
	require.NoError(t, err)
	assert.Equal(t, "abc", p.Value)
}
