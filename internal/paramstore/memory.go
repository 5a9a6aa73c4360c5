// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// MemoryStore keeps parameters in process memory. It backs local runs and
// tests.
type MemoryStore struct {
	mutex  sync.Mutex
	params map[string]Parameter
	now    func() time.Time
}

func NewMemoryStore(values map[string]string) *MemoryStore {
	s := &MemoryStore{
		params: make(map[string]Parameter, len(values)),
		now:    time.Now,
	}
	for name, value := range values {
		s.params[name] = Parameter{Name: name, Value: value, Version: 1, LastModified: s.now()}
	}
	return s
}

// LoadMemoryStore seeds a MemoryStore from a JSON object of parameter
// names relative to prefix, e.g. {"vin": "...", "home/latitude": "..."}.
func LoadMemoryStore(filename, prefix string) (*MemoryStore, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var relative map[string]string
	if err := json.Unmarshal(data, &relative); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	values := make(map[string]string, len(relative))
	for name, value := range relative {
		values[Join(prefix, name)] = value
	}
	return NewMemoryStore(values), nil
}

func (s *MemoryStore) GetParameters(ctx context.Context, names []string) (map[string]Parameter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res := make(map[string]Parameter, len(names))
	for _, name := range names {
		if p, ok := s.params[name]; ok {
			res[name] = p
		}
	}
	return res, nil
}

func (s *MemoryStore) Put(ctx context.Context, name, value string, overwrite bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.params[name]
	if ok && !overwrite {
		return ErrAlreadyExists
	}
	s.params[name] = Parameter{Name: name, Value: value, Version: existing.Version + 1, LastModified: s.now()}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.params, name)
	return nil
}

// Value returns the current value of name.
func (s *MemoryStore) Value(name string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.params[name]
	return p.Value, ok
}
