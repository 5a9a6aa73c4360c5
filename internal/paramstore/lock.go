// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultLockPollInterval = 250 * time.Millisecond

// Lease is the value stored under a lock parameter.
type Lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lock is a lease lock on a single parameter. Acquisition is the
// create-if-absent write of Store.Put; a lease older than its TTL is
// considered abandoned and removed.
type Lock struct {
	store        Store
	name         string
	ttl          time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

func NewLock(store Store, name string, ttl time.Duration) *Lock {
	return &Lock{
		store:        store,
		name:         name,
		ttl:          ttl,
		pollInterval: defaultLockPollInterval,
		now:          time.Now,
	}
}

// Acquire blocks until the lock is held or ctx is done. The returned
// function releases the lock.
func (l *Lock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	owner := uuid.New().String()

	for {
		lease := Lease{Owner: owner, ExpiresAt: l.now().Add(l.ttl)}
		value, err := json.Marshal(lease)
		if err != nil {
			return nil, err
		}

		err = l.store.Put(ctx, l.name, string(value), false)
		if err == nil {
			log.WithField("lock", l.name).Debug("Lock acquired")
			return func(ctx context.Context) error { return l.release(ctx, owner) }, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("acquire %s: %w", l.name, err)
		}

		held, err := l.current(ctx)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return nil, fmt.Errorf("acquire %s: %w", l.name, err)
		case l.now().After(held.ExpiresAt):
			// The holder can race us here and lose a freshly taken lease;
			// the store has no conditional delete.
			log.WithField("lock", l.name).WithField("owner", held.Owner).Warn("Removing expired lease")
			if err := l.store.Delete(ctx, l.name); err != nil {
				return nil, fmt.Errorf("acquire %s: %w", l.name, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *Lock) current(ctx context.Context) (Lease, error) {
	p, err := Get(ctx, l.store, l.name)
	if err != nil {
		return Lease{}, err
	}

	var lease Lease
	if err := json.Unmarshal([]byte(p.Value), &lease); err != nil {
		// Unreadable leases never block forever.
		return Lease{}, nil
	}
	return lease, nil
}

func (l *Lock) release(ctx context.Context, owner string) error {
	held, err := l.current(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if held.Owner != owner {
		log.WithField("lock", l.name).Warn("Lease taken over by another owner, not releasing")
		return nil
	}
	return l.store.Delete(ctx, l.name)
}
