/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// MaintenanceKey is the settings row holding the maintenance flag
const MaintenanceKey = "maintenance_mode"

// Snapshot is an immutable view of the runtime settings. Version increases
// by one on every change so readers can tell two snapshots apart.
type Snapshot struct {
	Maintenance bool
	Version     int64
	UpdatedAt   time.Time
	UpdatedBy   int64
}

// Runtime holds settings that administrators may change while the store is
// serving. Readers load the current snapshot atomically; writers persist
// first and then publish a new snapshot.
type Runtime struct {
	store   store.SettingsStore
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// NewRuntime loads persisted settings, falling back to defaultMaintenance
// when the store has no value yet.
func NewRuntime(ctx context.Context, settingsStore store.SettingsStore, defaultMaintenance bool) (*Runtime, error) {
	r := &Runtime{store: settingsStore}
	r.current.Store(&Snapshot{Maintenance: defaultMaintenance, UpdatedAt: time.Now().UTC()})

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) Current() Snapshot {
	return *r.current.Load()
}

func (r *Runtime) Maintenance() bool {
	return r.current.Load().Maintenance
}

// SetMaintenance persists the flag and publishes a new snapshot. actor is
// the administrator making the change, 0 for the system.
func (r *Runtime) SetMaintenance(ctx context.Context, enabled bool, actor int64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SetSetting(ctx, MaintenanceKey, strconv.FormatBool(enabled)); err != nil {
		return r.Current(), fmt.Errorf("failed to persist maintenance mode: %w", err)
	}

	previous := r.current.Load()
	next := &Snapshot{
		Maintenance: enabled,
		Version:     previous.Version + 1,
		UpdatedAt:   time.Now().UTC(),
		UpdatedBy:   actor,
	}
	r.current.Store(next)

	zap.L().Info("Maintenance mode changed",
		zap.Bool("enabled", enabled),
		zap.Int64("actor", actor),
		zap.Int64("version", next.Version))
	return *next, nil
}

// Reload re-reads persisted settings, picking up changes made by another
// process such as the admin CLI.
func (r *Runtime) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok, err := r.store.GetSetting(ctx, MaintenanceKey)
	if err != nil {
		return fmt.Errorf("failed to load maintenance mode: %w", err)
	}
	if !ok {
		return nil
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid persisted maintenance mode %q: %w", value, err)
	}

	previous := r.current.Load()
	if previous.Maintenance == enabled && previous.Version > 0 {
		return nil
	}
	r.current.Store(&Snapshot{
		Maintenance: enabled,
		Version:     previous.Version + 1,
		UpdatedAt:   time.Now().UTC(),
	})
	zap.L().Info("Maintenance mode loaded", zap.Bool("enabled", enabled))
	return nil
}
