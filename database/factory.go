/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"sync"
)

// Factory builds engines and memoizes them by configuration, so building the
// same configuration twice yields the same *Engine. Pool settings are part of
// the key; an engine closed behind the factory's back is replaced.
type Factory struct {
	mu      sync.Mutex
	engines map[ConnectionConfig]*Engine
	logger  Logger
}

func NewFactory(logger Logger) *Factory {
	return &Factory{engines: make(map[ConnectionConfig]*Engine), logger: orNop(logger)}
}

// Build returns the engine for cfg, creating it on first use.
func (f *Factory) Build(cfg ConnectionConfig) (*Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.engines[cfg]; ok {
		if !e.Closed() {
			return e, nil
		}
		delete(f.engines, cfg)
	}
	e, err := NewEngine(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.engines[cfg] = e
	f.logger.Info("Database engine ready", "url", e.Descriptor().String())
	return e, nil
}

// Close closes every engine built so far and forgets them.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for cfg, e := range f.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(f.engines, cfg)
	}
	return errors.Join(errs...)
}
