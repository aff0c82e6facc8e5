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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryMemoizesEngines(t *testing.T) {
	f := NewFactory(NopLogger())
	defer f.Close()

	cfg := sqliteConfig(t)
	a, err := f.Build(cfg)
	require.NoError(t, err)
	b, err := f.Build(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other := sqliteConfig(t)
	c, err := f.Build(other)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	require.NoError(t, f.Close())
	d, err := f.Build(cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
}

func TestFactoryKeysOnPoolSettings(t *testing.T) {
	f := NewFactory(NopLogger())
	defer f.Close()

	small := sqliteConfig(t)
	small.MaxOpenConns = 1
	large := small
	large.MaxOpenConns = 50

	a, err := f.Build(small)
	require.NoError(t, err)
	b, err := f.Build(large)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 1, a.Stats().MaxOpenConns)
	assert.Equal(t, 50, b.Stats().MaxOpenConns)
}

func TestFactoryReplacesClosedEngine(t *testing.T) {
	f := NewFactory(NopLogger())
	defer f.Close()

	cfg := sqliteConfig(t)
	a, err := f.Build(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.True(t, a.Closed())

	b, err := f.Build(cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.False(t, b.Closed())
	assert.NoError(t, b.Probe(context.Background()))
}

func TestFactoryRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(ConnectionConfig{Type: TypeMySQL})
	assert.ErrorIs(t, err, ErrConnectionConfig)
}

func TestNewEngineAppliesPoolDefaults(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.MaxOpenConns = 3
	cfg.ConnMaxLifetime = 0
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 3, e.Stats().MaxOpenConns)
	assert.Equal(t, TypeSQLite, e.Descriptor().Driver)
	assert.NotNil(t, e.Logger())
}
