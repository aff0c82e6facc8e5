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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type brokenModel struct {
	bun.BaseModel `bun:"table:broken"`

	ID int64 `bun:"id,pk,type:NOT A TYPE("`
}

func tableExists(t *testing.T, ctx context.Context, e *Engine, table string) bool {
	t.Helper()
	var n int
	err := e.DB().NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &n)
	require.NoError(t, err)
	return n == 1
}

func TestMaterializeSchemaCreatesTablesAndIndexes(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)

	assert.True(t, tableExists(t, ctx, e, "widgets"))
	assert.True(t, tableExists(t, ctx, e, "parts"))

	var n int
	err := e.DB().NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = ?", "idx_widgets_name").Scan(ctx, &n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var ddl string
	err = e.DB().NewRaw("SELECT sql FROM sqlite_master WHERE name = ?", "parts").Scan(ctx, &ddl)
	require.NoError(t, err)
	assert.Contains(t, ddl, "FOREIGN KEY")
	assert.Contains(t, ddl, "ON DELETE CASCADE")
}

func TestMaterializeSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)
	reg := newTestRegistry(t)

	sess := e.NewSession()
	insertWidget(t, ctx, sess, "flange")
	require.NoError(t, sess.Commit())
	require.NoError(t, sess.Close())

	require.NoError(t, e.MaterializeSchema(ctx, reg))
	require.NoError(t, e.MaterializeSchema(ctx, reg))

	check := e.NewSession()
	defer check.Close()
	assert.Equal(t, 1, countWidgets(t, ctx, check), "existing rows must survive")
}

func TestMaterializeSchemaEmptyRegistry(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.MaterializeSchema(context.Background(), NewSchemaRegistry()))
}

func TestMaterializeSchemaReportsFailingTable(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	reg := NewSchemaRegistry()
	require.NoError(t, reg.Register(NewEntity((*widget)(nil), 0)))
	require.NoError(t, reg.Register(NewEntity((*brokenModel)(nil), 1)))

	err := e.MaterializeSchema(ctx, reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaCreation))

	var schemaErr *SchemaCreationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "broken", schemaErr.Table)
	assert.True(t, tableExists(t, ctx, e, "widgets"))
}
