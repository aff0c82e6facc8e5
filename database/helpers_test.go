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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type part struct {
	bun.BaseModel `bun:"table:parts,alias:p"`

	ID       int64  `bun:"id,pk,autoincrement"`
	WidgetID int64  `bun:"widget_id,notnull"`
	Label    string `bun:"label"`
}

func sqliteConfig(t *testing.T) ConnectionConfig {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.Type = TypeSQLite
	cfg.DBName = filepath.Join(t.TempDir(), "loginsvc_test")
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(sqliteConfig(t), NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newTestRegistry(t *testing.T) *SchemaRegistry {
	t.Helper()
	reg := NewSchemaRegistry()
	require.NoError(t, reg.Register(NewEntity((*widget)(nil), 0,
		WithIndexes(Index{Name: "idx_widgets_name", Columns: []string{"name"}}),
	)))
	require.NoError(t, reg.Register(NewEntity((*part)(nil), 10,
		WithForeignKeys(ForeignKey{Column: "widget_id", ReferenceTable: "widgets", ReferenceColumn: "id", OnDelete: "CASCADE"}),
	)))
	return reg
}

func newMaterializedEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.MaterializeSchema(ctx, newTestRegistry(t)))
	return e
}

func countWidgets(t *testing.T, ctx context.Context, sess *Session) int {
	t.Helper()
	idb, err := sess.DB(ctx)
	require.NoError(t, err)
	n, err := idb.NewSelect().Model((*widget)(nil)).Count(ctx)
	require.NoError(t, err)
	return n
}

func insertWidget(t *testing.T, ctx context.Context, sess *Session, name string) {
	t.Helper()
	idb, err := sess.DB(ctx)
	require.NoError(t, err)
	_, err = idb.NewInsert().Model(&widget{Name: name}).Exec(ctx)
	require.NoError(t, err)
}
