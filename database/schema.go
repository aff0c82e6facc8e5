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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// MaterializeSchema creates every registered table that does not exist yet,
// in priority order, followed by its indexes. Existing tables are left as they
// are; nothing is altered or dropped. The first failure aborts with a
// *SchemaCreationError.
func MaterializeSchema(ctx context.Context, db bun.IDB, reg *SchemaRegistry, logger Logger) error {
	logger = orNop(logger)
	for _, entity := range reg.Entities() {
		q := db.NewCreateTable().
			Model(entity.Instance()).
			IfNotExists()
		for _, fk := range entity.ForeignKeys() {
			q = fk.apply(q)
		}
		if _, err := q.Exec(ctx); err != nil {
			if ok, kind := IsSqlError(err); !ok || kind != ExistTableErr {
				return &SchemaCreationError{Table: entity.Table(), Err: err}
			}
		}
		for _, idx := range entity.Indexes() {
			if err := createIndex(ctx, db, entity, idx); err != nil {
				return &SchemaCreationError{Table: entity.Table(), Err: err}
			}
		}
		logger.Debug("Table ensured", "table", entity.Table())
	}
	return nil
}

func createIndex(ctx context.Context, db bun.IDB, entity *Entity, idx Index) error {
	q := db.NewCreateIndex().
		Model(entity.Instance()).
		Index(idx.Name).
		Column(idx.Columns...)
	if idx.Unique {
		q = q.Unique()
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if db.Dialect().Name() != dialect.MySQL {
		q = q.IfNotExists()
	}
	if _, err := q.Exec(ctx); err != nil {
		if ok, kind := IsSqlError(err); ok && kind == ExistIndexErr {
			return nil
		}
		return err
	}
	return nil
}
