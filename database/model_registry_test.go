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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type untagged struct {
	ID int64
}

func TestSchemaRegistryOrdersByPriority(t *testing.T) {
	type first struct {
		bun.BaseModel `bun:"table:first_things"`
		ID            int64 `bun:",pk"`
	}
	type second struct {
		bun.BaseModel `bun:"table:second_things"`
		ID            int64 `bun:",pk"`
	}

	reg := NewSchemaRegistry()
	require.NoError(t, reg.Register(NewEntity((*part)(nil), 10)))
	require.NoError(t, reg.Register(NewEntity((*widget)(nil), 0)))
	require.NoError(t, reg.Register(NewEntity((*first)(nil), 10)))
	require.NoError(t, reg.Register(NewEntity(&second{}, 5)))

	assert.Equal(t, []string{"widgets", "second_things", "parts", "first_things"}, reg.Tables())
	assert.Equal(t, 4, reg.Len())
}

func TestSchemaRegistryRejectsDuplicatesAndBadModels(t *testing.T) {
	reg := NewSchemaRegistry()
	require.NoError(t, reg.Register(NewEntity((*widget)(nil), 0)))

	err := reg.Register(NewEntity(&widget{}, 1))
	assert.ErrorIs(t, err, ErrDuplicateEntity)

	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(NewEntity(nil, 0)))
	assert.Error(t, reg.Register(NewEntity(&untagged{}, 0)))
	assert.Error(t, reg.Register(NewEntity((*part)(nil), 0,
		WithForeignKeys(ForeignKey{Column: "widget_id", ReferenceTable: "widgets", ReferenceColumn: "id", OnDelete: "EXPLODE"}),
	)))
	assert.Error(t, reg.Register(NewEntity((*part)(nil), 0, WithIndexes(Index{Name: "idx"}))))

	assert.Equal(t, []string{"widgets"}, reg.Tables())
}

func TestResolveTableName(t *testing.T) {
	name, err := resolveTableName((*part)(nil))
	require.NoError(t, err)
	assert.Equal(t, "parts", name)

	_, err = resolveTableName(42)
	assert.Error(t, err)
}

func TestForeignKeyValidate(t *testing.T) {
	fk := ForeignKey{Column: "user_id", ReferenceTable: "users", ReferenceColumn: "id", OnDelete: "set null"}
	assert.NoError(t, fk.Validate())
	assert.Equal(t, "user_id -> users(id) ON DELETE SET NULL", fk.String())

	assert.Error(t, ForeignKey{ReferenceTable: "users", ReferenceColumn: "id"}.Validate())
	assert.Error(t, ForeignKey{Column: "user_id", ReferenceColumn: "id"}.Validate())
	assert.Error(t, ForeignKey{Column: "user_id", ReferenceTable: "users"}.Validate())
	assert.Error(t, ForeignKey{Column: "user_id", ReferenceTable: "users", ReferenceColumn: "id", OnUpdate: "DROP"}.Validate())
}
