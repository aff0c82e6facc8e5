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
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Index is a secondary index created after its table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Entity is one registered table with its creation extras.
type Entity struct {
	instance    interface{}
	priority    int
	table       string
	foreignKeys []ForeignKey
	indexes     []Index
}

type EntityOption func(*Entity)

// WithForeignKeys declares constraints emitted inline in CREATE TABLE.
func WithForeignKeys(fks ...ForeignKey) EntityOption {
	return func(e *Entity) { e.foreignKeys = append(e.foreignKeys, fks...) }
}

// WithIndexes declares indexes created once the table exists.
func WithIndexes(idx ...Index) EntityOption {
	return func(e *Entity) { e.indexes = append(e.indexes, idx...) }
}

func NewEntity(instance interface{}, priority int, opts ...EntityOption) *Entity {
	e := &Entity{instance: instance, priority: priority}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Entity) Instance() interface{} { return e.instance }

func (e *Entity) Priority() int { return e.priority }

// Table is the resolved table name, empty until the entity is registered.
func (e *Entity) Table() string { return e.table }

func (e *Entity) ForeignKeys() []ForeignKey { return e.foreignKeys }

func (e *Entity) Indexes() []Index { return e.indexes }

// SchemaRegistry is the explicit set of entities whose tables the bootstrap
// procedure materializes. Owning packages register into it; nothing is
// registered at import time.
type SchemaRegistry struct {
	mu       sync.RWMutex
	entities []*Entity
	tables   map[string]struct{}
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{tables: make(map[string]struct{})}
}

// Register adds an entity. Registering a second entity for the same table
// fails with ErrDuplicateEntity.
func (r *SchemaRegistry) Register(e *Entity) error {
	if e == nil || e.instance == nil {
		return errors.New("register entity: nil model")
	}
	table, err := resolveTableName(e.instance)
	if err != nil {
		return fmt.Errorf("register entity %T: %w", e.instance, err)
	}
	for _, fk := range e.foreignKeys {
		if err := fk.Validate(); err != nil {
			return fmt.Errorf("register entity %q: %w", table, err)
		}
	}
	for _, idx := range e.indexes {
		if idx.Name == "" || len(idx.Columns) == 0 {
			return fmt.Errorf("register entity %q: index needs a name and at least one column", table)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[table]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntity, table)
	}
	e.table = table
	r.tables[table] = struct{}{}
	r.entities = append(r.entities, e)
	return nil
}

// Entities returns a snapshot ordered by priority, ties keeping registration order.
func (r *SchemaRegistry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entity, len(r.entities))
	copy(result, r.entities)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].priority < result[j].priority
	})
	return result
}

// Tables returns the table names in creation order.
func (r *SchemaRegistry) Tables() []string {
	entities := r.Entities()
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.table
	}
	return names
}

func (r *SchemaRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func resolveTableName(model interface{}) (string, error) {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("model must be a struct or struct pointer, got %s", t.Kind())
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Name() == "BaseModel" && strings.Contains(f.Type.PkgPath(), "uptrace/bun") {
			tag := f.Tag.Get("bun")
			for _, part := range strings.Split(tag, ",") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "table:") {
					name := strings.TrimPrefix(part, "table:")
					if j := strings.IndexByte(name, ' '); j >= 0 {
						name = name[:j]
					}
					return name, nil
				}
			}
		}
	}
	return "", fmt.Errorf("missing table tag on bun.BaseModel")
}
