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

package repository

import (
	"context"

	"github.com/tomoncle/loginsvc/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Source yields the query target for a call. *database.Session implements it,
// so repository statements join the session's transaction.
type Source interface {
	DB(ctx context.Context) (bun.IDB, error)
}

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	FindOne(ctx context.Context, filter *types.QueryFilter) (*T, error)

	Exists(ctx context.Context, filter *types.QueryFilter) (bool, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Create(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD and pagination and exposes the Bun query builders
// of the underlying source for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	Dialect(ctx context.Context) (schema.Dialect, error)
	NewSelect(ctx context.Context) (*bun.SelectQuery, error)
}
