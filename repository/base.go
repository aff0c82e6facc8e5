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

type baseRepositoryImpl[T any] struct {
	src Source
}

// NewRepository returns a generic repository running its statements on src.
func NewRepository[T any](src Source) Repository[T] {
	return &baseRepositoryImpl[T]{src: src}
}

// Static adapts a plain bun.IDB (a *bun.DB or bun.Tx) to Source.
func Static(db bun.IDB) Source { return staticSource{db} }

type staticSource struct{ db bun.IDB }

func (s staticSource) DB(context.Context) (bun.IDB, error) { return s.db, nil }

func (r *baseRepositoryImpl[T]) Dialect(ctx context.Context) (schema.Dialect, error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.Dialect(), nil
}

func (r *baseRepositoryImpl[T]) NewSelect(ctx context.Context) (*bun.SelectQuery, error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.NewSelect(), nil
}

func (r *baseRepositoryImpl[T]) ValsToSlice(entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	return r.FindOne(ctx, types.NewQueryFilter("?TableAlias.id = ?", id))
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, filter *types.QueryFilter) (*T, error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return nil, err
	}
	var entity T
	query := db.NewSelect().Model(&entity)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return false, err
	}
	query := db.NewSelect().Model((*T)(nil))
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	return query.Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return 0, err
	}
	query := db.NewSelect().Model((*T)(nil))
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	return query.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	db, err := r.src.DB(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	query := db.NewSelect().Model(&entities)
	if pageRequest.GetFilter() != nil {
		query = query.Where(pageRequest.GetFilter().Schema, pageRequest.GetFilter().Args...)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.SetTotal(total)
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	db, err := r.src.DB(ctx)
	if err != nil {
		return err
	}
	if len(entity) == 1 {
		_, err = db.NewInsert().Model(entity[0]).Exec(ctx)
		return err
	}
	entities := r.ValsToSlice(entity...)
	_, err = db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	db, err := r.src.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}
