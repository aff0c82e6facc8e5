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

package auth

import (
	"time"

	"github.com/tomoncle/loginsvc/database"
	"github.com/uptrace/bun"
)

// User is an account that can log in.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	Username       string    `bun:"username,notnull,unique,type:varchar(50)" json:"username"`
	Email          string    `bun:"email,notnull,unique,type:varchar(255)" json:"email"`
	FullName       string    `bun:"full_name,type:varchar(100)" json:"full_name"`
	HashedPassword string    `bun:"hashed_password,notnull,type:varchar(255)" json:"-"`
	IsActive       bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// LoginEvent records one login attempt against a known user.
type LoginEvent struct {
	bun.BaseModel `bun:"table:login_events,alias:le"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	Success   bool      `bun:"success,notnull" json:"success"`
	ClientIP  string    `bun:"client_ip,type:varchar(64)" json:"client_ip"`
	UserAgent string    `bun:"user_agent,type:varchar(255)" json:"user_agent"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RegisterSchema adds the auth tables to reg.
func RegisterSchema(reg *database.SchemaRegistry) error {
	if err := reg.Register(database.NewEntity((*User)(nil), 0)); err != nil {
		return err
	}
	return reg.Register(database.NewEntity((*LoginEvent)(nil), 10,
		database.WithForeignKeys(database.ForeignKey{
			Column:          "user_id",
			ReferenceTable:  "users",
			ReferenceColumn: "id",
			OnDelete:        "CASCADE",
		}),
		database.WithIndexes(database.Index{
			Name:    "idx_login_events_user_id",
			Columns: []string{"user_id", "created_at"},
		}),
	))
}
