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
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/loginsvc/database"
)

var testHasher = Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

const testSecret = "test-secret-0123456789abcdef"

func newTestEngine(t *testing.T) *database.Engine {
	t.Helper()
	cfg := database.ConnectionConfig{Type: database.TypeSQLite, DBName: filepath.Join(t.TempDir(), "auth")}
	e, err := database.NewEngine(cfg, database.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	reg := database.NewSchemaRegistry()
	require.NoError(t, RegisterSchema(reg))
	require.NoError(t, e.MaterializeSchema(context.Background(), reg))
	return e
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(testHasher, NewTokenIssuer(testSecret, 15*time.Minute, "loginsvc"), nil)
	require.NoError(t, err)
	return svc
}

func registerUser(t *testing.T, e *database.Engine, svc *Service, username, password string) *User {
	t.Helper()
	sess := e.NewSession()
	defer sess.Close()
	user, err := svc.Register(context.Background(), sess, RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		FullName: "Test " + username,
	})
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	return user
}
