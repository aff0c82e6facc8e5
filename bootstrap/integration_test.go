//go:build integration

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

package bootstrap

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tomoncle/loginsvc/database"
)

const containerPassword = "integration-secret"

type containerSpec struct {
	name    string
	typ     string
	image   string
	port    string
	env     map[string]string
	user    string
	waitFor wait.Strategy
}

var containers = []containerSpec{
	{
		name:  "mysql",
		typ:   database.TypeMySQL,
		image: "mysql:8.0",
		port:  "3306/tcp",
		env:   map[string]string{"MYSQL_ROOT_PASSWORD": containerPassword},
		user:  "root",
		waitFor: wait.ForAll(
			wait.ForLog("ready for connections").WithOccurrence(2),
			wait.ForListeningPort("3306/tcp"),
		).WithDeadline(3 * time.Minute),
	},
	{
		name:  "postgres",
		typ:   database.TypePostgres,
		image: "postgres:16-alpine",
		port:  "5432/tcp",
		env:   map[string]string{"POSTGRES_USER": "test", "POSTGRES_PASSWORD": containerPassword, "POSTGRES_DB": "postgres"},
		user:  "test",
		waitFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	},
}

func startDatabase(t *testing.T, spec containerSpec) database.ConnectionConfig {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{spec.port},
			Env:          spec.env,
			WaitingFor:   spec.waitFor,
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate %s container: %v", spec.name, err)
		}
	})

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := database.DefaultConnectionConfig()
	cfg.Type = spec.typ
	cfg.Host = host
	cfg.Port = port
	cfg.Username = spec.user
	cfg.Password = containerPassword
	cfg.DBName = "login_it"
	return cfg
}

func TestBootstrapAgainstServers(t *testing.T) {
	for _, spec := range containers {
		t.Run(spec.name, func(t *testing.T) {
			cfg := startDatabase(t, spec)
			engine, err := database.NewEngine(cfg, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = engine.Close() })

			reg := newRegistry(t)
			for i := 0; i < 2; i++ {
				var out bytes.Buffer
				p, err := ForEngine(engine, reg, &out)
				require.NoError(t, err)
				require.NoError(t, p.Run(context.Background()), out.String())
				assert.Equal(t, Done, p.State())
			}

			ctx := context.Background()
			a, b := engine.NewSession(), engine.NewSession()
			defer a.Close()
			defer b.Close()

			dbA, err := a.DB(ctx)
			require.NoError(t, err)
			_, err = dbA.NewInsert().Model(&account{Name: "alice"}).Exec(ctx)
			require.NoError(t, err)

			dbB, err := b.DB(ctx)
			require.NoError(t, err)
			n, err := dbB.NewSelect().Model((*account)(nil)).Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "uncommitted rows are invisible to other sessions")

			require.NoError(t, a.Commit())
			require.NoError(t, b.Rollback())
			dbB, err = b.DB(ctx)
			require.NoError(t, err)
			n, err = dbB.NewSelect().Model((*account)(nil)).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBootstrapWrongPassword(t *testing.T) {
	cfg := startDatabase(t, containers[0])
	cfg.Password = "wrong"
	engine, err := database.NewEngine(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	var out bytes.Buffer
	p, err := ForEngine(engine, newRegistry(t), &out)
	require.NoError(t, err)
	err = p.Run(context.Background())
	require.ErrorIs(t, err, database.ErrDatabaseCreation)
	_, kind := database.IsSqlError(err)
	assert.Equal(t, database.AccessDeniedErr, kind)
	assert.Contains(t, out.String(), "Hint: the database user was rejected")
}
