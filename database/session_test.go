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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCommitPersists(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)

	sess := e.NewSession()
	insertWidget(t, ctx, sess, "gear")
	assert.True(t, sess.InTransaction())
	require.NoError(t, sess.Commit())
	assert.False(t, sess.InTransaction())
	require.NoError(t, sess.Close())

	other := e.NewSession()
	defer other.Close()
	assert.Equal(t, 1, countWidgets(t, ctx, other))
}

func TestSessionCloseRollsBackUncommittedWork(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)

	sess := e.NewSession()
	insertWidget(t, ctx, sess, "sprocket")
	require.NoError(t, sess.Close())
	assert.True(t, sess.Closed())
	require.NoError(t, sess.Close())

	_, err := sess.DB(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.Commit(), ErrSessionClosed)

	other := e.NewSession()
	defer other.Close()
	assert.Equal(t, 0, countWidgets(t, ctx, other))
}

func TestSessionFactoryYieldsIndependentSessions(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)
	maker := e.SessionFactory()

	a, b := maker(), maker()
	defer a.Close()
	defer b.Close()
	require.NotSame(t, a, b)

	insertWidget(t, ctx, a, "bolt")
	assert.Equal(t, 0, countWidgets(t, ctx, b), "uncommitted work must not leak")
	require.NoError(t, b.Rollback())

	require.NoError(t, a.Commit())
	assert.Equal(t, 1, countWidgets(t, ctx, b))
	assert.Equal(t, 2, e.Stats().InUse)
}

func TestSessionWithoutStatementsTakesNoConnection(t *testing.T) {
	e := newTestEngine(t)
	sess := e.NewSession()
	assert.Equal(t, 0, e.Stats().InUse)
	require.NoError(t, sess.Commit())
	require.NoError(t, sess.Close())
}

func TestSessionCheckoutFailsOnClosedEngine(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	sess := e.NewSession()
	_, err := sess.DB(context.Background())
	assert.Error(t, err)
	assert.NoError(t, sess.Close())
}

func TestEngineProbe(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Probe(context.Background()))
	assert.Equal(t, 0, e.Stats().InUse)

	require.NoError(t, e.Close())
	err := e.Probe(context.Background())
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestScopeRunClosesSession(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)
	scope := NewScope(e.SessionFactory(), NopLogger())

	var seen *Session
	err := scope.Run(ctx, func(ctx context.Context, sess *Session) error {
		seen = sess
		fromCtx, ok := SessionFromContext(ctx)
		require.True(t, ok)
		assert.Same(t, sess, fromCtx)
		insertWidget(t, ctx, sess, "nut")
		return sess.Commit()
	})
	require.NoError(t, err)
	assert.True(t, seen.Closed())
}

func TestScopeRunClosesSessionOnError(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)
	scope := NewScope(e.SessionFactory(), NopLogger())
	boom := errors.New("boom")

	var seen *Session
	err := scope.Run(ctx, func(ctx context.Context, sess *Session) error {
		seen = sess
		insertWidget(t, ctx, sess, "washer")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, seen.Closed())
	assert.Equal(t, 0, e.Stats().InUse)

	check := e.NewSession()
	defer check.Close()
	assert.Equal(t, 0, countWidgets(t, ctx, check))
}

func TestScopeRunClosesSessionOnPanic(t *testing.T) {
	ctx := context.Background()
	e := newMaterializedEngine(t)
	scope := NewScope(e.SessionFactory(), NopLogger())

	var seen *Session
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = scope.Run(ctx, func(ctx context.Context, sess *Session) error {
			seen = sess
			insertWidget(t, ctx, sess, "rivet")
			panic("kaboom")
		})
	})
	require.NotNil(t, seen)
	assert.True(t, seen.Closed())
	assert.Equal(t, 0, e.Stats().InUse)
}

func TestScopeMiddlewareAttachesAndClosesSession(t *testing.T) {
	e := newMaterializedEngine(t)
	scope := NewScope(e.SessionFactory(), NopLogger())

	var seen []*Session
	h := scope.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		assert.False(t, sess.Closed())
		seen = append(seen, sess)
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	assert.True(t, seen[0].Closed())
	assert.True(t, seen[1].Closed())
}

func TestSessionFromContextWithoutSession(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)
}
