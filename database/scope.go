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
	"net/http"
)

type sessionKey struct{}

// Scope hands out one Session per unit of work and always closes it.
type Scope struct {
	maker  SessionMaker
	logger Logger
}

func NewScope(maker SessionMaker, logger Logger) *Scope {
	return &Scope{maker: maker, logger: orNop(logger)}
}

// Run opens a session, passes it to fn and closes it on every exit path,
// including a panic in fn. Commit is left to fn; uncommitted work is rolled
// back by Close. A close failure is returned only when fn succeeded.
func (s *Scope) Run(ctx context.Context, fn func(ctx context.Context, sess *Session) error) (err error) {
	sess := s.maker()
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.logger.Warn("Failed to close session", "error", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(ContextWithSession(ctx, sess), sess)
}

// Middleware attaches a fresh session to every request context and closes it
// once the handler returns.
func (s *Scope) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.maker()
		defer func() {
			if err := sess.Close(); err != nil {
				s.logger.Warn("Failed to close request session", "error", err, "req_uri", r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session attached by Scope, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil
}
