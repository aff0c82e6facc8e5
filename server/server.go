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

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tomoncle/loginsvc/auth"
	"github.com/tomoncle/loginsvc/config"
	"github.com/tomoncle/loginsvc/database"
	"github.com/tomoncle/loginsvc/utils"
)

const gracefulShutdownTimeout = 10 * time.Second

type Deps struct {
	Settings *config.Settings
	Engine   *database.Engine
	Registry *database.SchemaRegistry
	Auth     *auth.Handler
	Logger   *utils.Logger
}

type Server struct {
	settings *config.Settings
	engine   *database.Engine
	registry *database.SchemaRegistry
	auth     *auth.Handler
	logger   *utils.Logger
	scope    *database.Scope

	routerOnce sync.Once
	router     chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func New(deps Deps) (*Server, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings are required")
	}
	if deps.Engine == nil {
		return nil, errors.New("database engine is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("schema registry is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("auth handler is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.NewLogger("SERVER")
	}
	return &Server{
		settings: deps.Settings,
		engine:   deps.Engine,
		registry: deps.Registry,
		auth:     deps.Auth,
		logger:   logger,
		scope:    database.NewScope(deps.Engine.SessionFactory(), deps.Engine.Logger()),
	}, nil
}

// Handler returns the application router. It is built once.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() { s.router = s.buildRouter() })
	return s.router
}

// Start creates missing tables, binds the listen address and serves in the
// background. Schema or bind failures are returned before anything is served.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("server already started")
	}

	if err := s.engine.MaterializeSchema(ctx, s.registry); err != nil {
		return err
	}
	s.logger.WithField("tables", s.registry.Tables()).Info("Database schema ready")

	cfg := s.settings.Server
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          newErrorLog(s.logger),
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
		}
	}(s.server, s.done)

	s.logger.WithField("address", ln.Addr().String()).
		WithField("app", s.settings.App.Name).
		Info("HTTP server started")
	return nil
}

// Addr is the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting connections and waits for in-flight requests up to
// the configured shutdown timeout.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.settings.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = gracefulShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	<-done
	return nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close(context.Background())
}
