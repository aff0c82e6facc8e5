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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tomoncle/loginsvc/types"
)

type rootResponse struct {
	Message string `json:"message"`
	Docs    string `json:"docs"`
	Redoc   string `json:"redoc"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(s.cors)
	r.Use(bodySizeLimit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		types.WriteError(w, http.StatusNotFound, types.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		types.WriteError(w, http.StatusMethodNotAllowed, types.CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.root)
	r.Get("/health", s.health)

	r.Route("/auth", func(r chi.Router) {
		r.Use(s.scope.Middleware)
		r.Mount("/", s.auth.Routes())
	})
	return r
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	types.WriteJSON(w, http.StatusOK, rootResponse{
		Message: "Welcome to " + s.settings.App.Name,
		Docs:    "/docs",
		Redoc:   "/redoc",
	})
}

// health never touches the database.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	types.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}
