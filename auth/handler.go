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
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/loginsvc/database"
	"github.com/tomoncle/loginsvc/types"
	"github.com/tomoncle/loginsvc/utils"
)

const maxFormMemory = 1 << 20

type userKey struct{}

// Handler exposes Service over HTTP. Every request must carry a session
// attached by database.Scope.Middleware.
type Handler struct {
	svc    *Service
	logger *utils.Logger
}

func NewHandler(svc *Service, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.NewLogger("AUTH")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the router mounted under /auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireUser)
		r.Get("/me", h.me)
		r.Get("/users", h.listUsers)
		r.Get("/logins", h.listLogins)
	})
	return r
}

// RequireUser rejects requests without a valid bearer token and stores the
// authenticated user in the request context.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.session(w, r)
		if !ok {
			return
		}
		token, found := bearerToken(r)
		if !found {
			h.writeError(w, r, ErrTokenInvalid)
			return
		}
		user, err := h.svc.Authenticate(r.Context(), sess, token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// CurrentUser returns the user stored by RequireUser.
func CurrentUser(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var in RegisterInput
	if !h.decodeJSON(w, r, &in) {
		return
	}
	user, err := h.svc.Register(r.Context(), sess, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := sess.Commit(); err != nil {
		if database.IsDuplicateKey(err) {
			h.writeError(w, r, ErrUserExists)
			return
		}
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if isForm(r) {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			h.writeBodyError(w, r, err)
			return
		}
		req.Username, req.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeError(w, r, &ValidationError{Field: "username", Reason: "username and password are required"})
		return
	}

	meta := LoginMeta{ClientIP: clientIP(r), UserAgent: r.UserAgent()}
	_, token, err := h.svc.Login(r.Context(), sess, req.Username, req.Password, meta)
	if err != nil && !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInactiveUser) {
		h.writeError(w, r, err)
		return
	}
	if cerr := sess.Commit(); cerr != nil {
		h.writeError(w, r, cerr)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, token)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	types.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListUsers(r.Context(), sess, types.PageRequestFromQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) listLogins(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	user, _ := CurrentUser(r.Context())
	page, err := h.svc.ListLogins(r.Context(), sess, user.ID, types.PageRequestFromQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*database.Session, bool) {
	sess, ok := database.SessionFromContext(r.Context())
	if !ok {
		h.logger.WithField("req_uri", r.URL.Path).Error("No database session attached to request")
		types.WriteError(w, http.StatusInternalServerError, types.CodeInternal, "internal server error")
	}
	return sess, ok
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeBodyError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		types.WriteError(w, http.StatusRequestEntityTooLarge, types.CodeTooLarge, "request body too large")
		return
	}
	types.WriteError(w, http.StatusBadRequest, types.CodeBadRequest, "malformed request body")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		types.WriteError(w, http.StatusUnprocessableEntity, types.CodeValidation, err.Error())
	case errors.Is(err, ErrUserExists):
		types.WriteError(w, http.StatusConflict, types.CodeConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrTokenInvalid):
		w.Header().Set("WWW-Authenticate", "Bearer")
		msg := ErrInvalidCredentials.Error()
		if errors.Is(err, ErrTokenInvalid) {
			msg = "could not validate credentials"
		}
		types.WriteError(w, http.StatusUnauthorized, types.CodeUnauthorized, msg)
	case errors.Is(err, ErrInactiveUser):
		types.WriteError(w, http.StatusForbidden, types.CodeForbidden, err.Error())
	case errors.Is(err, ErrUserNotFound):
		types.WriteError(w, http.StatusNotFound, types.CodeNotFound, err.Error())
	default:
		_, kind := database.IsSqlError(err)
		h.logger.WithFields(logrus.Fields{
			"req_method": r.Method,
			"req_uri":    r.URL.Path,
			"kind":       kind.String(),
			"error":      err,
		}).Error("Request failed")
		types.WriteError(w, http.StatusInternalServerError, types.CodeInternal, "internal server error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isForm(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
