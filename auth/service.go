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
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tomoncle/loginsvc/database"
	"github.com/tomoncle/loginsvc/repository"
	"github.com/tomoncle/loginsvc/types"
	"github.com/tomoncle/loginsvc/utils"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Validate trims the input in place and checks every field.
func (in *RegisterInput) Validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)

	if !usernamePattern.MatchString(in.Username) {
		return &ValidationError{Field: "username", Reason: "must be 3-50 letters, digits, '.', '_' or '-'"}
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLen || n > maxPasswordLen {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be %d-%d characters", minPasswordLen, maxPasswordLen)}
	}
	if utf8.RuneCountInString(in.FullName) > 100 {
		return &ValidationError{Field: "full_name", Reason: "must be at most 100 characters"}
	}
	return nil
}

// LoginMeta describes where a login attempt came from.
type LoginMeta struct {
	ClientIP  string
	UserAgent string
}

// Service holds the auth use cases. Every call runs on the caller's session
// and never commits; the caller decides.
type Service struct {
	hasher    Hasher
	tokens    *TokenIssuer
	logger    *utils.Logger
	dummyHash string
	now       func() time.Time
}

func NewService(hasher Hasher, tokens *TokenIssuer, logger *utils.Logger) (*Service, error) {
	if logger == nil {
		logger = utils.NewLogger("AUTH")
	}
	// Verified for unknown usernames so both paths cost one hash.
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &Service{hasher: hasher, tokens: tokens, logger: logger, dummyHash: dummy, now: time.Now}, nil
}

// Register creates an active user. Duplicate usernames or emails fail with
// ErrUserExists.
func (s *Service) Register(ctx context.Context, src repository.Source, in RegisterInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	users := repository.NewRepository[User](src)

	taken, err := users.Exists(ctx, types.NewQueryFilter("username = ? OR email = ?", in.Username, in.Email))
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUserExists
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		Username:       in.Username,
		Email:          in.Email,
		FullName:       in.FullName,
		HashedPassword: hashed,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := users.Create(ctx, user); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// Login checks the credentials and issues an access token. Attempts against
// an existing user are recorded as LoginEvents, failed ones included, so the
// caller should commit on ErrInvalidCredentials and ErrInactiveUser too.
func (s *Service) Login(ctx context.Context, src repository.Source, username, password string, meta LoginMeta) (*User, Token, error) {
	users := repository.NewRepository[User](src)

	user, err := users.FindOne(ctx, types.NewQueryFilter("username = ?", strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return nil, Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, Token{}, err
	}

	ok, err := s.hasher.Verify(password, user.HashedPassword)
	if err != nil {
		return nil, Token{}, fmt.Errorf("verify password: %w", err)
	}
	var outcome error
	switch {
	case !ok:
		outcome = ErrInvalidCredentials
	case !user.IsActive:
		outcome = ErrInactiveUser
	}

	event := &LoginEvent{
		UserID:    user.ID,
		Success:   outcome == nil,
		ClientIP:  truncate(meta.ClientIP, 64),
		UserAgent: truncate(meta.UserAgent, 255),
		CreatedAt: s.now().UTC(),
	}
	if err := repository.NewRepository[LoginEvent](src).Create(ctx, event); err != nil {
		return nil, Token{}, fmt.Errorf("record login event: %w", err)
	}
	if outcome != nil {
		s.logger.WithField("user_id", user.ID).WithField("reason", outcome.Error()).Warn("Login rejected")
		return nil, Token{}, outcome
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, Token{}, err
	}
	return user, token, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, src repository.Source, accessToken string) (*User, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	id, _ := claims.UserID()
	user, err := s.UserByID(ctx, src, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *Service) UserByID(ctx context.Context, src repository.Source, id int64) (*User, error) {
	user, err := repository.NewRepository[User](src).GetOne(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers pages through users ordered by id.
func (s *Service) ListUsers(ctx context.Context, src repository.Source, page *types.PageRequest) (*types.Pagination[User], error) {
	return repository.NewRepository[User](src).Page(ctx, page.WithOrders("u.id ASC"))
}

// ListLogins pages through a user's login history, newest first.
func (s *Service) ListLogins(ctx context.Context, src repository.Source, userID int64, page *types.PageRequest) (*types.Pagination[LoginEvent], error) {
	return repository.NewRepository[LoginEvent](src).Page(ctx, page.
		WithFilter(types.NewQueryFilter("le.user_id = ?", userID)).
		WithOrders("le.created_at DESC", "le.id DESC"))
}

// SetActive enables or disables a user.
func (s *Service) SetActive(ctx context.Context, src repository.Source, id int64, active bool) error {
	user, err := s.UserByID(ctx, src, id)
	if err != nil {
		return err
	}
	user.IsActive = active
	user.UpdatedAt = s.now().UTC()
	return repository.NewRepository[User](src).Update(ctx, user)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
