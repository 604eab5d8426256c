package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/notify"
	"github.com/sakif/yamdb/internal/repository"
	"github.com/sakif/yamdb/internal/validate"
)

// CodeGenerator is satisfied by *auth.CodeGenerator.
type CodeGenerator interface {
	Generate() string
}

// TokenIssuer is satisfied by *auth.TokenService.
type TokenIssuer interface {
	Generate(subject string) (string, error)
}

// AuthService runs sign-up and the code-for-token exchange.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ Notifier (mail)
//	                                 ↘ TokenIssuer (JWT)
//
// A repeat sign-up with the same (username, email) pair mails the code that
// is already stored. It never rotates it, so a code sitting in the inbox
// stays valid.
type AuthService struct {
	users    repository.UserRepository
	codes    CodeGenerator
	tokens   TokenIssuer
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	codes CodeGenerator,
	tokens TokenIssuer,
	notifier notify.Notifier,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		codes:    codes,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// SignUpResult echoes the accepted identity. It never carries the code.
type SignUpResult struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	// Created is false when the pair was already registered.
	Created bool `json:"-"`
}

// SignUp registers (username, email) if it is new and mails its
// confirmation code.
func (s *AuthService) SignUp(ctx context.Context, username, email string) (*SignUpResult, error) {
	username, err := validate.Username(username)
	if err != nil {
		return nil, err
	}
	email, err = validate.Email(email)
	if err != nil {
		return nil, err
	}

	created := false
	user, err := s.users.GetByUsernameAndEmail(ctx, username, email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, created, err = s.register(ctx, username, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("looking up %q: %w", username, err)
	}

	code, err := s.confirmationCode(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendConfirmationCode(ctx, user.Email, user.Username, code); err != nil {
		s.logger.Error("confirmation code delivery failed",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("mail service", err)
	}

	if created {
		s.logger.Info("user signed up", slog.String("user_id", user.ID), slog.String("username", user.Username))
	} else {
		s.logger.Info("confirmation code resent", slog.String("user_id", user.ID))
	}
	return &SignUpResult{Username: user.Username, Email: user.Email, Created: created}, nil
}

// register creates the account, or returns the one a concurrent request
// created for the same pair a moment earlier.
func (s *AuthService) register(ctx context.Context, username, email string) (*model.User, bool, error) {
	field, err := s.users.TakenField(ctx, username, email)
	if err != nil {
		return nil, false, fmt.Errorf("checking %q: %w", username, err)
	}
	if field != "" {
		return nil, false, takenError(field)
	}

	code := s.codes.Generate()
	user := &model.User{
		Username:         username,
		Email:            email,
		Role:             model.RoleUser,
		ConfirmationCode: &code,
	}
	err = s.users.Create(ctx, user)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return nil, false, fmt.Errorf("creating %q: %w", username, err)
	}

	// Lost the race on the unique index. If the winner registered the
	// very same pair, continue with its row.
	existing, gerr := s.users.GetByUsernameAndEmail(ctx, username, email)
	switch {
	case gerr == nil:
		return existing, false, nil
	case errors.Is(gerr, apperror.ErrNotFound):
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Field != "" {
			return nil, false, takenError(appErr.Field)
		}
		return nil, false, takenError("")
	default:
		return nil, false, fmt.Errorf("re-reading %q: %w", username, gerr)
	}
}

func (s *AuthService) confirmationCode(ctx context.Context, user *model.User) (string, error) {
	if user.ConfirmationCode != nil && *user.ConfirmationCode != "" {
		return *user.ConfirmationCode, nil
	}
	// Accounts created by an admin have no code until their first sign-up.
	code, err := s.users.EnsureConfirmationCode(ctx, user.ID, s.codes.Generate())
	if err != nil {
		return "", fmt.Errorf("storing confirmation code: %w", err)
	}
	return code, nil
}

// IssueToken exchanges a confirmation code for an access token. An unknown
// username and a wrong code fail identically.
func (s *AuthService) IssueToken(ctx context.Context, username, code string) (string, error) {
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if code == "" {
		return "", apperror.ValidationFailed("confirmation_code", "confirmation_code is required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.InvalidCredentials()
		}
		return "", fmt.Errorf("looking up %q: %w", username, err)
	}

	if user.ConfirmationCode == nil ||
		subtle.ConstantTimeCompare([]byte(*user.ConfirmationCode), []byte(code)) != 1 {
		s.logger.Info("token denied", slog.String("user_id", user.ID))
		return "", apperror.InvalidCredentials()
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("token issued", slog.String("user_id", user.ID))
	return token, nil
}

func takenError(field string) error {
	return apperror.Conflict(field, "username or email already taken")
}
