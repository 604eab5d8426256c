package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/policy"
	"github.com/sakif/yamdb/internal/repository"
	"github.com/sakif/yamdb/internal/validate"
)

// UserService manages accounts. The collection is admin-only; every
// account may read and edit its own profile through the Me methods.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) List(ctx context.Context, p policy.Principal, search string, opts repository.ListOptions) (model.Page[model.User], error) {
	if !policy.AdminOnly.Allow(p, policy.ActionList) {
		return model.Page[model.User]{}, deny(p)
	}
	users, total, err := s.users.List(ctx, search, opts)
	if err != nil {
		return model.Page[model.User]{}, fmt.Errorf("listing users: %w", err)
	}
	return page(users, total), nil
}

// Create adds an account without a confirmation code. The user obtains one
// by signing up with the same username and email.
func (s *UserService) Create(ctx context.Context, p policy.Principal, in model.UserPatch) (*model.User, error) {
	if !policy.AdminOnly.Allow(p, policy.ActionCreate) {
		return nil, deny(p)
	}
	if in.Username == nil {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if in.Email == nil {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	user := &model.User{Role: model.RoleUser}
	if err := applyUserPatch(user, in, true); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("by", p.UserID))
	return user, nil
}

func (s *UserService) Get(ctx context.Context, p policy.Principal, username string) (*model.User, error) {
	if !policy.AdminOnly.Allow(p, policy.ActionRetrieve) {
		return nil, deny(p)
	}
	return s.users.GetByUsername(ctx, username)
}

// Update applies a partial change. Admins may change the role.
func (s *UserService) Update(ctx context.Context, p policy.Principal, username string, in model.UserPatch) (*model.User, error) {
	if !policy.AdminOnly.Allow(p, policy.ActionUpdate) {
		return nil, deny(p)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := applyUserPatch(user, in, true); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user updated", slog.String("user_id", user.ID), slog.String("by", p.UserID))
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, p policy.Principal, username string) error {
	if !policy.AdminOnly.Allow(p, policy.ActionDelete) {
		return deny(p)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("user_id", user.ID), slog.String("by", p.UserID))
	return nil
}

// Me returns the principal's own account.
func (s *UserService) Me(ctx context.Context, p policy.Principal) (*model.User, error) {
	if !policy.OwnerOnly.AllowObject(p, policy.ActionRetrieve, p.UserID) {
		return nil, deny(p)
	}
	return s.users.GetByID(ctx, p.UserID)
}

// UpdateMe edits the principal's own profile. The role field is read-only
// here and silently kept.
func (s *UserService) UpdateMe(ctx context.Context, p policy.Principal, in model.UserPatch) (*model.User, error) {
	user, err := s.Me(ctx, p)
	if err != nil {
		return nil, err
	}
	if !policy.OwnerOnly.AllowObject(p, policy.ActionUpdate, user.ID) {
		return nil, deny(p)
	}
	if err := applyUserPatch(user, in, false); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func applyUserPatch(u *model.User, in model.UserPatch, roleWritable bool) error {
	if in.Username != nil {
		v, err := validate.Username(*in.Username)
		if err != nil {
			return err
		}
		u.Username = v
	}
	if in.Email != nil {
		v, err := validate.Email(*in.Email)
		if err != nil {
			return err
		}
		u.Email = v
	}
	if in.Role != nil && roleWritable {
		r, err := model.ParseRole(string(*in.Role))
		if err != nil {
			return apperror.ValidationFailed("role", err.Error())
		}
		u.Role = r
	}
	for _, f := range []struct {
		name string
		src  *string
		dst  *string
		max  int
	}{
		{"first_name", in.FirstName, &u.FirstName, validate.MaxPersonLength},
		{"last_name", in.LastName, &u.LastName, validate.MaxPersonLength},
	} {
		if f.src == nil {
			continue
		}
		if err := validate.MaxLength(f.name, *f.src, f.max); err != nil {
			return err
		}
		*f.dst = *f.src
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	return nil
}
