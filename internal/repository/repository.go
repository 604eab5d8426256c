// Package repository declares the storage contracts the services depend on.
//
// Lookups of a missing row return an error wrapping apperror.ErrNotFound.
// Writes that break a uniqueness rule return one wrapping apperror.ErrConflict,
// so callers never need to know which engine sits underneath.
package repository

import (
	"context"

	"github.com/sakif/yamdb/internal/model"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options into the accepted range.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type UserRepository interface {
	// Create assigns u.ID and u.CreatedAt.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByUsernameAndEmail matches the exact pair.
	GetByUsernameAndEmail(ctx context.Context, username, email string) (*model.User, error)
	// TakenField reports "username" or "email" when either already belongs to
	// some account, and "" when both are free.
	TakenField(ctx context.Context, username, email string) (string, error)
	// EnsureConfirmationCode stores code only if the user has none yet and
	// returns whichever code is stored afterwards.
	EnsureConfirmationCode(ctx context.Context, id, code string) (string, error)
	List(ctx context.Context, search string, opts ListOptions) ([]model.User, int, error)
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id string) error
}

// TermRepository stores either categories or genres.
type TermRepository interface {
	Create(ctx context.Context, t *model.Term) error
	GetBySlug(ctx context.Context, slug string) (*model.Term, error)
	List(ctx context.Context, search string, opts ListOptions) ([]model.Term, int, error)
	Delete(ctx context.Context, slug string) error
}

// TitleRepository stores titles. Genres and Category on the written value
// must carry IDs of stored terms.
type TitleRepository interface {
	Create(ctx context.Context, t *model.Title) error
	GetByID(ctx context.Context, id int64) (*model.Title, error)
	List(ctx context.Context, filter model.TitleFilter, opts ListOptions) ([]model.Title, int, error)
	Update(ctx context.Context, t *model.Title) error
	Delete(ctx context.Context, id int64) error
}

type ReviewRepository interface {
	// Create fails with a conflict when the author already reviewed the title.
	Create(ctx context.Context, r *model.Review) error
	// GetByID only finds the review under titleID.
	GetByID(ctx context.Context, titleID, id int64) (*model.Review, error)
	List(ctx context.Context, titleID int64, opts ListOptions) ([]model.Review, int, error)
	Update(ctx context.Context, r *model.Review) error
	Delete(ctx context.Context, id int64) error
}

type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	// GetByID only finds the comment under reviewID.
	GetByID(ctx context.Context, reviewID, id int64) (*model.Comment, error)
	List(ctx context.Context, reviewID int64, opts ListOptions) ([]model.Comment, int, error)
	Update(ctx context.Context, c *model.Comment) error
	Delete(ctx context.Context, id int64) error
}
