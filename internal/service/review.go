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

// discussion gates reviews and comments: anyone reads, members write, and
// only the author or a moderator or admin changes an existing entry.
var discussion = policy.All("discussion", policy.AuthenticatedOrReadOnly, policy.AuthorOrPrivilegedWrite)

// ReviewService manages reviews of titles.
type ReviewService struct {
	titles  repository.TitleRepository
	reviews repository.ReviewRepository
	logger  *slog.Logger
}

func NewReviewService(titles repository.TitleRepository, reviews repository.ReviewRepository, logger *slog.Logger) *ReviewService {
	return &ReviewService{titles: titles, reviews: reviews, logger: logger}
}

func (s *ReviewService) List(ctx context.Context, titleID int64, opts repository.ListOptions) (model.Page[model.Review], error) {
	if _, err := s.titles.GetByID(ctx, titleID); err != nil {
		return model.Page[model.Review]{}, err
	}
	reviews, total, err := s.reviews.List(ctx, titleID, opts)
	if err != nil {
		return model.Page[model.Review]{}, fmt.Errorf("listing reviews: %w", err)
	}
	return page(reviews, total), nil
}

func (s *ReviewService) Get(ctx context.Context, titleID, id int64) (*model.Review, error) {
	return s.reviews.GetByID(ctx, titleID, id)
}

// Create fails with a conflict when the principal already reviewed the title.
func (s *ReviewService) Create(ctx context.Context, p policy.Principal, titleID int64, in model.ReviewInput) (*model.Review, error) {
	if !discussion.Allow(p, policy.ActionCreate) {
		return nil, deny(p)
	}
	if _, err := s.titles.GetByID(ctx, titleID); err != nil {
		return nil, err
	}
	if in.Text == nil {
		return nil, apperror.ValidationFailed("text", "text is required")
	}
	if in.Score == nil {
		return nil, apperror.ValidationFailed("score", "score is required")
	}

	review := &model.Review{TitleID: titleID, AuthorID: p.UserID, AuthorUsername: p.Username}
	if err := applyReview(review, in); err != nil {
		return nil, err
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.logger.Info("review created",
		slog.Int64("review_id", review.ID),
		slog.Int64("title_id", titleID),
		slog.String("author_id", p.UserID),
	)
	return review, nil
}

func (s *ReviewService) Update(ctx context.Context, p policy.Principal, titleID, id int64, in model.ReviewInput) (*model.Review, error) {
	review, err := s.authorize(ctx, p, policy.ActionUpdate, titleID, id)
	if err != nil {
		return nil, err
	}
	if err := applyReview(review, in); err != nil {
		return nil, err
	}
	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, p policy.Principal, titleID, id int64) error {
	if _, err := s.authorize(ctx, p, policy.ActionDelete, titleID, id); err != nil {
		return err
	}
	if err := s.reviews.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("review deleted", slog.Int64("review_id", id), slog.String("by", p.UserID))
	return nil
}

// authorize loads the review and runs the instance-level check. The lookup
// comes first so a missing review is a 404 for everyone.
func (s *ReviewService) authorize(ctx context.Context, p policy.Principal, a policy.Action, titleID, id int64) (*model.Review, error) {
	if !discussion.Allow(p, a) {
		return nil, deny(p)
	}
	review, err := s.reviews.GetByID(ctx, titleID, id)
	if err != nil {
		return nil, err
	}
	if !discussion.AllowObject(p, a, review.AuthorID) {
		return nil, deny(p)
	}
	return review, nil
}

func applyReview(r *model.Review, in model.ReviewInput) error {
	if in.Text != nil {
		text, err := validate.Text(*in.Text)
		if err != nil {
			return err
		}
		r.Text = text
	}
	if in.Score != nil {
		if err := validate.Score(*in.Score); err != nil {
			return err
		}
		r.Score = *in.Score
	}
	return nil
}

// CommentService manages comments. Every call names the title as well as
// the review, and a review filed under another title is not found.
type CommentService struct {
	reviews  repository.ReviewRepository
	comments repository.CommentRepository
	logger   *slog.Logger
}

func NewCommentService(reviews repository.ReviewRepository, comments repository.CommentRepository, logger *slog.Logger) *CommentService {
	return &CommentService{reviews: reviews, comments: comments, logger: logger}
}

func (s *CommentService) List(ctx context.Context, titleID, reviewID int64, opts repository.ListOptions) (model.Page[model.Comment], error) {
	if _, err := s.reviews.GetByID(ctx, titleID, reviewID); err != nil {
		return model.Page[model.Comment]{}, err
	}
	comments, total, err := s.comments.List(ctx, reviewID, opts)
	if err != nil {
		return model.Page[model.Comment]{}, fmt.Errorf("listing comments: %w", err)
	}
	return page(comments, total), nil
}

func (s *CommentService) Get(ctx context.Context, titleID, reviewID, id int64) (*model.Comment, error) {
	if _, err := s.reviews.GetByID(ctx, titleID, reviewID); err != nil {
		return nil, err
	}
	return s.comments.GetByID(ctx, reviewID, id)
}

func (s *CommentService) Create(ctx context.Context, p policy.Principal, titleID, reviewID int64, in model.CommentInput) (*model.Comment, error) {
	if !discussion.Allow(p, policy.ActionCreate) {
		return nil, deny(p)
	}
	if _, err := s.reviews.GetByID(ctx, titleID, reviewID); err != nil {
		return nil, err
	}
	if in.Text == nil {
		return nil, apperror.ValidationFailed("text", "text is required")
	}
	text, err := validate.Text(*in.Text)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{ReviewID: reviewID, AuthorID: p.UserID, AuthorUsername: p.Username, Text: text}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info("comment created", slog.Int64("comment_id", comment.ID), slog.Int64("review_id", reviewID))
	return comment, nil
}

func (s *CommentService) Update(ctx context.Context, p policy.Principal, titleID, reviewID, id int64, in model.CommentInput) (*model.Comment, error) {
	comment, err := s.authorize(ctx, p, policy.ActionUpdate, titleID, reviewID, id)
	if err != nil {
		return nil, err
	}
	if in.Text != nil {
		text, err := validate.Text(*in.Text)
		if err != nil {
			return nil, err
		}
		comment.Text = text
	}
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) Delete(ctx context.Context, p policy.Principal, titleID, reviewID, id int64) error {
	if _, err := s.authorize(ctx, p, policy.ActionDelete, titleID, reviewID, id); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("comment deleted", slog.Int64("comment_id", id), slog.String("by", p.UserID))
	return nil
}

func (s *CommentService) authorize(ctx context.Context, p policy.Principal, a policy.Action, titleID, reviewID, id int64) (*model.Comment, error) {
	if !discussion.Allow(p, a) {
		return nil, deny(p)
	}
	if _, err := s.reviews.GetByID(ctx, titleID, reviewID); err != nil {
		return nil, err
	}
	comment, err := s.comments.GetByID(ctx, reviewID, id)
	if err != nil {
		return nil, err
	}
	if !discussion.AllowObject(p, a, comment.AuthorID) {
		return nil, deny(p)
	}
	return comment, nil
}
