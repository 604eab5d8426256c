package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/policy"
	"github.com/sakif/yamdb/internal/repository"
	"github.com/sakif/yamdb/internal/validate"
)

// TermService manages one classifier: categories or genres.
type TermService struct {
	kind   string
	terms  repository.TermRepository
	logger *slog.Logger
}

// NewTermService returns a service for kind ("category" or "genre").
func NewTermService(kind string, terms repository.TermRepository, logger *slog.Logger) *TermService {
	return &TermService{kind: kind, terms: terms, logger: logger}
}

func (s *TermService) List(ctx context.Context, search string, opts repository.ListOptions) (model.Page[model.Term], error) {
	terms, total, err := s.terms.List(ctx, search, opts)
	if err != nil {
		return model.Page[model.Term]{}, fmt.Errorf("listing %s: %w", s.kind, err)
	}
	return page(terms, total), nil
}

func (s *TermService) Create(ctx context.Context, p policy.Principal, name, slug string) (*model.Term, error) {
	if !policy.AdminWriteOnly.Allow(p, policy.ActionCreate) {
		return nil, deny(p)
	}
	name, err := validate.Name("name", name)
	if err != nil {
		return nil, err
	}
	slug, err = validate.Slug(slug)
	if err != nil {
		return nil, err
	}

	term := &model.Term{Name: name, Slug: slug}
	if err := s.terms.Create(ctx, term); err != nil {
		return nil, err
	}
	s.logger.Info(s.kind+" created", slog.String("slug", slug))
	return term, nil
}

func (s *TermService) Delete(ctx context.Context, p policy.Principal, slug string) error {
	if !policy.AdminWriteOnly.Allow(p, policy.ActionDelete) {
		return deny(p)
	}
	if err := s.terms.Delete(ctx, slug); err != nil {
		return err
	}
	s.logger.Info(s.kind+" deleted", slog.String("slug", slug))
	return nil
}

// TitleService manages titles and resolves their genre and category slugs.
type TitleService struct {
	titles     repository.TitleRepository
	categories repository.TermRepository
	genres     repository.TermRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewTitleService(
	titles repository.TitleRepository,
	categories repository.TermRepository,
	genres repository.TermRepository,
	logger *slog.Logger,
) *TitleService {
	return &TitleService{
		titles:     titles,
		categories: categories,
		genres:     genres,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TitleService) List(ctx context.Context, filter model.TitleFilter, opts repository.ListOptions) (model.Page[model.Title], error) {
	titles, total, err := s.titles.List(ctx, filter, opts)
	if err != nil {
		return model.Page[model.Title]{}, fmt.Errorf("listing titles: %w", err)
	}
	return page(titles, total), nil
}

func (s *TitleService) Get(ctx context.Context, id int64) (*model.Title, error) {
	return s.titles.GetByID(ctx, id)
}

func (s *TitleService) Create(ctx context.Context, p policy.Principal, in model.TitleInput) (*model.Title, error) {
	if !policy.AdminWriteOnly.Allow(p, policy.ActionCreate) {
		return nil, deny(p)
	}
	if in.Name == nil {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if in.Year == nil {
		return nil, apperror.ValidationFailed("year", "year is required")
	}

	title := &model.Title{}
	if err := s.apply(ctx, title, in); err != nil {
		return nil, err
	}
	if err := s.titles.Create(ctx, title); err != nil {
		return nil, err
	}

	s.logger.Info("title created", slog.Int64("title_id", title.ID))
	return s.titles.GetByID(ctx, title.ID)
}

func (s *TitleService) Update(ctx context.Context, p policy.Principal, id int64, in model.TitleInput) (*model.Title, error) {
	if !policy.AdminWriteOnly.Allow(p, policy.ActionUpdate) {
		return nil, deny(p)
	}
	title, err := s.titles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, title, in); err != nil {
		return nil, err
	}
	if err := s.titles.Update(ctx, title); err != nil {
		return nil, err
	}
	return s.titles.GetByID(ctx, id)
}

func (s *TitleService) Delete(ctx context.Context, p policy.Principal, id int64) error {
	if !policy.AdminWriteOnly.Allow(p, policy.ActionDelete) {
		return deny(p)
	}
	if err := s.titles.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("title deleted", slog.Int64("title_id", id))
	return nil
}

func (s *TitleService) apply(ctx context.Context, t *model.Title, in model.TitleInput) error {
	if in.Name != nil {
		name, err := validate.Name("name", *in.Name)
		if err != nil {
			return err
		}
		t.Name = name
	}
	if in.Year != nil {
		if err := validate.Year(*in.Year, s.now()); err != nil {
			return err
		}
		t.Year = *in.Year
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.CategorySlug != nil {
		if *in.CategorySlug == "" {
			t.Category = nil
		} else {
			cat, err := resolveTerm(ctx, s.categories, "category", *in.CategorySlug)
			if err != nil {
				return err
			}
			t.Category = cat
		}
	}
	if in.GenreSlugs != nil {
		genres := make([]model.Genre, 0, len(*in.GenreSlugs))
		for _, slug := range *in.GenreSlugs {
			g, err := resolveTerm(ctx, s.genres, "genre", slug)
			if err != nil {
				return err
			}
			genres = append(genres, *g)
		}
		t.Genres = genres
	}
	return nil
}

// resolveTerm reports an unknown slug as a bad field value, not as a
// missing resource: the title is what the request addresses.
func resolveTerm(ctx context.Context, terms repository.TermRepository, field, slug string) (*model.Term, error) {
	term, err := terms.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed(field, fmt.Sprintf("%s %s does not exist", field, strconv.Quote(slug)))
		}
		return nil, fmt.Errorf("resolving %s %q: %w", field, slug, err)
	}
	return term, nil
}
