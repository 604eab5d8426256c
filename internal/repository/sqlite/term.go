package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/repository"
)

var _ repository.TermRepository = (*TermDB)(nil)

// TermDB stores one classifier table: categories or genres. Both share the
// (id, name, slug) shape. table is never user input.
type TermDB struct {
	conn     *sql.DB
	table    string
	resource string
}

func (s *TermDB) Create(ctx context.Context, t *model.Term) error {
	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO `+s.table+` (name, slug) VALUES (?, ?)`,
		t.Name, t.Slug,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("slug", fmt.Sprintf("%s with slug %q already exists", s.resource, t.Slug))
		}
		return fmt.Errorf("sqlite: inserting %s %q: %w", s.resource, t.Slug, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading %s id: %w", s.resource, err)
	}
	t.ID = id
	return nil
}

func (s *TermDB) GetBySlug(ctx context.Context, slug string) (*model.Term, error) {
	var t model.Term
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, slug FROM `+s.table+` WHERE slug = ?`, slug,
	).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(s.resource, slug)
		}
		return nil, fmt.Errorf("sqlite: getting %s %q: %w", s.resource, slug, err)
	}
	return &t, nil
}

// List orders by name. search matches a name substring.
func (s *TermDB) List(ctx context.Context, search string, opts repository.ListOptions) ([]model.Term, int, error) {
	opts = opts.Normalize()
	pattern := likePattern(search)

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+s.table+` WHERE name LIKE ? ESCAPE '\'`, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting %s: %w", s.table, err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, slug FROM `+s.table+`
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY name, id
		 LIMIT ? OFFSET ?`,
		pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing %s: %w", s.table, err)
	}
	defer rows.Close()

	terms := make([]model.Term, 0, opts.Limit)
	for rows.Next() {
		var t model.Term
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning %s row: %w", s.resource, err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating %s: %w", s.table, err)
	}

	return terms, total, nil
}

// Delete removes the term. Titles lose a deleted category (set to NULL) and
// drop a deleted genre from their genre list.
func (s *TermDB) Delete(ctx context.Context, slug string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s %q: %w", s.resource, slug, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(s.resource, slug)
	}
	return nil
}
