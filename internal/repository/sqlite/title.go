package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/repository"
)

var _ repository.TitleRepository = (*TitleDB)(nil)

// TitleDB stores titles, their genre links and computes ratings on read.
type TitleDB struct {
	conn *sql.DB
}

// titleSelect yields one row per title with its category and rating. The
// rating is the average review score rounded half away from zero, NULL for
// an unreviewed title.
const titleSelect = `
	SELECT t.id, t.name, t.year, t.description,
	       c.id, c.name, c.slug,
	       (SELECT CAST(ROUND(AVG(r.score)) AS INTEGER)
	          FROM reviews r WHERE r.title_id = t.id) AS rating
	FROM titles t
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTitle(row rowScanner) (*model.Title, error) {
	var (
		t                model.Title
		catID            sql.NullInt64
		catName, catSlug sql.NullString
		rating           sql.NullInt64
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.Year, &t.Description,
		&catID, &catName, &catSlug,
		&rating,
	); err != nil {
		return nil, err
	}
	if catID.Valid {
		t.Category = &model.Category{ID: catID.Int64, Name: catName.String, Slug: catSlug.String}
	}
	if rating.Valid {
		r := int(rating.Int64)
		t.Rating = &r
	}
	t.Genres = []model.Genre{}
	return &t, nil
}

func (s *TitleDB) Create(ctx context.Context, t *model.Title) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO titles (name, year, description, category_id) VALUES (?, ?, ?, ?)`,
		t.Name, t.Year, t.Description, categoryID(t),
	)
	if err != nil {
		return titleWriteError("inserting title", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading title id: %w", err)
	}

	if err := replaceGenres(ctx, tx, id, t.Genres); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing title: %w", err)
	}

	t.ID = id
	return nil
}

func (s *TitleDB) GetByID(ctx context.Context, id int64) (*model.Title, error) {
	t, err := scanTitle(s.conn.QueryRowContext(ctx, titleSelect+` WHERE t.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("title", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting title %d: %w", id, err)
	}

	titles := []model.Title{*t}
	if err := s.attachGenres(ctx, titles); err != nil {
		return nil, err
	}
	return &titles[0], nil
}

// List orders by rating (best first, unrated last), then by name.
func (s *TitleDB) List(ctx context.Context, filter model.TitleFilter, opts repository.ListOptions) ([]model.Title, int, error) {
	opts = opts.Normalize()
	where, args := titleWhere(filter)

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM titles t
		 LEFT JOIN categories c ON c.id = t.category_id`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting titles: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		titleSelect+where+`
		 ORDER BY rating IS NULL, rating DESC, t.name, t.id
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing titles: %w", err)
	}
	defer rows.Close()

	titles := make([]model.Title, 0, opts.Limit)
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning title row: %w", err)
		}
		titles = append(titles, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating titles: %w", err)
	}
	// The pool holds a single connection, so genres are fetched only after
	// this result set is drained.
	rows.Close()

	if err := s.attachGenres(ctx, titles); err != nil {
		return nil, 0, err
	}
	return titles, total, nil
}

func titleWhere(f model.TitleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.CategorySlug != "" {
		conds = append(conds, "c.slug = ?")
		args = append(args, f.CategorySlug)
	}
	if f.GenreSlug != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
			WHERE tg.title_id = t.id AND g.slug = ?)`)
		args = append(args, f.GenreSlug)
	}
	if f.Name != "" {
		conds = append(conds, `t.name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Name))
	}
	if f.Year != 0 {
		conds = append(conds, "t.year = ?")
		args = append(args, f.Year)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// attachGenres fills Genres of every title with one query.
func (s *TitleDB) attachGenres(ctx context.Context, titles []model.Title) error {
	if len(titles) == 0 {
		return nil
	}

	index := make(map[int64]int, len(titles))
	args := make([]any, 0, len(titles))
	for i := range titles {
		index[titles[i].ID] = i
		args = append(args, titles[i].ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.conn.QueryContext(ctx,
		`SELECT tg.title_id, g.id, g.name, g.slug
		 FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
		 WHERE tg.title_id IN (`+placeholders+`)
		 ORDER BY g.name, g.id`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading title genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			titleID int64
			g       model.Genre
		)
		if err := rows.Scan(&titleID, &g.ID, &g.Name, &g.Slug); err != nil {
			return fmt.Errorf("sqlite: scanning title genre: %w", err)
		}
		i := index[titleID]
		titles[i].Genres = append(titles[i].Genres, g)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating title genres: %w", err)
	}
	return nil
}

// Update rewrites the title row and replaces its genre links.
func (s *TitleDB) Update(ctx context.Context, t *model.Title) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE titles SET name = ?, year = ?, description = ?, category_id = ? WHERE id = ?`,
		t.Name, t.Year, t.Description, categoryID(t), t.ID,
	)
	if err != nil {
		return titleWriteError("updating title", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("title", strconv.FormatInt(t.ID, 10))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM title_genres WHERE title_id = ?`, t.ID); err != nil {
		return fmt.Errorf("sqlite: clearing genres of title %d: %w", t.ID, err)
	}
	if err := replaceGenres(ctx, tx, t.ID, t.Genres); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing title: %w", err)
	}
	return nil
}

// Delete removes the title with its reviews and their comments.
func (s *TitleDB) Delete(ctx context.Context, id int64) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM titles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting title %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("title", strconv.FormatInt(id, 10))
	}
	return nil
}

func replaceGenres(ctx context.Context, tx *sql.Tx, titleID int64, genres []model.Genre) error {
	for _, g := range genres {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO title_genres (title_id, genre_id) VALUES (?, ?)`,
			titleID, g.ID,
		); err != nil {
			return titleWriteError("linking genre", err)
		}
	}
	return nil
}

func categoryID(t *model.Title) any {
	if t.Category == nil {
		return nil
	}
	return t.Category.ID
}

// titleWriteError maps a dangling category or genre id, possible when the
// term was deleted after the caller resolved it, to a validation error.
func titleWriteError(op string, err error) error {
	if isForeignKeyViolation(err) {
		return apperror.ValidationFailed("genre", "referenced genre or category does not exist")
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
