package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/repository"
)

var (
	_ repository.ReviewRepository  = (*ReviewDB)(nil)
	_ repository.CommentRepository = (*CommentDB)(nil)
)

// ReviewDB stores reviews. The schema allows one review per (author, title).
type ReviewDB struct {
	conn *sql.DB
}

const reviewSelect = `
	SELECT r.id, r.title_id, r.author_id, u.username, r.text, r.score, r.pub_date
	FROM reviews r JOIN users u ON u.id = r.author_id`

func scanReview(row rowScanner) (*model.Review, error) {
	var r model.Review
	if err := row.Scan(&r.ID, &r.TitleID, &r.AuthorID, &r.AuthorUsername, &r.Text, &r.Score, &r.PubDate); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ReviewDB) Create(ctx context.Context, r *model.Review) error {
	r.PubDate = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO reviews (title_id, author_id, text, score, pub_date) VALUES (?, ?, ?, ?, ?)`,
		r.TitleID, r.AuthorID, r.Text, r.Score, r.PubDate,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("title", "you have already reviewed this title")
		case isForeignKeyViolation(err):
			return apperror.NotFound("title", strconv.FormatInt(r.TitleID, 10))
		}
		return fmt.Errorf("sqlite: inserting review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading review id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *ReviewDB) GetByID(ctx context.Context, titleID, id int64) (*model.Review, error) {
	r, err := scanReview(s.conn.QueryRowContext(ctx,
		reviewSelect+` WHERE r.id = ? AND r.title_id = ?`, id, titleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("review", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting review %d: %w", id, err)
	}
	return r, nil
}

// List returns the reviews of a title, newest first.
func (s *ReviewDB) List(ctx context.Context, titleID int64, opts repository.ListOptions) ([]model.Review, int, error) {
	opts = opts.Normalize()

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE title_id = ?`, titleID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting reviews: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		reviewSelect+` WHERE r.title_id = ?
		 ORDER BY r.pub_date DESC, r.id DESC
		 LIMIT ? OFFSET ?`,
		titleID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]model.Review, 0, opts.Limit)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning review row: %w", err)
		}
		reviews = append(reviews, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating reviews: %w", err)
	}
	return reviews, total, nil
}

// Update changes text and score. Author, title and pub_date are fixed.
func (s *ReviewDB) Update(ctx context.Context, r *model.Review) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE reviews SET text = ?, score = ? WHERE id = ?`,
		r.Text, r.Score, r.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating review %d: %w", r.ID, err)
	}
	return requireAffected(result, "review", r.ID)
}

func (s *ReviewDB) Delete(ctx context.Context, id int64) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting review %d: %w", id, err)
	}
	return requireAffected(result, "review", id)
}

// CommentDB stores comments on reviews.
type CommentDB struct {
	conn *sql.DB
}

const commentSelect = `
	SELECT c.id, c.review_id, c.author_id, u.username, c.text, c.pub_date
	FROM comments c JOIN users u ON u.id = c.author_id`

func scanComment(row rowScanner) (*model.Comment, error) {
	var c model.Comment
	if err := row.Scan(&c.ID, &c.ReviewID, &c.AuthorID, &c.AuthorUsername, &c.Text, &c.PubDate); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CommentDB) Create(ctx context.Context, c *model.Comment) error {
	c.PubDate = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO comments (review_id, author_id, text, pub_date) VALUES (?, ?, ?, ?)`,
		c.ReviewID, c.AuthorID, c.Text, c.PubDate,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("review", strconv.FormatInt(c.ReviewID, 10))
		}
		return fmt.Errorf("sqlite: inserting comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading comment id: %w", err)
	}
	c.ID = id
	return nil
}

func (s *CommentDB) GetByID(ctx context.Context, reviewID, id int64) (*model.Comment, error) {
	c, err := scanComment(s.conn.QueryRowContext(ctx,
		commentSelect+` WHERE c.id = ? AND c.review_id = ?`, id, reviewID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting comment %d: %w", id, err)
	}
	return c, nil
}

// List returns the comments of a review, oldest first.
func (s *CommentDB) List(ctx context.Context, reviewID int64, opts repository.ListOptions) ([]model.Comment, int, error) {
	opts = opts.Normalize()

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE review_id = ?`, reviewID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting comments: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		commentSelect+` WHERE c.review_id = ?
		 ORDER BY c.pub_date, c.id
		 LIMIT ? OFFSET ?`,
		reviewID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0, opts.Limit)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, total, nil
}

func (s *CommentDB) Update(ctx context.Context, c *model.Comment) error {
	result, err := s.conn.ExecContext(ctx, `UPDATE comments SET text = ? WHERE id = ?`, c.Text, c.ID)
	if err != nil {
		return fmt.Errorf("sqlite: updating comment %d: %w", c.ID, err)
	}
	return requireAffected(result, "comment", c.ID)
}

func (s *CommentDB) Delete(ctx context.Context, id int64) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %d: %w", id, err)
	}
	return requireAffected(result, "comment", id)
}

func requireAffected(result sql.Result, resource string, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, strconv.FormatInt(id, 10))
	}
	return nil
}
