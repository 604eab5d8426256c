package model

import "time"

// Review is one user's scored opinion of a title.
// A user may review a given title at most once.
type Review struct {
	ID             int64     `json:"id"`
	TitleID        int64     `json:"-"`
	AuthorID       string    `json:"-"`
	AuthorUsername string    `json:"author"`
	Text           string    `json:"text"`
	Score          int       `json:"score"`
	PubDate        time.Time `json:"pub_date"`
}

// Comment is a reply attached to a review.
type Comment struct {
	ID             int64     `json:"id"`
	ReviewID       int64     `json:"-"`
	AuthorID       string    `json:"-"`
	AuthorUsername string    `json:"author"`
	Text           string    `json:"text"`
	PubDate        time.Time `json:"pub_date"`
}

// Page is one slice of a listing plus the total number of matching rows.
type Page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// ReviewInput is the write shape of a review. For PATCH, nil fields are
// left untouched.
type ReviewInput struct {
	Text  *string `json:"text"`
	Score *int    `json:"score"`
}

// CommentInput is the write shape of a comment.
type CommentInput struct {
	Text *string `json:"text"`
}
