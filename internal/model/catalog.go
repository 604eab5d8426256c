package model

// Term is a named, slug-addressed classifier of titles.
type Term struct {
	ID   int64  `json:"-"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Category groups titles ("Books", "Films"). A title has at most one.
type Category = Term

// Genre is a many-to-many tag on titles.
type Genre = Term

// Title is a reviewable work.
//
// Rating is the rounded average review score, nil when nobody has reviewed
// the title yet. Category is nil when the category was deleted.
type Title struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Year        int       `json:"year"`
	Description string    `json:"description"`
	Genres      []Genre   `json:"genre"`
	Category    *Category `json:"category"`
	Rating      *int      `json:"rating"`
}

// TitleInput is the write shape of a title: genre and category are referred
// to by slug. For PATCH, nil fields are left untouched.
type TitleInput struct {
	Name         *string   `json:"name"`
	Year         *int      `json:"year"`
	Description  *string   `json:"description"`
	GenreSlugs   *[]string `json:"genre"`
	CategorySlug *string   `json:"category"`
}

// TitleFilter narrows a title listing. Zero values mean "no filter".
type TitleFilter struct {
	CategorySlug string
	GenreSlug    string
	Name         string
	Year         int
}
