// Package validate holds the field rules shared by sign-up, user admin and
// the catalog. Every function is pure: it returns the normalized value or an
// *apperror.AppError naming the offending field, and never touches storage.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/yamdb/internal/apperror"
)

const (
	MaxUsernameLength = 150
	MaxEmailLength    = 254
	MaxNameLength     = 256
	MaxSlugLength     = 50
	MaxPersonLength   = 150
	MinScore          = 1
	MaxScore          = 10

	// ReservedUsername collides with the /users/me/ route.
	ReservedUsername = "me"
)

var (
	// RE2's \w is ASCII-only; usernames allow Unicode letters and digits.
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)
	slugPattern     = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
)

// Username checks the allowed character set, the length and the reserved
// literal "me".
func Username(username string) (string, error) {
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if len(username) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return "", apperror.ValidationFailed("username",
			"username may contain only letters, digits and . @ + - _")
	}
	if username == ReservedUsername {
		return "", apperror.ValidationFailed("username", `username "me" is reserved`)
	}
	return username, nil
}

// Email checks that email is a bare, well formed address and returns it
// lower-cased.
func Email(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return "", apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", apperror.ValidationFailed("email", "enter a valid email address")
	}
	return strings.ToLower(email), nil
}

// Name checks a display name of a category, genre or title.
func Name(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if len(name) > MaxNameLength {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, MaxNameLength))
	}
	return name, nil
}

// Slug checks a URL key of a category or genre.
func Slug(slug string) (string, error) {
	if slug == "" {
		return "", apperror.ValidationFailed("slug", "slug is required")
	}
	if len(slug) > MaxSlugLength {
		return "", apperror.ValidationFailed("slug",
			fmt.Sprintf("slug must be %d characters or less", MaxSlugLength))
	}
	if !slugPattern.MatchString(slug) {
		return "", apperror.ValidationFailed("slug",
			"slug may contain only latin letters, digits, - and _")
	}
	return slug, nil
}

// Score checks a review score against the closed range [MinScore, MaxScore].
func Score(score int) error {
	if score < MinScore || score > MaxScore {
		return apperror.ValidationFailed("score",
			fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore))
	}
	return nil
}

// Year rejects release years in the future relative to now.
func Year(year int, now time.Time) error {
	if year > now.Year() {
		return apperror.ValidationFailed("year",
			fmt.Sprintf("%d has not come yet", year))
	}
	return nil
}

// MaxLength checks an optional free-text field.
func MaxLength(field, s string, max int) error {
	if len(s) > max {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return nil
}

// Text checks the body of a review or comment.
func Text(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "text is required")
	}
	return text, nil
}
