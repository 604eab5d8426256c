package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/yamdb/internal/config"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/notify"
	sqliteRepo "github.com/sakif/yamdb/internal/repository/sqlite"
)

// inbox records the last code sent to each address.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (i *inbox) SendConfirmationCode(_ context.Context, email, _, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
	i.sent++
	return nil
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type testEnv struct {
	t     *testing.T
	db    *sqliteRepo.DB
	inbox *inbox
	h     http.Handler
}

func testConfig() config.Config {
	return config.Config{
		Port:          8080,
		DBPath:        ":memory:",
		LogLevel:      "info",
		JWTSecret:     "test-secret-at-least-16-chars",
		JWTAccessTTL:  time.Hour,
		CodeLength:    16,
		CodeAlphabet:  "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		EmailFrom:     "from@example.com",
		AuthRateLimit: 1000,
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	box := &inbox{codes: map[string]string{}}
	srv, err := New(cfg, db, box, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return &testEnv{t: t, db: db, inbox: box, h: srv.Handler()}
}

// do sends body as JSON and returns the recorder.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// signIn runs the full sign-up and token exchange and returns the token.
func (e *testEnv) signIn(username, email string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/auth/signup/", "", map[string]string{"username": username, "email": email})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/v1/auth/token/", "",
		map[string]string{"username": username, "confirmation_code": e.inbox.code(email)})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](e.t, rec)["token"]
}

// admin stores an admin account and exchanges its code for a token.
func (e *testEnv) admin(username string) string {
	e.t.Helper()
	code := "admin-code-" + username
	u := &model.User{
		Username:         username,
		Email:            username + "@example.com",
		Role:             model.RoleAdmin,
		ConfirmationCode: &code,
	}
	require.NoError(e.t, e.db.Users().Create(context.Background(), u))

	rec := e.do(http.MethodPost, "/api/v1/auth/token/", "",
		map[string]string{"username": username, "confirmation_code": code})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](e.t, rec)["token"]
}

func TestSignUpAndToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(http.MethodPost, "/api/v1/auth/signup/", "", map[string]string{"username": "alice", "email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"username": "alice", "email": "a@x.com"}, decode[map[string]string](t, rec))

	code := env.inbox.code("a@x.com")
	require.Len(t, code, 16)

	t.Run("wrong code is denied", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/auth/token/", "",
			map[string]string{"username": "alice", "confirmation_code": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user is denied the same way", func(t *testing.T) {
		wrong := env.do(http.MethodPost, "/api/v1/auth/token/", "",
			map[string]string{"username": "alice", "confirmation_code": "nope"})
		unknown := env.do(http.MethodPost, "/api/v1/auth/token/", "",
			map[string]string{"username": "ghost", "confirmation_code": "nope"})
		assert.Equal(t, wrong.Code, unknown.Code)
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	})

	t.Run("repeat sign-up resends the same code", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/auth/signup/", "", map[string]string{"username": "alice", "email": "a@x.com"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, code, env.inbox.code("a@x.com"))
	})

	t.Run("code exchanges for a working token", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/auth/token/", "",
			map[string]string{"username": "alice", "confirmation_code": code})
		require.Equal(t, http.StatusOK, rec.Code)
		token := decode[map[string]string](t, rec)["token"]
		require.NotEmpty(t, token)

		me := env.do(http.MethodGet, "/api/v1/users/me/", token, nil)
		require.Equal(t, http.StatusOK, me.Code)
		user := decode[map[string]any](t, me)
		assert.Equal(t, "alice", user["username"])
		assert.Equal(t, "user", user["role"])
		assert.NotContains(t, user, "confirmation_code")
	})
}

func TestSignUpRejections(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn("alice", "a@x.com")

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"reserved username", map[string]string{"username": "me", "email": "me@x.com"}, "username"},
		{"bad email", map[string]string{"username": "bob", "email": "not-an-email"}, "email"},
		{"taken username", map[string]string{"username": "alice", "email": "other@x.com"}, "username"},
		{"taken email", map[string]string{"username": "bob", "email": "a@x.com"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/auth/signup/", "", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[map[string]string](t, rec)["field"])
		})
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, testConfig())

	t.Run("malformed token is 401", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/titles/", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("anonymous me is 401", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/users/me/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("anonymous reads of the catalog pass", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/titles/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[map[string]any](t, rec)
		assert.EqualValues(t, 0, page["count"])
	})
}

func TestUserAdministration(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice := env.signIn("alice", "a@x.com")
	root := env.admin("root")

	t.Run("members cannot list users", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/users/", alice, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admins list users", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/users/?search=ali", root, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[model.Page[model.User]](t, rec)
		require.Equal(t, 1, page.Count)
		assert.Equal(t, "alice", page.Results[0].Username)
	})

	t.Run("admin creates and promotes a user", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/users/", root, map[string]string{"username": "mod", "email": "mod@x.com"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = env.do(http.MethodPatch, "/api/v1/users/mod/", root, map[string]string{"role": "moderator"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "moderator", decode[map[string]any](t, rec)["role"])
	})

	t.Run("invalid role is rejected", func(t *testing.T) {
		rec := env.do(http.MethodPatch, "/api/v1/users/mod/", root, map[string]string{"role": "overlord"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("members cannot change their own role", func(t *testing.T) {
		rec := env.do(http.MethodPatch, "/api/v1/users/me/", alice, map[string]string{"role": "admin", "bio": "hi"})
		require.Equal(t, http.StatusOK, rec.Code)
		user := decode[map[string]any](t, rec)
		assert.Equal(t, "user", user["role"])
		assert.Equal(t, "hi", user["bio"])
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/v1/users/mod/", root, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(http.MethodGet, "/api/v1/users/mod/", root, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCatalogAndReviews(t *testing.T) {
	env := newTestEnv(t, testConfig())
	root := env.admin("root")
	alice := env.signIn("alice", "a@x.com")
	bob := env.signIn("bob", "b@x.com")

	rec := env.do(http.MethodPost, "/api/v1/categories/", alice, map[string]string{"name": "Books", "slug": "books"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/categories/", root, map[string]string{"name": "Books", "slug": "books"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(http.MethodPost, "/api/v1/genres/", root, map[string]string{"name": "Science fiction", "slug": "sci-fi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/titles/", root, map[string]any{
		"name": "Dune", "year": 1965, "genre": []string{"sci-fi"}, "category": "books",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	title := decode[model.Title](t, rec)
	require.Len(t, title.Genres, 1)
	require.NotNil(t, title.Category)
	assert.Nil(t, title.Rating)

	reviews := "/api/v1/titles/" + itoa(title.ID) + "/reviews/"

	t.Run("score outside 1..10 is rejected", func(t *testing.T) {
		rec := env.do(http.MethodPost, reviews, alice, map[string]any{"text": "meh", "score": 11})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "score", decode[map[string]string](t, rec)["field"])
	})

	rec = env.do(http.MethodPost, reviews, alice, map[string]any{"text": "great", "score": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[model.Review](t, rec)
	assert.Equal(t, "alice", review.AuthorUsername)

	rec = env.do(http.MethodPost, reviews, bob, map[string]any{"text": "bad", "score": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("second review by the same author is rejected", func(t *testing.T) {
		rec := env.do(http.MethodPost, reviews, alice, map[string]any{"text": "again", "score": 5})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous cannot review", func(t *testing.T) {
		rec := env.do(http.MethodPost, reviews, "", map[string]any{"text": "anon", "score": 5})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rating is the rounded average", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/titles/"+itoa(title.ID)+"/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[model.Title](t, rec)
		require.NotNil(t, got.Rating)
		assert.Equal(t, 6, *got.Rating) // (10+1)/2 = 5.5
	})

	reviewPath := reviews + itoa(review.ID) + "/"

	t.Run("non-author cannot edit the review", func(t *testing.T) {
		rec := env.do(http.MethodPatch, reviewPath, bob, map[string]any{"text": "vandalised"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author edits the review", func(t *testing.T) {
		rec := env.do(http.MethodPatch, reviewPath, alice, map[string]any{"score": 9})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 9, decode[model.Review](t, rec).Score)
	})

	t.Run("comments", func(t *testing.T) {
		comments := reviewPath + "comments/"
		rec := env.do(http.MethodPost, comments, bob, map[string]any{"text": "disagree"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		comment := decode[model.Comment](t, rec)

		rec = env.do(http.MethodDelete, comments+itoa(comment.ID)+"/", alice, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(http.MethodDelete, comments+itoa(comment.ID)+"/", root, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(http.MethodGet, "/api/v1/titles/999/reviews/"+itoa(review.ID)+"/comments/", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("filters", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/titles/?genre=sci-fi&year=1965", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[model.Page[model.Title]](t, rec).Count)

		rec = env.do(http.MethodGet, "/api/v1/titles/?category=films", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, decode[model.Page[model.Title]](t, rec).Count)

		rec = env.do(http.MethodGet, "/api/v1/titles/?year=soon", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed id is 404", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/titles/abc/", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 2
	env := newTestEnv(t, cfg)

	body := map[string]string{"username": "alice", "confirmation_code": "x"}
	for range 2 {
		rec := env.do(http.MethodPost, "/api/v1/auth/token/", "", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := env.do(http.MethodPost, "/api/v1/auth/token/", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other routes are not limited.
	rec = env.do(http.MethodGet, "/api/v1/genres/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	cfg.JWTSecret = "short"
	_, err = New(cfg, db, &inbox{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()

	assert.IsType(t, &notify.LogNotifier{}, NewNotifier(cfg, logger))

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 587
	assert.IsType(t, &notify.SMTPNotifier{}, NewNotifier(cfg, logger))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
