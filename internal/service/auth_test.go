package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository with the same
// uniqueness rules as the real schema.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	creates int
	// beforeCreate runs inside Create before the uniqueness check, to
	// simulate a concurrent writer slipping in.
	beforeCreate func()
	createErr    error
	getErr       error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) insert(u *model.User) {
	f.nextID++
	u.ID = fmt.Sprintf("u%03d", f.nextID)
	stored := *u
	f.users[u.ID] = &stored
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.beforeCreate != nil {
		hook := f.beforeCreate
		f.beforeCreate = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.Conflict("username", "duplicate username")
		}
		if existing.Email == u.Email {
			return apperror.Conflict("email", "duplicate email")
		}
	}
	f.creates++
	f.insert(u)
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username }, username)
}

func (f *fakeUserRepo) GetByUsernameAndEmail(_ context.Context, username, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username && u.Email == email }, username)
}

func (f *fakeUserRepo) TakenField(_ context.Context, username, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field := ""
	for _, u := range f.users {
		if u.Username == username {
			return "username", nil
		}
		if u.Email == email {
			field = "email"
		}
	}
	return field, nil
}

func (f *fakeUserRepo) EnsureConfirmationCode(_ context.Context, id, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return "", apperror.NotFound("user", id)
	}
	if u.ConfirmationCode == nil {
		u.ConfirmationCode = &code
	}
	return *u.ConfirmationCode, nil
}

func (f *fakeUserRepo) List(context.Context, string, repository.ListOptions) ([]model.User, int, error) {
	return nil, 0, errors.New("not used")
}

func (f *fakeUserRepo) Update(context.Context, *model.User) error { return errors.New("not used") }
func (f *fakeUserRepo) Delete(context.Context, string) error      { return errors.New("not used") }

type fakeNotifier struct {
	sent []sentCode
	err  error
}

type sentCode struct{ email, username, code string }

func (n *fakeNotifier) SendConfirmationCode(_ context.Context, email, username, code string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentCode{email, username, code})
	return nil
}

func (n *fakeNotifier) last(t *testing.T) sentCode {
	t.Helper()
	require.NotEmpty(t, n.sent, "no confirmation code was sent")
	return n.sent[len(n.sent)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	notifier *fakeNotifier
	tokens   *auth.TokenService
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	codes, err := auth.NewCodeGenerator(auth.DefaultCodeLength, auth.DefaultCodeAlphabet)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	require.NoError(t, err)

	users := newFakeUserRepo()
	notifier := &fakeNotifier{}
	return authFixture{
		svc:      NewAuthService(users, codes, tokens, notifier, testLogger()),
		users:    users,
		notifier: notifier,
		tokens:   tokens,
	}
}

// =========================================================================
// SIGN-UP TESTS
// =========================================================================

func TestSignUp_NewPair(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.SignUp(context.Background(), "alice", "A@X.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "a@x.com", res.Email, "email is lower-cased")
	assert.True(t, res.Created)
	assert.Equal(t, 1, f.users.creates)

	sent := f.notifier.last(t)
	assert.Equal(t, "a@x.com", sent.email)
	assert.Len(t, sent.code, 16)
	for _, r := range sent.code {
		assert.True(t, strings.ContainsRune(auth.DefaultCodeAlphabet, r))
	}
}

func TestSignUp_RepeatReusesCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	first := f.notifier.last(t).code

	res, err := f.svc.SignUp(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1, f.users.creates, "no second user")
	assert.Equal(t, first, f.notifier.last(t).code, "same code delivered again")
	assert.Len(t, f.notifier.sent, 2)
}

func TestSignUp_Conflicts(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		email     string
		wantField string
	}{
		{"username bound to another email", "alice", "other@x.com", "username"},
		{"email bound to another username", "bob", "a@x.com", "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com")
			require.NoError(t, err)

			_, err = f.svc.SignUp(context.Background(), tt.username, tt.email)
			require.ErrorIs(t, err, apperror.ErrConflict)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Equal(t, 1, f.users.creates, "no user created")
			assert.Len(t, f.notifier.sent, 1, "nothing delivered")
		})
	}
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		email     string
		wantField string
	}{
		{"reserved me", "me", "me@x.com", "username"},
		{"reserved me any email", "me", "whatever@example.org", "username"},
		{"bad characters", "al ice", "a@x.com", "username"},
		{"empty username", "", "a@x.com", "username"},
		{"too long", strings.Repeat("a", 151), "a@x.com", "username"},
		{"bad email", "alice", "not-an-email", "email"},
		{"empty email", "alice", "", "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.SignUp(context.Background(), tt.username, tt.email)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Zero(t, f.users.creates)
		})
	}
}

func TestSignUp_NotifierFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.err = errors.New("smtp: 421 service not available")

	_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com")
	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.NotContains(t, err.Error(), "421", "cause stays out of the message")
}

func TestSignUp_ConcurrentSamePair(t *testing.T) {
	f := newAuthFixture(t)

	// Another request registers the same pair between our existence check
	// and our insert.
	var winnerCode string
	f.users.beforeCreate = func() {
		code := "WinnerCode000000"
		winnerCode = code
		f.users.mu.Lock()
		f.users.insert(&model.User{Username: "alice", Email: "a@x.com", Role: model.RoleUser, ConfirmationCode: &code})
		f.users.mu.Unlock()
	}

	res, err := f.svc.SignUp(context.Background(), "alice", "a@x.com")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, winnerCode, f.notifier.last(t).code, "loser delivers the winner's code")
	assert.Len(t, f.users.users, 1)
}

func TestSignUp_ConcurrentDifferentPair(t *testing.T) {
	f := newAuthFixture(t)

	f.users.beforeCreate = func() {
		f.users.mu.Lock()
		f.users.insert(&model.User{Username: "alice", Email: "someone-else@x.com", Role: model.RoleUser})
		f.users.mu.Unlock()
	}

	_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com")
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Empty(t, f.notifier.sent)
}

func TestSignUp_AdminCreatedUserGetsCode(t *testing.T) {
	f := newAuthFixture(t)
	f.users.insert(&model.User{Username: "carol", Email: "c@x.com", Role: model.RoleUser})

	res, err := f.svc.SignUp(context.Background(), "carol", "c@x.com")
	require.NoError(t, err)
	assert.False(t, res.Created)

	code := f.notifier.last(t).code
	assert.Len(t, code, 16)
	stored, _ := f.users.GetByUsername(context.Background(), "carol")
	require.NotNil(t, stored.ConfirmationCode)
	assert.Equal(t, code, *stored.ConfirmationCode)
}

func TestSignUp_StoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.users.getErr = errors.New("database is locked")

	_, err := f.svc.SignUp(context.Background(), "alice", "a@x.com")
	require.Error(t, err)
	var appErr *apperror.AppError
	assert.False(t, errors.As(err, &appErr), "store failures are not client errors")
}

// =========================================================================
// TOKEN TESTS
// =========================================================================

func TestIssueToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	code := f.notifier.last(t).code

	token, err := f.svc.IssueToken(ctx, "alice", code)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := f.tokens.Validate(token)
	require.NoError(t, err)
	alice, _ := f.users.GetByUsername(ctx, "alice")
	assert.Equal(t, alice.ID, subject, "token carries the internal id")

	// Codes stay valid after use.
	_, err = f.svc.IssueToken(ctx, "alice", code)
	assert.NoError(t, err)
}

func TestIssueToken_Denied(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	f.users.insert(&model.User{Username: "nocode", Email: "n@x.com", Role: model.RoleUser})

	tests := []struct {
		name     string
		username string
		code     string
	}{
		{"wrong code", "alice", "wrong0000000000"},
		{"unknown user", "nobody", "wrong0000000000"},
		{"user without code", "nocode", "anything"},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := f.svc.IssueToken(ctx, tt.username, tt.code)
			require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
			assert.Empty(t, token)
			messages = append(messages, err.Error())
		})
	}

	// Callers cannot tell an unknown user from a wrong code.
	for _, m := range messages {
		assert.Equal(t, messages[0], m)
	}
}

func TestIssueToken_MissingFields(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.IssueToken(context.Background(), "", "code")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.IssueToken(context.Background(), "alice", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
