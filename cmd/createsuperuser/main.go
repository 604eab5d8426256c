// Command createsuperuser creates an administrator account, or promotes an
// existing one, and prints its confirmation code.
//
// Usage:
//
//	createsuperuser -db data/yamdb.db -username root -email root@example.com
//
// The printed code is exchanged for a token at POST /api/v1/auth/token/.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/model"
	sqliteRepo "github.com/sakif/yamdb/internal/repository/sqlite"
	"github.com/sakif/yamdb/internal/validate"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "createsuperuser:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dbPath := fs.String("db", envOr("DB_PATH", "data/yamdb.db"), "path to the SQLite database")
	username := fs.String("username", "", "username of the superuser")
	email := fs.String("email", "", "email of the superuser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	name, err := validate.Username(*username)
	if err != nil {
		return err
	}
	addr, err := validate.Email(*email)
	if err != nil {
		return err
	}

	codes, err := auth.NewCodeGenerator(auth.DefaultCodeLength, auth.DefaultCodeAlphabet)
	if err != nil {
		return err
	}

	db, err := sqliteRepo.New(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	user, created, err := ensureSuperuser(ctx, db.Users(), name, addr, codes.Generate)
	if err != nil {
		return err
	}

	verb := "promoted"
	if created {
		verb = "created"
	}
	fmt.Fprintf(stdout, "superuser %q %s\nconfirmation code: %s\n", user.Username, verb, *user.ConfirmationCode)
	return nil
}

type userStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Update(ctx context.Context, u *model.User) error
	EnsureConfirmationCode(ctx context.Context, id, code string) (string, error)
}

// ensureSuperuser makes username an admin superuser with a confirmation
// code. An existing account keeps its email and its code if it has one.
func ensureSuperuser(ctx context.Context, users userStore, username, email string, newCode func() string) (*model.User, bool, error) {
	user, err := users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		code := newCode()
		user = &model.User{
			Username:         username,
			Email:            email,
			Role:             model.RoleAdmin,
			IsSuperuser:      true,
			ConfirmationCode: &code,
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, false, err
		}
		return user, true, nil
	case err != nil:
		return nil, false, err
	}

	user.Role = model.RoleAdmin
	user.IsSuperuser = true
	if err := users.Update(ctx, user); err != nil {
		return nil, false, err
	}
	code, err := users.EnsureConfirmationCode(ctx, user.ID, newCode())
	if err != nil {
		return nil, false, err
	}
	user.ConfirmationCode = &code
	return user, false, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
