// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can pass
// in-memory fakes. Every error they return is either an *apperror.AppError
// or a wrapped store failure that the handler reports as 500.
package service

import (
	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/policy"
)

// deny turns a policy refusal into the right error for the caller: an
// anonymous principal must log in first, anyone else is simply forbidden.
func deny(p policy.Principal) error {
	if !p.Authenticated() {
		return apperror.Unauthorized("authentication credentials were not provided")
	}
	return apperror.Forbidden("you do not have permission to perform this action")
}

func page[T any](items []T, total int) model.Page[T] {
	if items == nil {
		items = []T{}
	}
	return model.Page[T]{Count: total, Results: items}
}
