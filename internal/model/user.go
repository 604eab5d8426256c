// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// ID is an internal xid and is what access tokens carry as their subject.
// Username and Email are both unique; Email is stored lower-cased.
// ConfirmationCode is nil until the first sign-up issues one and is never
// serialized.
type User struct {
	ID               string    `json:"-"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             Role      `json:"role"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Bio              string    `json:"bio"`
	ConfirmationCode *string   `json:"-"`
	IsSuperuser      bool      `json:"-"`
	CreatedAt        time.Time `json:"-"`
}

// UserPatch carries a partial update. Nil fields are left untouched.
type UserPatch struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	Role      *Role   `json:"role"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}
