// Package policy decides whether a principal may perform an action.
//
// A Policy is a pair of predicates:
//
//	Allow(p, action)                 collection level: list, create, or a
//	                                 coarse gate before any instance is loaded
//	AllowObject(p, action, ownerID)  instance level: the resource's author or
//	                                 owning account is known
//
// Both are pure functions of their arguments. Nothing is cached between
// requests, so a role change takes effect on the very next call.
package policy

import (
	"net/http"

	"github.com/sakif/yamdb/internal/model"
)

// Principal is the actor making a request. The zero value is anonymous.
type Principal struct {
	UserID    string
	Username  string
	Role      model.Role
	Superuser bool
}

// Anonymous is the principal of a request without credentials.
var Anonymous = Principal{}

// Authenticated reports whether the principal resolved to a stored user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// IsAdmin is true for the admin role and for superusers, whatever their
// role field says.
func (p Principal) IsAdmin() bool {
	return p.Authenticated() && (p.Superuser || p.Role.AtLeast(model.RoleAdmin))
}

// IsPrivileged is true for moderators and everyone above them.
func (p Principal) IsPrivileged() bool {
	return p.IsAdmin() || (p.Authenticated() && p.Role.AtLeast(model.RoleModerator))
}

// Action is what the principal is trying to do to a resource.
type Action int

const (
	ActionList Action = iota + 1
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionDelete
)

// Safe reports whether the action cannot mutate state.
func (a Action) Safe() bool {
	return a == ActionList || a == ActionRetrieve
}

func (a Action) String() string {
	switch a {
	case ActionList:
		return "list"
	case ActionRetrieve:
		return "retrieve"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ActionFromMethod maps an HTTP method onto the action vocabulary.
// Unknown methods map to ActionUpdate so that they are treated as unsafe.
func ActionFromMethod(method string) Action {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRetrieve
	case http.MethodPost:
		return ActionCreate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionUpdate
	}
}

// Rule is a single predicate over the principal, the action and, for
// instance checks, the owner of the resource ("" when none is known).
type Rule func(p Principal, a Action, ownerID string) bool

// Policy combines a collection-level rule and an instance-level rule.
// A nil object rule means no instance check beyond the collection rule.
type Policy struct {
	Name   string
	perm   Rule
	object Rule
}

// New builds a policy from its two rules.
func New(name string, perm, object Rule) Policy {
	return Policy{Name: name, perm: perm, object: object}
}

// Allow evaluates the collection-level rule.
func (pol Policy) Allow(p Principal, a Action) bool {
	if pol.perm == nil {
		return false
	}
	return pol.perm(p, a, "")
}

// AllowObject evaluates the collection-level rule and then the instance
// rule against ownerID.
func (pol Policy) AllowObject(p Principal, a Action, ownerID string) bool {
	if !pol.Allow(p, a) {
		return false
	}
	if pol.object == nil {
		return true
	}
	return pol.object(p, a, ownerID)
}

// All returns a policy that allows only what every given policy allows.
func All(name string, policies ...Policy) Policy {
	perm := func(p Principal, a Action, _ string) bool {
		for _, pol := range policies {
			if !pol.Allow(p, a) {
				return false
			}
		}
		return true
	}
	object := func(p Principal, a Action, ownerID string) bool {
		for _, pol := range policies {
			if pol.object != nil && !pol.object(p, a, ownerID) {
				return false
			}
		}
		return true
	}
	return New(name, perm, object)
}

// === Building blocks ===

func safe(_ Principal, a Action, _ string) bool { return a.Safe() }
func authenticated(p Principal, _ Action, _ string) bool { return p.Authenticated() }
func admin(p Principal, _ Action, _ string) bool { return p.IsAdmin() }
func privileged(p Principal, _ Action, _ string) bool { return p.IsPrivileged() }

// author matches the owner of the instance. An unknown owner matches nobody.
func author(p Principal, _ Action, ownerID string) bool {
	return p.Authenticated() && ownerID != "" && ownerID == p.UserID
}

// anyOf short-circuits on the first rule that allows.
func anyOf(rules ...Rule) Rule {
	return func(p Principal, a Action, ownerID string) bool {
		for _, r := range rules {
			if r(p, a, ownerID) {
				return true
			}
		}
		return false
	}
}

// === Named policies ===

var (
	// AdminWriteOnly: anyone reads; only admins write.
	// Categories, genres and titles.
	AdminWriteOnly = New("AdminWriteOnly", anyOf(safe, admin), anyOf(safe, admin))

	// AuthorOrPrivilegedWrite: anyone reads; authenticated users create;
	// only the author, a moderator or an admin changes an instance.
	// Reviews and comments.
	AuthorOrPrivilegedWrite = New("AuthorOrPrivilegedWrite",
		anyOf(safe, authenticated),
		anyOf(safe, author, privileged),
	)

	// OwnerOnly: the account itself, for everything. /users/me/.
	OwnerOnly = New("OwnerOnly", authenticated, author)

	// AdminOnly: admins only, for everything. /users/.
	AdminOnly = New("AdminOnly", admin, admin)

	// AuthenticatedOrReadOnly: anyone reads; authenticated users write.
	AuthenticatedOrReadOnly = New("AuthenticatedOrReadOnly", anyOf(safe, authenticated), nil)
)
