package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []string{RoleViewer, RoleEditor, RoleAdmin}

func rank(role string) int {
	return slices.Index(roleOrder, strings.ToLower(strings.TrimSpace(role)))
}

// HasAtLeast reports whether any of roles ranks at or above required.
func HasAtLeast(roles []string, required string) bool {
	need := rank(required)
	if need < 0 {
		return false
	}
	return slices.ContainsFunc(roles, func(role string) bool { return rank(role) >= need })
}

// IsReadOnly reports whether the method leaves templates untouched.
func IsReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// RequiredRole is viewer for reads and editor for every write.
func RequiredRole(method string) string {
	if IsReadOnly(method) {
		return RoleViewer
	}
	return RoleEditor
}

type AuthorizeFunc func(r *http.Request, identity Identity) error

func MethodRoleAuthorizer() AuthorizeFunc {
	return func(r *http.Request, identity Identity) error {
		if !HasAtLeast(identity.Roles, RequiredRole(r.Method)) {
			return ErrForbidden
		}
		return nil
	}
}
