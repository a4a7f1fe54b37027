package auth

import (
	"strings"

	"mercadito/pkg/apperr"
	"mercadito/pkg/models"
)

// EnsureRole is the shared authorization predicate. It is pure: the role was
// asserted upstream by the identity provider, so no lookup happens here. The
// returned error names both the attempted role and the allowed set.
func EnsureRole(user models.Claims, allowed ...string) error {
	for _, role := range allowed {
		if user.Role == role {
			return nil
		}
	}
	return apperr.Forbidden("role %q is not allowed (allowed: %s)",
		user.Role, strings.Join(allowed, ", "))
}
