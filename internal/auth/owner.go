package auth

import "context"

// EnsureOwner checks that the caller may act on a resource owned by ownerID.
// Operators and admins act on any resource. A context without identity is
// treated as internal and allowed.
func EnsureOwner(ctx context.Context, ownerID string) error {
	role := RoleFromContext(ctx)
	if role == "" {
		return nil
	}
	if RoleAtLeast(role, RoleOperator) {
		return nil
	}
	if subject := SubjectFromContext(ctx); subject != "" && subject == ownerID {
		return nil
	}
	return ErrForbidden
}

// OwnerScope resolves which owner a listing request may read. Residents are
// pinned to their own subject; staff may pass any owner.
func OwnerScope(ctx context.Context, requested string) (string, error) {
	role := RoleFromContext(ctx)
	if role == "" || RoleAtLeast(role, RoleOperator) {
		return requested, nil
	}
	subject := SubjectFromContext(ctx)
	if requested != "" && requested != subject {
		return "", ErrForbidden
	}
	return subject, nil
}
