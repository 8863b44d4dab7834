// Package tenantguard binds every operation to an explicit, authorized
// tenant. The tenant id is always a parameter handed in by the caller; it is
// never inferred from the actor's own identity or any ambient session state.
package tenantguard

import (
	"context"

	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// Guard validates tenant bindings against the authenticated actor's grants.
type Guard struct{}

// New constructs a Guard.
func New() *Guard {
	return &Guard{}
}

// Validate checks the explicit tenant id and the actor's authorization for it.
//
// Errors, evaluated in order:
//   - CodeUnauthorized when no actor identity is present
//   - CodeValidation when the tenant id is missing
//   - CodeInvalidInput when it is malformed
//   - CodeForbidden when the actor holds no grant for it
//
// Mutation and read endpoints that check record existence must convert the
// forbidden case to not-found before responding (see AsNotFound) so an
// unauthorized tenant learns nothing about record existence.
func (g *Guard) Validate(ctx context.Context, rawTenantID string) (domain.TenantID, error) {
	if requestcontext.ActorID(ctx) == "" {
		return domain.TenantID{}, dErrors.New(dErrors.CodeUnauthorized, "no actor identity")
	}
	if rawTenantID == "" {
		return domain.TenantID{}, dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	tenantID, err := domain.ParseTenantID(rawTenantID)
	if err != nil {
		return domain.TenantID{}, err
	}
	for _, grant := range requestcontext.TenantGrants(ctx) {
		if grant == tenantID.String() {
			return tenantID, nil
		}
	}
	return domain.TenantID{}, dErrors.New(dErrors.CodeForbidden, "actor is not authorized for this tenant")
}

// AsNotFound rewrites a tenant-mismatch error into not-found. Endpoints that
// would otherwise confirm a record's existence to a foreign tenant apply this
// uniformly (anti-enumeration policy).
func AsNotFound(err error) error {
	if dErrors.HasCode(err, dErrors.CodeForbidden) {
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	return err
}
