package tenantguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

const grantedTenant = "11111111-2222-3333-4444-555555555555"

func actorCtx(grants ...string) context.Context {
	ctx := requestcontext.WithActor(context.Background(), "actor-1", "auditor")
	return requestcontext.WithTenantGrants(ctx, grants)
}

func TestValidate(t *testing.T) {
	guard := New()

	t.Run("granted tenant passes", func(t *testing.T) {
		id, err := guard.Validate(actorCtx(grantedTenant), grantedTenant)
		require.NoError(t, err)
		assert.Equal(t, grantedTenant, id.String())
	})

	t.Run("no actor identity is unauthenticated", func(t *testing.T) {
		_, err := guard.Validate(context.Background(), grantedTenant)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("missing tenant id is a validation error", func(t *testing.T) {
		_, err := guard.Validate(actorCtx(grantedTenant), "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("malformed tenant id is invalid input", func(t *testing.T) {
		_, err := guard.Validate(actorCtx(grantedTenant), "tenant-7")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("ungranted tenant is forbidden", func(t *testing.T) {
		_, err := guard.Validate(actorCtx(grantedTenant), "99999999-8888-7777-6666-555555555555")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("tenant is never inferred from grants", func(t *testing.T) {
		// Holding exactly one grant does not make that grant the default.
		_, err := guard.Validate(actorCtx(grantedTenant), "")
		assert.Error(t, err)
	})
}

func TestAsNotFound(t *testing.T) {
	forbidden := dErrors.New(dErrors.CodeForbidden, "actor is not authorized for this tenant")
	rewritten := AsNotFound(forbidden)
	assert.True(t, dErrors.HasCode(rewritten, dErrors.CodeNotFound))

	validation := dErrors.New(dErrors.CodeValidation, "tenant id is required")
	assert.Equal(t, validation, AsNotFound(validation))

	assert.NoError(t, AsNotFound(nil))
}
