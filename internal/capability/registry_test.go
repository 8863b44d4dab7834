package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

func TestRegistryList(t *testing.T) {
	r := NewRegistry()

	caps := r.List()
	require.Len(t, caps, 2)
	assert.Equal(t, "customs-api", caps[0].Name)
	assert.Equal(t, "sanctions-screening", caps[1].Name)
	for _, c := range caps {
		assert.Equal(t, StatusUnavailable, c.Status)
		assert.NotEmpty(t, c.Detail)
	}
}

func TestRegistryCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("declared but unwired capability reports its pinned status", func(t *testing.T) {
		r := NewRegistry()
		result, err := r.Check(ctx, "customs-api")
		require.NoError(t, err)
		assert.Equal(t, StatusUnavailable, result.Status)
		assert.NotEmpty(t, result.Detail)
		assert.False(t, result.CheckedAt.IsZero())
	})

	t.Run("unknown capability", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Check(ctx, "telepathy")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("healthy checker reports available", func(t *testing.T) {
		r := NewRegistry()
		r.Declare(Capability{Name: "customs-api", Status: StatusAvailable}, func(context.Context) error {
			return nil
		})
		result, err := r.Check(ctx, "customs-api")
		require.NoError(t, err)
		assert.Equal(t, StatusAvailable, result.Status)
		assert.Empty(t, result.Detail)
	})

	t.Run("failing checker overrides the declared status", func(t *testing.T) {
		r := NewRegistry()
		r.Declare(Capability{Name: "customs-api", Status: StatusAvailable}, func(context.Context) error {
			return errors.New("broker endpoint unreachable")
		})
		result, err := r.Check(ctx, "customs-api")
		require.NoError(t, err)
		assert.Equal(t, StatusUnavailable, result.Status)
		assert.Equal(t, "broker endpoint unreachable", result.Detail)
	})

	t.Run("redeclaring without a checker pins the status again", func(t *testing.T) {
		r := NewRegistry()
		r.Declare(Capability{Name: "customs-api", Status: StatusAvailable}, func(context.Context) error {
			return errors.New("down")
		})
		r.Declare(Capability{Name: "customs-api", Status: StatusUnavailable, Detail: "retired"}, nil)
		result, err := r.Check(ctx, "customs-api")
		require.NoError(t, err)
		assert.Equal(t, StatusUnavailable, result.Status)
		assert.Equal(t, "retired", result.Detail)
	})
}
