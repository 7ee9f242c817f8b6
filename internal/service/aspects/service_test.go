package aspects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	repomemory "antbox-backend/internal/repository/memory"
	"antbox-backend/pkg/errors"
)

var (
	adminCtx  = principal.New("default", shared.RootUserEmail, shared.AdminsGroupUUID)
	editorCtx = principal.New("default", "editor@example.com")
)

func TestAspectLifecycle(t *testing.T) {
	svc := NewService(repomemory.NewAspectRepository(), zap.NewNop())
	ctx := context.Background()

	invoice := &aspect.Aspect{
		Title: "Invoice",
		Properties: []aspect.Property{
			{Name: "amount", Type: aspect.PropertyNumber, Required: true},
			{Name: "currency", Type: aspect.PropertyString, ValidationList: []interface{}{"EUR", "USD"}},
		},
	}

	stored, err := svc.CreateOrReplace(ctx, adminCtx, invoice)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.UUID)

	t.Run("replace overwrites in place", func(t *testing.T) {
		stored.Description = "billing schema"
		again, err := svc.CreateOrReplace(ctx, adminCtx, stored)
		require.NoError(t, err)
		assert.Equal(t, "billing schema", again.Description)

		all, err := svc.List(ctx, editorCtx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("non-admin cannot mutate", func(t *testing.T) {
		_, err := svc.CreateOrReplace(ctx, editorCtx, invoice)
		assert.True(t, errors.IsForbidden(err))
		assert.True(t, errors.IsForbidden(svc.Delete(ctx, editorCtx, stored.UUID)))
	})

	t.Run("anyone may read", func(t *testing.T) {
		got, err := svc.Get(ctx, editorCtx, stored.UUID)
		require.NoError(t, err)
		assert.Equal(t, "Invoice", got.Title)
	})

	t.Run("invalid schema is rejected", func(t *testing.T) {
		_, err := svc.CreateOrReplace(ctx, adminCtx, &aspect.Aspect{
			Title:      "Broken",
			Properties: []aspect.Property{{Name: "x", Type: "wat"}},
		})
		assert.True(t, errors.IsValidation(err))
	})

	require.NoError(t, svc.Delete(ctx, adminCtx, stored.UUID))
	_, err = svc.Get(ctx, adminCtx, stored.UUID)
	assert.True(t, errors.IsNotFound(err))
}
