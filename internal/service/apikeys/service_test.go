package apikeys

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	repomemory "antbox-backend/internal/repository/memory"
	"antbox-backend/pkg/errors"
)

var (
	adminCtx  = principal.New("default", shared.RootUserEmail, shared.AdminsGroupUUID)
	editorCtx = principal.New("default", "editor@example.com")
)

func newService(t *testing.T) *Service {
	t.Helper()
	groups := repomemory.NewGroupRepository()
	for _, g := range principal.BuiltinGroups() {
		require.NoError(t, groups.Add(context.Background(), g))
	}
	return NewService(repomemory.NewAPIKeyRepository(), groups, zap.NewNop())
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	k, err := svc.Create(ctx, adminCtx, shared.AdminsGroupUUID, "ci pipeline")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(k.Secret), apikey.MinSecretLength)
	assert.True(t, k.Active)

	auth, err := svc.Authenticate(ctx, "default", k.Secret)
	require.NoError(t, err)
	assert.True(t, auth.IsAdmin())
	assert.True(t, auth.HasGroup(shared.AdminsGroupUUID))

	t.Run("listing redacts the secret", func(t *testing.T) {
		keys, err := svc.List(ctx, adminCtx)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.True(t, strings.HasSuffix(keys[0].Secret, "****"))
		assert.NotEqual(t, k.Secret, keys[0].Secret)
	})

	t.Run("unknown secret does not authenticate", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "default", "nope-nope-nope-nope")
		assert.True(t, errors.IsUnauthorized(err))
	})

	t.Run("revoked key does not authenticate", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, adminCtx, k.UUID))
		_, err := svc.Authenticate(ctx, "default", k.Secret)
		assert.True(t, errors.IsUnauthorized(err))
	})
}

func TestAdminOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, editorCtx, shared.AdminsGroupUUID, "")
	assert.True(t, errors.IsForbidden(err))

	_, err = svc.List(ctx, editorCtx)
	assert.True(t, errors.IsForbidden(err))

	assert.True(t, errors.IsForbidden(svc.Delete(ctx, editorCtx, "whatever")))
}

func TestCreateRejectsUnknownGroup(t *testing.T) {
	svc := newService(t)
	_, err := svc.Create(context.Background(), adminCtx, "no-such-group-1", "")
	assert.True(t, errors.HasCode(err, errors.CodeGroupNotFound))
}
