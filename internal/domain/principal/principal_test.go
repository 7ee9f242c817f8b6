package principal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

func TestContextPredicates(t *testing.T) {
	t.Run("root is admin", func(t *testing.T) {
		ctx := Elevated("acme")
		assert.True(t, ctx.IsRoot())
		assert.True(t, ctx.IsAdmin())
		assert.True(t, ctx.IsAuthenticated())
		assert.Equal(t, ModeAction, ctx.Mode)
	})

	t.Run("admins member is admin without being root", func(t *testing.T) {
		ctx := New("acme", "ops@example.com", shared.AdminsGroupUUID)
		assert.False(t, ctx.IsRoot())
		assert.True(t, ctx.IsAdmin())
	})

	t.Run("anonymous is not authenticated", func(t *testing.T) {
		ctx := Anonymous("acme")
		assert.True(t, ctx.IsAnonymous())
		assert.False(t, ctx.IsAuthenticated())
		assert.False(t, ctx.IsAdmin())
		assert.True(t, ctx.HasGroup(shared.AnonymousGroupUUID))
	})

	t.Run("group membership", func(t *testing.T) {
		ctx := New("acme", "a@b.co", "g1", "g2")
		assert.True(t, ctx.HasGroup("g1"))
		assert.False(t, ctx.HasGroup("g3"))
		assert.True(t, ctx.SharesGroupWith([]string{"g3", "g2"}))
		assert.False(t, ctx.SharesGroupWith([]string{"g3", "g4"}))
	})
}

func TestContextDerivation(t *testing.T) {
	base := New("acme", "a@b.co", "g1")

	t.Run("with groups appends without duplicates", func(t *testing.T) {
		derived := base.WithGroups("g2", "g1")
		assert.ElementsMatch(t, []string{"g1", "g2"}, derived.Principal.Groups)
		assert.Equal(t, []string{"g1"}, base.Principal.Groups, "original must not change")
	})

	t.Run("with mode", func(t *testing.T) {
		derived := base.WithMode(ModeAI)
		assert.Equal(t, ModeAI, derived.Mode)
		assert.Equal(t, ModeDirect, base.Mode)
	})

	t.Run("action context carries author email", func(t *testing.T) {
		ctx := ActionFor("acme", "author@example.com")
		assert.Equal(t, ModeAction, ctx.Mode)
		assert.Equal(t, "author@example.com", ctx.Principal.Email)
	})
}

func TestIdentityValidation(t *testing.T) {
	t.Run("valid user", func(t *testing.T) {
		u := User{UUID: "u-12345678", Email: "a@b.co", Name: "A", Group: "g1"}
		assert.NoError(t, u.Validate())
	})

	t.Run("invalid user aggregates errors", func(t *testing.T) {
		err := User{Email: "not-an-email"}.Validate()
		require.Error(t, err)
		require.True(t, errors.IsValidation(err))
		msgs := errors.GetAppError(err).Details["errors"].([]string)
		assert.Len(t, msgs, 4)
	})

	t.Run("group requires uuid and title", func(t *testing.T) {
		assert.NoError(t, Group{UUID: "g-12345678", Title: "Editors"}.Validate())
		assert.Error(t, Group{}.Validate())
	})
}

func TestBuiltins(t *testing.T) {
	t.Run("all groups folds primary and secondary", func(t *testing.T) {
		u := User{Group: "g1", Groups: []string{"g2", "g1"}}
		assert.Equal(t, []string{"g1", "g2"}, u.AllGroups())
	})

	t.Run("seed users", func(t *testing.T) {
		assert.Len(t, BuiltinUsers(), 4)
		assert.True(t, IsBuiltinUser(shared.RootUserEmail))
		assert.True(t, IsBuiltinUser(shared.AnonymousUserEmail))
		assert.False(t, IsBuiltinUser("someone@example.com"))
	})

	t.Run("seed groups", func(t *testing.T) {
		assert.Len(t, BuiltinGroups(), 2)
		assert.True(t, IsBuiltinGroup(shared.AdminsGroupUUID))
		assert.True(t, IsBuiltinGroup(shared.AnonymousGroupUUID))
		assert.False(t, IsBuiltinGroup("g-custom"))
	})

	t.Run("root user belongs to admins", func(t *testing.T) {
		assert.Equal(t, shared.AdminsGroupUUID, RootUser.Group)
	})
}
