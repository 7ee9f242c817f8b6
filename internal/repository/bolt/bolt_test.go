package bolt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), "default")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Nodes()

	n := node.New(node.Metadata{
		UUID:     "node-000001",
		FID:      "welcome-doc",
		Title:    "Welcome",
		Parent:   shared.RootFolderUUID,
		Mimetype: "text/markdown",
		Tags:     []string{"intro"},
	}, "owner@example.com", "default")
	require.NoError(t, repo.Add(ctx, n))

	t.Run("get preserves every field", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		assert.Equal(t, n.Title, got.Title)
		assert.Equal(t, n.FID, got.FID)
		assert.Equal(t, n.Tags, got.Tags)
		assert.Equal(t, n.CreatedTime, got.CreatedTime)
	})

	t.Run("fid lookup and uniqueness survive restarts of the view", func(t *testing.T) {
		got, err := repo.GetByFid(ctx, "welcome-doc")
		require.NoError(t, err)
		assert.Equal(t, "node-000001", got.UUID)

		dup := node.New(node.Metadata{
			UUID: "node-000002", FID: "welcome-doc", Title: "Dup",
			Parent: shared.RootFolderUUID, Mimetype: "text/plain",
		}, "owner@example.com", "default")
		assert.True(t, errors.IsConflict(repo.Add(ctx, dup)))
	})

	t.Run("update moves the fid index", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		got.FID = "intro-doc"
		require.NoError(t, repo.Update(ctx, got))

		_, err = repo.GetByFid(ctx, "welcome-doc")
		assert.True(t, errors.IsNotFound(err))
		moved, err := repo.GetByFid(ctx, "intro-doc")
		require.NoError(t, err)
		assert.Equal(t, "node-000001", moved.UUID)
	})

	t.Run("delete drops node and index", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "node-000001"))
		_, err := repo.GetByID(ctx, "node-000001")
		assert.True(t, errors.IsNotFound(err))
		_, err = repo.GetByFid(ctx, "intro-doc")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestNodeFilterPages(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Nodes()

	for i := 0; i < 7; i++ {
		n := node.New(node.Metadata{
			UUID:     fmt.Sprintf("node-%06d", i),
			Title:    fmt.Sprintf("Doc %d", i),
			Parent:   shared.RootFolderUUID,
			Mimetype: "text/plain",
		}, "owner@example.com", "default")
		require.NoError(t, repo.Add(ctx, n))
	}

	f := filters.NewFilters(filters.Filter{Field: "parent", Operator: filters.OpEqual, Value: shared.RootFolderUUID})
	first, err := repo.Filter(ctx, f, repository.NewPageRequest(5, 1))
	require.NoError(t, err)
	assert.Len(t, first.Items, 5)
	assert.Equal(t, 7, first.Total)
	require.Equal(t, 2, first.NextPageToken)

	second, err := repo.Filter(ctx, f, repository.NewPageRequest(5, first.NextPageToken))
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Zero(t, second.NextPageToken)
}

func TestUserEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Users()

	alice := principal.User{UUID: "user-alice1", Email: "alice@example.com", Name: "Alice", Group: shared.AdminsGroupUUID}
	require.NoError(t, repo.Add(ctx, alice))

	err := repo.Add(ctx, principal.User{UUID: "user-alice2", Email: "alice@example.com", Name: "Clone", Group: shared.AdminsGroupUUID})
	assert.True(t, errors.IsConflict(err))

	got, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-alice1", got.UUID)
}

func TestAuditAppendSequence(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Audit()

	for i := 1; i <= 4; i++ {
		stamped, err := repo.Append(ctx, "node-000009", "text/plain", audit.Entry{
			EventID:    shared.NewUUID(),
			EventType:  "node.updated",
			OccurredOn: time.Now().UTC(),
			UserEmail:  "owner@example.com",
			Tenant:     "default",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i), stamped.Sequence)
	}

	stream, err := repo.GetStream(ctx, "node-000009")
	require.NoError(t, err)
	assert.Len(t, stream.Entries, 4)

	streams, err := repo.ListStreams(ctx, "text/plain")
	require.NoError(t, err)
	assert.Len(t, streams, 1)
}
