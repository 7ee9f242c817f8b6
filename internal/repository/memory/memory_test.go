package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/apikey"
	"antbox-backend/internal/domain/audit"
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

func newNode(uuid, title, parent string) *node.Node {
	n := node.New(node.Metadata{
		UUID:     uuid,
		Title:    title,
		Parent:   parent,
		Mimetype: "text/plain",
	}, "owner@example.com", "default")
	return n
}

func apiKeyFixture(uuid, secret string) apikey.APIKey {
	return apikey.APIKey{
		UUID:        uuid,
		Secret:      secret,
		Group:       shared.AdminsGroupUUID,
		Active:      true,
		CreatedTime: shared.NowISO(),
	}
}

func TestNodeRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository()

	n := newNode("node-000001", "First", shared.RootFolderUUID)
	n.FID = "first-doc"
	require.NoError(t, repo.Add(ctx, n))

	t.Run("duplicate uuid conflicts", func(t *testing.T) {
		err := repo.Add(ctx, newNode("node-000001", "Other", shared.RootFolderUUID))
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("duplicate fid conflicts", func(t *testing.T) {
		dup := newNode("node-000002", "Second", shared.RootFolderUUID)
		dup.FID = "first-doc"
		err := repo.Add(ctx, dup)
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("get by id and fid", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		assert.Equal(t, "First", got.Title)

		got, err = repo.GetByFid(ctx, "first-doc")
		require.NoError(t, err)
		assert.Equal(t, "node-000001", got.UUID)
	})

	t.Run("update reindexes fid", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		got.FID = "renamed-doc"
		require.NoError(t, repo.Update(ctx, got))

		_, err = repo.GetByFid(ctx, "first-doc")
		assert.True(t, errors.IsNotFound(err))
		found, err := repo.GetByFid(ctx, "renamed-doc")
		require.NoError(t, err)
		assert.Equal(t, "node-000001", found.UUID)
	})

	t.Run("stored nodes are isolated from caller mutation", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		got.Title = "mutated"

		again, err := repo.GetByID(ctx, "node-000001")
		require.NoError(t, err)
		assert.Equal(t, "First", again.Title)
	})

	t.Run("delete removes both indexes", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "node-000001"))
		_, err := repo.GetByID(ctx, "node-000001")
		assert.True(t, errors.IsNotFound(err))
		_, err = repo.GetByFid(ctx, "renamed-doc")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("missing node not found", func(t *testing.T) {
		assert.True(t, errors.IsNotFound(repo.Delete(ctx, "node-missing")))
		assert.True(t, errors.IsNotFound(repo.Update(ctx, newNode("node-missing", "X", shared.RootFolderUUID))))
	})
}

func TestNodeRepositoryFilterPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository()

	for i := 0; i < 25; i++ {
		n := newNode(fmt.Sprintf("node-%06d", i), fmt.Sprintf("Doc %02d", i), shared.RootFolderUUID)
		require.NoError(t, repo.Add(ctx, n))
	}
	other := newNode("node-other1", "Elsewhere", "folder-1234")
	require.NoError(t, repo.Add(ctx, other))

	byParent := filters.NewFilters(filters.Filter{Field: "parent", Operator: filters.OpEqual, Value: shared.RootFolderUUID})

	t.Run("pages walk the full result set in order", func(t *testing.T) {
		var seen []string
		token := 0
		for {
			page, err := repo.Filter(ctx, byParent, repository.NewPageRequest(10, token))
			require.NoError(t, err)
			assert.Equal(t, 25, page.Total)
			for _, n := range page.Items {
				seen = append(seen, n.UUID)
			}
			if page.NextPageToken == 0 {
				break
			}
			assert.Greater(t, page.NextPageToken, page.PageToken)
			token = page.NextPageToken
		}
		require.Len(t, seen, 25)
		for i := 1; i < len(seen); i++ {
			assert.Less(t, seen[i-1], seen[i], "titles sort ascending so uuids do too")
		}
	})

	t.Run("empty filters match everything", func(t *testing.T) {
		page, err := repo.Filter(ctx, filters.Filters{}, repository.NewPageRequest(100, 1))
		require.NoError(t, err)
		assert.Equal(t, 26, page.Total)
	})

	t.Run("type mismatch surfaces as bad request", func(t *testing.T) {
		bad := filters.NewFilters(filters.Filter{Field: "title", Operator: filters.OpGreater, Value: map[string]interface{}{}})
		_, err := repo.Filter(ctx, bad, repository.NewPageRequest(10, 1))
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("token past the end yields empty page", func(t *testing.T) {
		page, err := repo.Filter(ctx, byParent, repository.NewPageRequest(10, 99))
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Zero(t, page.NextPageToken)
	})
}

func TestUserRepositoryEmailIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	alice := principal.User{UUID: "user-alice1", Email: "alice@example.com", Name: "Alice", Group: shared.AdminsGroupUUID}
	require.NoError(t, repo.Add(ctx, alice))

	t.Run("duplicate email conflicts", func(t *testing.T) {
		err := repo.Add(ctx, principal.User{UUID: "user-alice2", Email: "alice@example.com", Name: "Other", Group: shared.AdminsGroupUUID})
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("lookup by email", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "user-alice1", got.UUID)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("update keeps own email", func(t *testing.T) {
		alice.Name = "Alice Smith"
		require.NoError(t, repo.Update(ctx, alice))
	})

	t.Run("update cannot steal another email", func(t *testing.T) {
		bob := principal.User{UUID: "user-bob123", Email: "bob@example.com", Name: "Bob", Group: shared.AdminsGroupUUID}
		require.NoError(t, repo.Add(ctx, bob))
		bob.Email = "alice@example.com"
		assert.True(t, errors.IsConflict(repo.Update(ctx, bob)))
	})
}

func TestAPIKeyRepositorySecretLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository()

	key := apiKeyFixture("key-0000001", "super-secret-value-1")
	require.NoError(t, repo.Add(ctx, key))

	got, err := repo.GetBySecret(ctx, "super-secret-value-1")
	require.NoError(t, err)
	assert.Equal(t, "key-0000001", got.UUID)

	_, err = repo.GetBySecret(ctx, "wrong")
	assert.True(t, errors.IsNotFound(err))

	dup := apiKeyFixture("key-0000002", "super-secret-value-1")
	assert.True(t, errors.IsConflict(repo.Add(ctx, dup)))
}

func TestAuditRepositorySequences(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository()

	entry := func(eventType string) audit.Entry {
		return audit.Entry{
			EventID:    shared.NewUUID(),
			EventType:  eventType,
			OccurredOn: time.Now().UTC(),
			UserEmail:  "owner@example.com",
			Tenant:     "default",
		}
	}

	for i := 0; i < 3; i++ {
		stamped, err := repo.Append(ctx, "node-000001", "text/plain", entry("node.updated"))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), stamped.Sequence)
	}
	_, err := repo.Append(ctx, "node-000002", node.FolderMimetype, entry("node.created"))
	require.NoError(t, err)

	t.Run("streams keep their own sequences", func(t *testing.T) {
		stream, err := repo.GetStream(ctx, "node-000002")
		require.NoError(t, err)
		require.Len(t, stream.Entries, 1)
		assert.Equal(t, int64(1), stream.Entries[0].Sequence)
	})

	t.Run("list filters by mimetype", func(t *testing.T) {
		all, err := repo.ListStreams(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		folders, err := repo.ListStreams(ctx, node.FolderMimetype)
		require.NoError(t, err)
		require.Len(t, folders, 1)
		assert.Equal(t, "node-000002", folders[0].ID)
	})

	t.Run("unknown stream not found", func(t *testing.T) {
		_, err := repo.GetStream(ctx, "node-missing")
		assert.True(t, errors.IsNotFound(err))
	})
}
