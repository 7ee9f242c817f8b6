package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/events"
	"antbox-backend/internal/repository"
	repomemory "antbox-backend/internal/repository/memory"
	storagememory "antbox-backend/internal/storage/memory"
	"antbox-backend/pkg/errors"
)

var (
	rootCtx   = principal.New("default", shared.RootUserEmail, shared.AdminsGroupUUID)
	editorCtx = principal.New("default", "editor@example.com", "editors-group-1")
	anonCtx   = principal.Anonymous("default")
)

type fixture struct {
	svc     *Service
	bus     *events.EventBus
	emitted *[]shared.DomainEvent
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	bus := events.NewSynchronousEventBus(zap.NewNop())

	emitted := &[]shared.DomainEvent{}
	record := func(_ context.Context, e shared.DomainEvent) error {
		*emitted = append(*emitted, e)
		return nil
	}
	bus.SubscribeFunc(node.EventNodeCreated, record)
	bus.SubscribeFunc(node.EventNodeUpdated, record)
	bus.SubscribeFunc(node.EventNodeDeleted, record)

	repo := repomemory.NewNodeRepository()
	require.NoError(t, repo.Add(context.Background(), node.RootFolder("default")))

	svc := NewService("default", repo, storagememory.NewProvider(),
		repomemory.NewAspectRepository(), bus, zap.NewNop(), nil)
	return fixture{svc: svc, bus: bus, emitted: emitted}
}

func (f fixture) lastEvent(t *testing.T) shared.DomainEvent {
	t.Helper()
	require.NotEmpty(t, *f.emitted)
	return (*f.emitted)[len(*f.emitted)-1]
}

func mkFolder(t *testing.T, f fixture, auth principal.AuthenticationContext, title, parent string) *node.Node {
	t.Helper()
	n, err := f.svc.Create(context.Background(), auth, node.Metadata{
		Title:    title,
		Mimetype: node.FolderMimetype,
		Parent:   parent,
	})
	require.NoError(t, err)
	return n
}

func TestCreateFolderUnderRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		Mimetype: node.FolderMimetype,
		Title:    "Docs",
		Parent:   shared.RootFolderUUID,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, docs.UUID)
	assert.Equal(t, shared.RootUserEmail, docs.Owner)
	assert.Equal(t, docs.CreatedTime, docs.ModifiedTime)

	event := f.lastEvent(t)
	assert.Equal(t, node.EventNodeCreated, event.EventType())
	assert.Equal(t, docs.UUID, event.AggregateID())

	t.Run("created equals fetched", func(t *testing.T) {
		got, err := f.svc.Get(ctx, rootCtx, docs.UUID)
		require.NoError(t, err)
		assert.Equal(t, docs, got)
	})
}

func TestRootAcceptsOnlyFolders(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), rootCtx, node.Metadata{
		Title:    "a.txt",
		Mimetype: "text/plain",
		Parent:   shared.RootFolderUUID,
	})
	assert.True(t, errors.IsBadRequest(err))
}

func TestCreateFileAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docs := mkFolder(t, f, rootCtx, "Docs", shared.RootFolderUUID)

	file, err := f.svc.CreateFile(ctx, rootCtx, []byte("hello"), node.Metadata{
		Title:    "a.txt",
		Mimetype: "text/plain",
		Parent:   docs.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), file.Size)

	content, info, err := f.svc.Export(ctx, rootCtx, file.UUID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
	assert.Equal(t, ExportInfo{Name: "a.txt", Type: "text/plain"}, info)

	t.Run("updateFile replaces the body", func(t *testing.T) {
		updated, err := f.svc.UpdateFile(ctx, rootCtx, file.UUID, []byte("goodbye"))
		require.NoError(t, err)
		assert.Equal(t, int64(7), updated.Size)

		content, _, err := f.svc.Export(ctx, rootCtx, file.UUID)
		require.NoError(t, err)
		assert.Equal(t, []byte("goodbye"), content)

		event := f.lastEvent(t)
		assert.Equal(t, node.EventNodeUpdated, event.EventType())
	})
}

func TestGetResolvesFriendlyID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		FID:      "docs-folder",
		Title:    "Docs",
		Mimetype: node.FolderMimetype,
	})
	require.NoError(t, err)

	byFid, err := f.svc.Get(ctx, rootCtx, "docs-folder")
	require.NoError(t, err)
	assert.Equal(t, docs.UUID, byFid.UUID)
}

func TestPermissionEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("empty permission sets admit only owner and admins", func(t *testing.T) {
		private, err := f.svc.Create(ctx, rootCtx, node.Metadata{
			Title:    "Private",
			Mimetype: node.FolderMimetype,
			Permissions: &node.Permissions{
				Anonymous:     []node.Permission{},
				Authenticated: []node.Permission{},
				Group:         []node.Permission{},
			},
		})
		require.NoError(t, err)

		_, err = f.svc.Get(ctx, editorCtx, private.UUID)
		assert.True(t, errors.IsForbidden(err))

		_, err = f.svc.Get(ctx, rootCtx, private.UUID)
		assert.NoError(t, err)
	})

	t.Run("anonymous reads only through the anonymous set", func(t *testing.T) {
		public, err := f.svc.Create(ctx, rootCtx, node.Metadata{
			Title:    "Public",
			Mimetype: node.FolderMimetype,
			Permissions: &node.Permissions{
				Anonymous:     []node.Permission{node.PermissionRead},
				Authenticated: []node.Permission{node.PermissionRead},
			},
		})
		require.NoError(t, err)

		_, err = f.svc.Get(ctx, anonCtx, public.UUID)
		assert.NoError(t, err)
	})

	t.Run("advanced grant is keyed by group", func(t *testing.T) {
		shared_, err := f.svc.Create(ctx, rootCtx, node.Metadata{
			Title:    "Shared",
			Mimetype: node.FolderMimetype,
			Permissions: &node.Permissions{
				Advanced: map[string][]node.Permission{
					"editors-group-1": {node.PermissionRead, node.PermissionWrite},
				},
			},
		})
		require.NoError(t, err)

		_, err = f.svc.Get(ctx, editorCtx, shared_.UUID)
		assert.NoError(t, err)

		_, err = f.svc.Create(ctx, editorCtx, node.Metadata{
			Title:    "by-editor.txt",
			Mimetype: "text/plain",
			Parent:   shared_.UUID,
		})
		assert.NoError(t, err)
	})

	t.Run("anonymous principals cannot create", func(t *testing.T) {
		_, err := f.svc.Create(ctx, anonCtx, node.Metadata{
			Title:    "Nope",
			Mimetype: node.FolderMimetype,
		})
		assert.True(t, errors.IsForbidden(err))
	})
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docs := mkFolder(t, f, rootCtx, "Docs", shared.RootFolderUUID)

	file, err := f.svc.CreateFile(ctx, rootCtx, []byte("x"), node.Metadata{
		Title: "a.txt", Mimetype: "text/plain", Parent: docs.UUID,
	})
	require.NoError(t, err)

	t.Run("title change emits a diff", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, rootCtx, file.UUID, node.Patch{"title": "b.txt"})
		require.NoError(t, err)
		assert.Equal(t, "b.txt", updated.Title)

		event := f.lastEvent(t).(*node.UpdatedEvent)
		assert.Equal(t, map[string]interface{}{"title": "a.txt"}, event.OldValues)
		assert.Equal(t, map[string]interface{}{"title": "b.txt"}, event.NewValues)
	})

	t.Run("uuid cannot change", func(t *testing.T) {
		_, err := f.svc.Update(ctx, rootCtx, file.UUID, node.Patch{"uuid": "node-999999"})
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("kind cannot change", func(t *testing.T) {
		_, err := f.svc.Update(ctx, rootCtx, file.UUID, node.Patch{"mimetype": node.FolderMimetype})
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("root cannot be modified", func(t *testing.T) {
		_, err := f.svc.Update(ctx, rootCtx, shared.RootFolderUUID, node.Patch{"title": "New Root"})
		assert.True(t, errors.IsBadRequest(err))
	})
}

func TestMoveRejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := mkFolder(t, f, rootCtx, "A", shared.RootFolderUUID)
	b := mkFolder(t, f, rootCtx, "B", a.UUID)
	c := mkFolder(t, f, rootCtx, "C", b.UUID)

	_, err := f.svc.Update(ctx, rootCtx, a.UUID, node.Patch{"parent": c.UUID})
	assert.True(t, errors.IsBadRequest(err))

	t.Run("sibling move is fine", func(t *testing.T) {
		_, err := f.svc.Update(ctx, rootCtx, c.UUID, node.Patch{"parent": a.UUID})
		assert.NoError(t, err)
	})
}

func TestDeleteFolderRemovesDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs := mkFolder(t, f, rootCtx, "Docs", shared.RootFolderUUID)
	sub := mkFolder(t, f, rootCtx, "Sub", docs.UUID)
	file, err := f.svc.CreateFile(ctx, rootCtx, []byte("x"), node.Metadata{
		Title: "a.txt", Mimetype: "text/plain", Parent: sub.UUID,
	})
	require.NoError(t, err)

	*f.emitted = nil
	require.NoError(t, f.svc.Delete(ctx, rootCtx, docs.UUID))

	for _, id := range []string{docs.UUID, sub.UUID, file.UUID} {
		_, err := f.svc.Get(ctx, rootCtx, id)
		assert.True(t, errors.IsNotFound(err), "node %s should be gone", id)
	}

	// One NodeDeleted per removed node, depth-first.
	require.Len(t, *f.emitted, 3)
	assert.Equal(t, file.UUID, (*f.emitted)[0].AggregateID())
	assert.Equal(t, sub.UUID, (*f.emitted)[1].AggregateID())
	assert.Equal(t, docs.UUID, (*f.emitted)[2].AggregateID())
}

func TestCopyAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := mkFolder(t, f, rootCtx, "Src", shared.RootFolderUUID)
	dst := mkFolder(t, f, rootCtx, "Dst", shared.RootFolderUUID)
	file, err := f.svc.CreateFile(ctx, rootCtx, []byte("payload"), node.Metadata{
		Title: "a.txt", Mimetype: "text/plain", Parent: src.UUID,
	})
	require.NoError(t, err)

	t.Run("copy carries the subtree and bodies", func(t *testing.T) {
		copied, err := f.svc.Copy(ctx, rootCtx, src.UUID, dst.UUID)
		require.NoError(t, err)
		assert.NotEqual(t, src.UUID, copied.UUID)
		assert.Equal(t, dst.UUID, copied.Parent)

		children, err := f.svc.List(ctx, rootCtx, copied.UUID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.NotEqual(t, file.UUID, children[0].UUID)

		content, _, err := f.svc.Export(ctx, rootCtx, children[0].UUID)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), content)
	})

	t.Run("duplicate lands next to the source", func(t *testing.T) {
		dup, err := f.svc.Duplicate(ctx, rootCtx, file.UUID)
		require.NoError(t, err)
		assert.Equal(t, src.UUID, dup.Parent)
		assert.Equal(t, "a.txt (copy)", dup.Title)
	})
}

func TestBreadcrumbs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := mkFolder(t, f, rootCtx, "A", shared.RootFolderUUID)
	b := mkFolder(t, f, rootCtx, "B", a.UUID)

	chain, err := f.svc.Breadcrumbs(ctx, rootCtx, b.UUID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, shared.RootFolderUUID, chain[0].UUID)
	assert.Equal(t, a.UUID, chain[1].UUID)
	assert.Equal(t, b.UUID, chain[2].UUID)
}

func TestSmartFolderEvaluate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docs := mkFolder(t, f, rootCtx, "Docs", shared.RootFolderUUID)
	_, err := f.svc.CreateFile(ctx, rootCtx, []byte("x"), node.Metadata{
		Title: "a.txt", Mimetype: "text/plain", Parent: docs.UUID,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateFile(ctx, rootCtx, []byte("x"), node.Metadata{
		Title: "b.pdf", Mimetype: "application/pdf", Parent: docs.UUID,
	})
	require.NoError(t, err)

	smart, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		Title:    "Plain files",
		Mimetype: node.SmartFolderMimetype,
		Filters: filters.NewFilters(
			filters.NewFilter("mimetype", filters.OpEqual, "text/plain"),
		),
	})
	require.NoError(t, err)

	matches, err := f.svc.Evaluate(ctx, rootCtx, smart.UUID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.txt", matches[0].Title)

	t.Run("evaluate on a plain folder fails", func(t *testing.T) {
		_, err := f.svc.Evaluate(ctx, rootCtx, docs.UUID)
		assert.True(t, errors.HasCode(err, errors.CodeSmartFolderNotFound))
	})
}

func TestFindPaginatesAndFiltersByPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := mkFolder(t, f, rootCtx, "Open", shared.RootFolderUUID)
	private, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		Title:    "Private",
		Mimetype: node.FolderMimetype,
		Permissions: &node.Permissions{
			Anonymous:     []node.Permission{},
			Authenticated: []node.Permission{},
			Group:         []node.Permission{},
		},
	})
	require.NoError(t, err)

	for _, parent := range []string{open.UUID, private.UUID} {
		_, err := f.svc.CreateFile(ctx, rootCtx, []byte("x"), node.Metadata{
			Title: "doc.txt", Mimetype: "text/plain", Parent: parent,
		})
		require.NoError(t, err)
	}

	page, err := f.svc.Find(ctx, editorCtx, filters.NewFilters(
		filters.NewFilter("mimetype", filters.OpEqual, "text/plain"),
	), repository.NewPageRequest(10, 0))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, open.UUID, page.Items[0].Parent)
}

func TestLockLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shared_, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		Title:    "Shared",
		Mimetype: node.FolderMimetype,
		Permissions: &node.Permissions{
			Authenticated: []node.Permission{node.PermissionRead, node.PermissionWrite},
		},
	})
	require.NoError(t, err)

	file, err := f.svc.CreateFile(ctx, editorCtx, []byte("x"), node.Metadata{
		Title: "a.txt", Mimetype: "text/plain", Parent: shared_.UUID,
	})
	require.NoError(t, err)

	locked, err := f.svc.Lock(ctx, editorCtx, file.UUID, []string{"reviewers"})
	require.NoError(t, err)
	assert.True(t, locked.Locked)
	assert.Equal(t, "editor@example.com", locked.LockedBy)

	t.Run("other principals cannot mutate", func(t *testing.T) {
		other := principal.New("default", "other@example.com")
		_, err := f.svc.Update(ctx, other, file.UUID, node.Patch{"title": "b.txt"})
		assert.True(t, errors.IsLocked(err) || errors.IsForbidden(err))
	})

	t.Run("authorized group may unlock", func(t *testing.T) {
		reviewer := principal.New("default", "reviewer@example.com", "reviewers")
		unlocked, err := f.svc.Unlock(ctx, reviewer, file.UUID)
		require.NoError(t, err)
		assert.False(t, unlocked.Locked)
	})

	t.Run("locker keeps write access while locked", func(t *testing.T) {
		_, err := f.svc.Lock(ctx, editorCtx, file.UUID, nil)
		require.NoError(t, err)
		_, err = f.svc.Update(ctx, editorCtx, file.UUID, node.Patch{"title": "mine.txt"})
		assert.NoError(t, err)
	})
}

func TestProxyBindsContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	private, err := f.svc.Create(ctx, rootCtx, node.Metadata{
		Title:    "Private",
		Mimetype: node.FolderMimetype,
		Permissions: &node.Permissions{
			Anonymous:     []node.Permission{},
			Authenticated: []node.Permission{},
			Group:         []node.Permission{},
		},
	})
	require.NoError(t, err)

	proxy := NewProxy(f.svc, editorCtx)
	_, err = proxy.Get(ctx, private.UUID)
	assert.True(t, errors.IsForbidden(err))

	// Mutating the returned context must not affect the proxy.
	bound := proxy.Context()
	bound.Principal.Email = shared.RootUserEmail
	_, err = proxy.Get(ctx, private.UUID)
	assert.True(t, errors.IsForbidden(err))
}
