package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

func TestKinds(t *testing.T) {
	assert.Equal(t, KindFolder, KindOf(FolderMimetype))
	assert.Equal(t, KindSmartFolder, KindOf(SmartFolderMimetype))
	assert.Equal(t, KindMetaNode, KindOf(MetaNodeMimetype))
	assert.Equal(t, KindFile, KindOf("text/plain"))
	assert.Equal(t, KindFile, KindOf("application/pdf"))
}

func TestIsValidMimetype(t *testing.T) {
	valid := []string{FolderMimetype, SmartFolderMimetype, MetaNodeMimetype, "text/plain", "image/svg+xml", "application/vnd.ms-excel"}
	for _, m := range valid {
		assert.True(t, IsValidMimetype(m), m)
	}

	invalid := []string{"", "text", "text/", "/plain", "application/vnd.antbox.unknown", "text plain"}
	for _, m := range invalid {
		assert.False(t, IsValidMimetype(m), m)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Run("assigns identity and placement defaults", func(t *testing.T) {
		n := New(Metadata{Title: "Notes"}, "a@b.co", "acme")
		assert.True(t, shared.IsValidID(n.UUID))
		assert.Equal(t, shared.RootFolderUUID, n.Parent)
		assert.Equal(t, MetaNodeMimetype, n.Mimetype)
		assert.Equal(t, "a@b.co", n.Owner)
		assert.Equal(t, "acme", n.Tenant)
		assert.Equal(t, n.CreatedTime, n.ModifiedTime)
	})

	t.Run("keeps caller supplied identity", func(t *testing.T) {
		n := New(Metadata{UUID: "fixed-uuid-0001", FID: "my-notes", Title: "Notes"}, "a@b.co", "acme")
		assert.Equal(t, "fixed-uuid-0001", n.UUID)
		assert.Equal(t, "my-notes", n.FID)
	})

	t.Run("folders get default permissions", func(t *testing.T) {
		n := New(Metadata{Title: "Docs", Mimetype: FolderMimetype}, "a@b.co", "acme")
		require.NotNil(t, n.Permissions)
		assert.True(t, n.Permissions.AuthenticatedAllows(PermissionRead))
		assert.False(t, n.Permissions.AnonymousAllows(PermissionRead))
	})

	t.Run("explicit permissions survive", func(t *testing.T) {
		perms := &Permissions{Anonymous: []Permission{PermissionRead}}
		n := New(Metadata{Title: "Public", Mimetype: FolderMimetype, Permissions: perms}, "a@b.co", "acme")
		assert.True(t, n.Permissions.AnonymousAllows(PermissionRead))
	})
}

func TestValidate(t *testing.T) {
	file := func() *Node {
		return New(Metadata{Title: "a.txt", Mimetype: "text/plain", Parent: "parent-folder-1"}, "a@b.co", "acme")
	}

	t.Run("valid file", func(t *testing.T) {
		assert.NoError(t, file().Validate())
	})

	t.Run("valid folder with hooks", func(t *testing.T) {
		n := New(Metadata{
			Title:    "Inbox",
			Mimetype: FolderMimetype,
			OnCreate: []string{"tracker workflow=approval"},
		}, "a@b.co", "acme")
		assert.NoError(t, n.Validate())
	})

	t.Run("builtin uuid accepted", func(t *testing.T) {
		n := RootFolder("acme")
		assert.NoError(t, n.Validate())
	})

	t.Run("aggregates failures", func(t *testing.T) {
		n := file()
		n.Title = ""
		n.Mimetype = "bogus"
		err := n.Validate()
		require.Error(t, err)
		require.True(t, errors.IsValidation(err))
		msgs := errors.GetAppError(err).Details["errors"].([]string)
		assert.Len(t, msgs, 2)
	})

	t.Run("hooks rejected outside folders", func(t *testing.T) {
		n := file()
		n.OnCreate = []string{"tracker"}
		assert.Error(t, n.Validate())
	})

	t.Run("filters rejected outside smart folders", func(t *testing.T) {
		n := file()
		n.Filters = filters.NewFilters(filters.NewFilter("mimetype", filters.OpEqual, "x"))
		assert.Error(t, n.Validate())
	})

	t.Run("smart folder filters validated", func(t *testing.T) {
		n := New(Metadata{
			Title:    "Recent",
			Mimetype: SmartFolderMimetype,
			Filters:  filters.NewFilters(filters.NewFilter("modifiedTime", filters.Operator("between"), "x")),
		}, "a@b.co", "acme")
		n.Permissions = nil
		assert.Error(t, n.Validate())
	})

	t.Run("missing parent rejected except for root", func(t *testing.T) {
		n := file()
		n.Parent = ""
		assert.Error(t, n.Validate())
	})
}

func TestFieldValue(t *testing.T) {
	n := New(Metadata{
		Title:    "a.txt",
		Mimetype: "text/plain",
		Parent:   "parent-folder-1",
		Tags:     []string{"x"},
		Properties: map[string]interface{}{
			"invoice:number": 42,
		},
	}, "a@b.co", "acme")
	n.Size = 5

	t.Run("top level attributes", func(t *testing.T) {
		v, ok := n.FieldValue("mimetype")
		require.True(t, ok)
		assert.Equal(t, "text/plain", v)

		v, ok = n.FieldValue("size")
		require.True(t, ok)
		assert.Equal(t, int64(5), v)

		v, ok = n.FieldValue("tags")
		require.True(t, ok)
		assert.Equal(t, []string{"x"}, v)
	})

	t.Run("optional attributes read undefined when unset", func(t *testing.T) {
		_, ok := n.FieldValue("fid")
		assert.False(t, ok)
		_, ok = n.FieldValue("lockedBy")
		assert.False(t, ok)
	})

	t.Run("size undefined on folders", func(t *testing.T) {
		folder := New(Metadata{Title: "Docs", Mimetype: FolderMimetype}, "a@b.co", "acme")
		_, ok := folder.FieldValue("size")
		assert.False(t, ok)
	})

	t.Run("properties fallback", func(t *testing.T) {
		v, ok := n.FieldValue("invoice:number")
		require.True(t, ok)
		assert.Equal(t, 42, v)

		_, ok = n.FieldValue("missing")
		assert.False(t, ok)
	})

	t.Run("filter evaluation over a node", func(t *testing.T) {
		fs := filters.NewFilters(
			filters.NewFilter("mimetype", filters.OpEqual, "text/plain"),
			filters.NewFilter("size", filters.OpGreaterOrEqual, 5),
		)
		ok, err := fs.IsSatisfiedBy(n)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestClone(t *testing.T) {
	original := New(Metadata{
		Title:      "Docs",
		Mimetype:   FolderMimetype,
		Tags:       []string{"a"},
		Properties: map[string]interface{}{"k": []interface{}{"v1"}},
		OnCreate:   []string{"hook-1"},
	}, "a@b.co", "acme")

	clone := original.Clone()
	clone.Tags[0] = "changed"
	clone.Properties["k"].([]interface{})[0] = "changed"
	clone.OnCreate[0] = "changed"
	clone.Permissions.Anonymous = append(clone.Permissions.Anonymous, PermissionRead)

	assert.Equal(t, "a", original.Tags[0])
	assert.Equal(t, "v1", original.Properties["k"].([]interface{})[0])
	assert.Equal(t, "hook-1", original.OnCreate[0])
	assert.Empty(t, original.Permissions.Anonymous)
}

func TestMap(t *testing.T) {
	n := New(Metadata{Title: "a.txt", Mimetype: "text/plain", Parent: "p-12345678"}, "a@b.co", "acme")
	m := n.Map()
	assert.Equal(t, n.UUID, m["uuid"])
	assert.Equal(t, "text/plain", m["mimetype"])
	assert.Equal(t, "p-12345678", m["parent"])

	ok, err := filters.NewFilters(filters.NewFilter("mimetype", filters.OpEqual, "text/plain")).
		IsSatisfiedBy(filters.MapResolver(m))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPatchApply(t *testing.T) {
	fresh := func() *Node {
		n := New(Metadata{Title: "a.txt", Mimetype: "text/plain", Parent: "p-12345678", Tags: []string{"old"}}, "a@b.co", "acme")
		n.ModifiedTime = "2020-01-01T00:00:00Z"
		return n
	}

	t.Run("collects old and new values", func(t *testing.T) {
		n := fresh()
		oldValues, newValues, err := Patch{
			"title": "b.txt",
			"tags":  []interface{}{"new"},
		}.Apply(n)
		require.NoError(t, err)

		assert.Equal(t, "a.txt", oldValues["title"])
		assert.Equal(t, "b.txt", newValues["title"])
		assert.Equal(t, []string{"old"}, oldValues["tags"])
		assert.Equal(t, []string{"new"}, newValues["tags"])
		assert.Equal(t, "b.txt", n.Title)
		assert.NotEqual(t, "2020-01-01T00:00:00Z", n.ModifiedTime, "modifiedTime must be stamped")
	})

	t.Run("no-op patch leaves modifiedTime alone", func(t *testing.T) {
		n := fresh()
		oldValues, newValues, err := Patch{"title": "a.txt"}.Apply(n)
		require.NoError(t, err)
		assert.Empty(t, oldValues)
		assert.Empty(t, newValues)
		assert.Equal(t, "2020-01-01T00:00:00Z", n.ModifiedTime)
	})

	t.Run("echoing identity fields is tolerated", func(t *testing.T) {
		n := fresh()
		_, _, err := Patch{"uuid": n.UUID, "createdTime": n.CreatedTime}.Apply(n)
		assert.NoError(t, err)
	})

	t.Run("changing identity fields fails", func(t *testing.T) {
		n := fresh()
		_, _, err := Patch{"uuid": "other-uuid-0001"}.Apply(n)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))

		_, _, err = Patch{"fid": "sneaky"}.Apply(n)
		assert.Error(t, err)

		_, _, err = Patch{"createdTime": "1999-01-01T00:00:00Z"}.Apply(n)
		assert.Error(t, err)
	})

	t.Run("service managed fields fail", func(t *testing.T) {
		n := fresh()
		for _, field := range []string{"size", "modifiedTime", "locked", "lockedBy"} {
			_, _, err := Patch{field: "x"}.Apply(n)
			assert.Error(t, err, field)
		}
	})

	t.Run("mimetype may move within its kind", func(t *testing.T) {
		n := fresh()
		_, newValues, err := Patch{"mimetype": "application/pdf"}.Apply(n)
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", newValues["mimetype"])
	})

	t.Run("mimetype may not cross kinds", func(t *testing.T) {
		n := fresh()
		_, _, err := Patch{"mimetype": FolderMimetype}.Apply(n)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("unknown attribute fails", func(t *testing.T) {
		n := fresh()
		_, _, err := Patch{"shoe-size": 42}.Apply(n)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("parent change is recorded", func(t *testing.T) {
		n := fresh()
		oldValues, newValues, err := Patch{"parent": "q-12345678"}.Apply(n)
		require.NoError(t, err)
		assert.Equal(t, "p-12345678", oldValues["parent"])
		assert.Equal(t, "q-12345678", newValues["parent"])
	})

	t.Run("permissions decode and validate", func(t *testing.T) {
		folder := New(Metadata{Title: "Docs", Mimetype: FolderMimetype}, "a@b.co", "acme")
		_, _, err := Patch{"permissions": map[string]interface{}{
			"anonymous":     []interface{}{"Read"},
			"authenticated": []interface{}{"Read", "Write"},
			"group":         []interface{}{},
		}}.Apply(folder)
		require.NoError(t, err)
		assert.True(t, folder.Permissions.AnonymousAllows(PermissionRead))

		_, _, err = Patch{"permissions": map[string]interface{}{
			"anonymous": []interface{}{"Fly"},
		}}.Apply(folder)
		assert.Error(t, err)
	})

	t.Run("filters decode on smart folders", func(t *testing.T) {
		sf := New(Metadata{Title: "Recent", Mimetype: SmartFolderMimetype}, "a@b.co", "acme")
		_, _, err := Patch{"filters": []interface{}{
			[]interface{}{"mimetype", "==", "text/plain"},
		}}.Apply(sf)
		require.NoError(t, err)
		require.Len(t, sf.Filters, 1)
		assert.Equal(t, "mimetype", sf.Filters[0][0].Field)
	})
}

func TestEvents(t *testing.T) {
	n := New(Metadata{Title: "a.txt", Mimetype: "text/plain", Parent: "p-12345678"}, "a@b.co", "acme")

	t.Run("created", func(t *testing.T) {
		e := NewCreatedEvent(n, "a@b.co")
		assert.Equal(t, EventNodeCreated, e.EventType())
		assert.Equal(t, n.UUID, e.AggregateID())
		assert.Equal(t, "a@b.co", e.UserEmail())
		assert.Equal(t, "acme", e.Tenant())
		assert.Equal(t, "text/plain", e.NodeMimetype())
		assert.Equal(t, n.UUID, e.EventData()["uuid"])
		assert.NotEmpty(t, e.EventID())
		assert.False(t, e.OccurredOn().IsZero())
	})

	t.Run("updated", func(t *testing.T) {
		e := NewUpdatedEvent(n, "a@b.co",
			map[string]interface{}{"title": "a.txt"},
			map[string]interface{}{"title": "b.txt"},
		)
		assert.Equal(t, EventNodeUpdated, e.EventType())
		data := e.EventData()
		assert.Equal(t, n.UUID, data["uuid"])
		assert.Equal(t, map[string]interface{}{"title": "a.txt"}, data["oldValues"])
		assert.Equal(t, map[string]interface{}{"title": "b.txt"}, data["newValues"])
		assert.Equal(t, "p-12345678", e.Parent)
	})

	t.Run("deleted", func(t *testing.T) {
		e := NewDeletedEvent(n, "a@b.co")
		assert.Equal(t, EventNodeDeleted, e.EventType())
		assert.Equal(t, "a.txt", e.EventData()["title"])
	})
}
