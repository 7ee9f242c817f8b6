// Package node models the content graph: hierarchical records with
// metadata, an optional binary body, per-folder permissions, and the
// lifecycle events mutations emit.
package node

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// Internal node kinds. Everything else must be a standard MIME type
// and is treated as file-like content.
const (
	FolderMimetype      = "application/vnd.antbox.folder"
	SmartFolderMimetype = "application/vnd.antbox.smartfolder"
	MetaNodeMimetype    = "application/vnd.antbox.metanode"
)

// Kind partitions mimetypes into structural families. Mutations may
// never move a node across kinds.
type Kind string

const (
	KindFile        Kind = "file"
	KindFolder      Kind = "folder"
	KindSmartFolder Kind = "smartfolder"
	KindMetaNode    Kind = "metanode"
)

// KindOf maps a mimetype to its structural family.
func KindOf(mimetype string) Kind {
	switch mimetype {
	case FolderMimetype:
		return KindFolder
	case SmartFolderMimetype:
		return KindSmartFolder
	case MetaNodeMimetype:
		return KindMetaNode
	default:
		return KindFile
	}
}

var mimetypePattern = regexp.MustCompile(`^[a-z0-9!#$&^_.+-]+/[a-zA-Z0-9!#$&^_.+-]+$`)

// IsValidMimetype accepts the internal kinds and standard MIME syntax.
// Unknown mimetypes under the internal vendor prefix are rejected.
func IsValidMimetype(mimetype string) bool {
	switch mimetype {
	case FolderMimetype, SmartFolderMimetype, MetaNodeMimetype:
		return true
	}
	if strings.HasPrefix(mimetype, "application/vnd.antbox.") {
		return false
	}
	return mimetypePattern.MatchString(mimetype)
}

// Node is the universal content record.
type Node struct {
	UUID        string `json:"uuid"`
	FID         string `json:"fid,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Mimetype    string `json:"mimetype"`
	Parent      string `json:"parent,omitempty"`
	Tenant      string `json:"tenant,omitempty"`

	Owner string `json:"owner"`
	Group string `json:"group,omitempty"`

	Tags       []string               `json:"tags,omitempty"`
	Aspects    []string               `json:"aspects,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`

	CreatedTime  string `json:"createdTime"`
	ModifiedTime string `json:"modifiedTime"`
	Size         int64  `json:"size,omitempty"`

	// Folder extras.
	Permissions   *Permissions    `json:"permissions,omitempty"`
	OnCreate      []string        `json:"onCreate,omitempty"`
	OnUpdate      []string        `json:"onUpdate,omitempty"`
	OnDelete      []string        `json:"onDelete,omitempty"`
	Filters       filters.Filters `json:"filters,omitempty"`
	GroupsAllowed []string        `json:"groupsAllowed,omitempty"`

	// Lock state.
	Locked                 bool     `json:"locked,omitempty"`
	LockedBy               string   `json:"lockedBy,omitempty"`
	UnlockAuthorizedGroups []string `json:"unlockAuthorizedGroups,omitempty"`
}

// Kind returns the node's structural family.
func (n *Node) Kind() Kind {
	return KindOf(n.Mimetype)
}

// IsFolder reports whether the node is a plain folder.
func (n *Node) IsFolder() bool {
	return n.Mimetype == FolderMimetype
}

// IsSmartFolder reports whether the node holds a dynamic query.
func (n *Node) IsSmartFolder() bool {
	return n.Mimetype == SmartFolderMimetype
}

// IsFileLike reports whether the node carries a binary body.
func (n *Node) IsFileLike() bool {
	return n.Kind() == KindFile
}

// IsRoot reports whether the node is the reserved tree root.
func (n *Node) IsRoot() bool {
	return n.UUID == shared.RootFolderUUID
}

// Touch stamps the node as just modified.
func (n *Node) Touch() {
	n.ModifiedTime = shared.NowISO()
}

// Validate aggregates every field-level failure into one error.
func (n *Node) Validate() error {
	var errs []error

	if n.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	} else if !shared.IsValidID(n.UUID) {
		errs = append(errs, fmt.Errorf("uuid: %q is not a valid identifier", n.UUID))
	}
	if n.FID != "" && !shared.IsValidID(n.FID) {
		errs = append(errs, fmt.Errorf("fid: %q is not a valid identifier", n.FID))
	}
	if n.Title == "" {
		errs = append(errs, fmt.Errorf("title: required"))
	}
	if !IsValidMimetype(n.Mimetype) {
		errs = append(errs, fmt.Errorf("mimetype: %q is not an accepted mimetype", n.Mimetype))
	}
	if n.Parent == "" && !n.IsRoot() {
		errs = append(errs, fmt.Errorf("parent: required for every node except the root folder"))
	}
	if n.Owner != "" && !shared.IsValidEmail(n.Owner) {
		errs = append(errs, fmt.Errorf("owner: %q is not a valid email", n.Owner))
	}

	if n.Kind() != KindFolder && n.Kind() != KindSmartFolder {
		if len(n.OnCreate) > 0 || len(n.OnUpdate) > 0 || len(n.OnDelete) > 0 {
			errs = append(errs, fmt.Errorf("hooks: only folders may declare onCreate/onUpdate/onDelete"))
		}
		if n.Permissions != nil {
			errs = append(errs, fmt.Errorf("permissions: only folders carry permission sets"))
		}
	}
	if !n.IsSmartFolder() && !n.Filters.IsEmpty() {
		errs = append(errs, fmt.Errorf("filters: only smart folders carry a query"))
	}
	if n.IsSmartFolder() {
		if err := n.Filters.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("filters: %v", err))
		}
	}
	if n.Permissions != nil {
		if err := n.Permissions.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// FieldValue resolves a named attribute for filter evaluation. Lookup
// covers the wire attribute names first and falls back to properties.
// Optional attributes read as undefined while unset.
func (n *Node) FieldValue(field string) (interface{}, bool) {
	switch field {
	case "uuid":
		return n.UUID, true
	case "fid":
		return optionalString(n.FID)
	case "title":
		return n.Title, true
	case "description":
		return optionalString(n.Description)
	case "mimetype":
		return n.Mimetype, true
	case "parent":
		return optionalString(n.Parent)
	case "tenant":
		return optionalString(n.Tenant)
	case "owner":
		return optionalString(n.Owner)
	case "group":
		return optionalString(n.Group)
	case "tags":
		return optionalStrings(n.Tags)
	case "aspects":
		return optionalStrings(n.Aspects)
	case "createdTime":
		return n.CreatedTime, true
	case "modifiedTime":
		return n.ModifiedTime, true
	case "size":
		if n.IsFileLike() {
			return n.Size, true
		}
		return nil, false
	case "locked":
		return n.Locked, true
	case "lockedBy":
		return optionalString(n.LockedBy)
	case "groupsAllowed":
		return optionalStrings(n.GroupsAllowed)
	}

	if v, ok := n.Properties[field]; ok {
		return v, true
	}
	return nil, false
}

func optionalString(s string) (interface{}, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func optionalStrings(s []string) (interface{}, bool) {
	if len(s) == 0 {
		return nil, false
	}
	return s, true
}

// Map renders the node as a generic payload map, the shape event
// subscribers and remote relays consume. The node serializes cleanly
// or it would never have been accepted, so failures degrade to the
// identity fields.
func (n *Node) Map() map[string]interface{} {
	raw, err := json.Marshal(n)
	if err != nil {
		return map[string]interface{}{"uuid": n.UUID, "mimetype": n.Mimetype}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"uuid": n.UUID, "mimetype": n.Mimetype}
	}
	return m
}

// Clone deep-copies the node so callers can mutate freely.
func (n *Node) Clone() *Node {
	out := *n
	out.Tags = append([]string(nil), n.Tags...)
	out.Aspects = append([]string(nil), n.Aspects...)
	out.OnCreate = append([]string(nil), n.OnCreate...)
	out.OnUpdate = append([]string(nil), n.OnUpdate...)
	out.OnDelete = append([]string(nil), n.OnDelete...)
	out.GroupsAllowed = append([]string(nil), n.GroupsAllowed...)
	out.UnlockAuthorizedGroups = append([]string(nil), n.UnlockAuthorizedGroups...)
	out.Properties = copyMap(n.Properties)
	if n.Permissions != nil {
		out.Permissions = n.Permissions.Clone()
	}
	out.Filters = n.Filters.Clone()
	return &out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return copyMap(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// RootFolder builds the reserved tree root for a tenant. It is seeded
// into every repository and can never be mutated or deleted.
func RootFolder(tenant string) *Node {
	now := shared.NowISO()
	return &Node{
		UUID:     shared.RootFolderUUID,
		Title:    "Root",
		Mimetype: FolderMimetype,
		Tenant:   tenant,
		Owner:    shared.RootUserEmail,
		Group:    shared.AdminsGroupUUID,
		Permissions: &Permissions{
			Anonymous:     []Permission{},
			Authenticated: []Permission{PermissionRead},
			Group:         []Permission{PermissionRead},
			Advanced:      map[string][]Permission{},
		},
		CreatedTime:  now,
		ModifiedTime: now,
	}
}
