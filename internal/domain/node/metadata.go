package node

import (
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/shared"
)

// Metadata is the creation payload for a node. Identity fields are
// optional; the service assigns a uuid when none is given.
type Metadata struct {
	UUID        string `json:"uuid,omitempty"`
	FID         string `json:"fid,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Mimetype    string `json:"mimetype"`
	Parent      string `json:"parent,omitempty"`

	Group string `json:"group,omitempty"`

	Tags       []string               `json:"tags,omitempty"`
	Aspects    []string               `json:"aspects,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`

	Permissions   *Permissions    `json:"permissions,omitempty"`
	OnCreate      []string        `json:"onCreate,omitempty"`
	OnUpdate      []string        `json:"onUpdate,omitempty"`
	OnDelete      []string        `json:"onDelete,omitempty"`
	Filters       filters.Filters `json:"filters,omitempty"`
	GroupsAllowed []string        `json:"groupsAllowed,omitempty"`
}

// New materializes creation metadata into a node owned by the given
// principal. Empty identity and placement fields get their defaults:
// a fresh uuid, the root folder as parent, and the metadata kind when
// no mimetype is named. Folders without an explicit permission block
// receive DefaultPermissions.
func New(md Metadata, owner, tenant string) *Node {
	now := shared.NowISO()
	n := &Node{
		UUID:          md.UUID,
		FID:           md.FID,
		Title:         md.Title,
		Description:   md.Description,
		Mimetype:      md.Mimetype,
		Parent:        md.Parent,
		Tenant:        tenant,
		Owner:         owner,
		Group:         md.Group,
		Tags:          md.Tags,
		Aspects:       md.Aspects,
		Properties:    md.Properties,
		Permissions:   md.Permissions,
		OnCreate:      md.OnCreate,
		OnUpdate:      md.OnUpdate,
		OnDelete:      md.OnDelete,
		Filters:       md.Filters,
		GroupsAllowed: md.GroupsAllowed,
		CreatedTime:   now,
		ModifiedTime:  now,
	}

	if n.UUID == "" {
		n.UUID = shared.NewUUID()
	}
	if n.Parent == "" {
		n.Parent = shared.RootFolderUUID
	}
	if n.Mimetype == "" {
		n.Mimetype = MetaNodeMimetype
	}
	if (n.IsFolder() || n.IsSmartFolder()) && n.Permissions == nil {
		n.Permissions = DefaultPermissions()
	}
	return n
}
