// Package nodes implements the content graph service: hierarchical
// nodes with metadata and optional binary bodies, permission
// enforcement against folder ancestry, and lifecycle event emission.
package nodes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"antbox-backend/internal/domain/aspect"
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/events"
	"antbox-backend/internal/metrics"
	"antbox-backend/internal/repository"
	"antbox-backend/internal/storage"
	"antbox-backend/pkg/errors"
)

// Service owns the node repository and blob storage of one tenant.
// Every mutation validates invariants, enforces permissions against
// the enclosing folder, and emits a lifecycle event on success.
type Service struct {
	tenant  string
	repo    repository.NodeRepository
	storage storage.Provider
	aspects repository.AspectRepository
	bus     *events.EventBus
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService wires a node service for one tenant. The metrics handle
// may be nil for tests and tooling.
func NewService(
	tenant string,
	repo repository.NodeRepository,
	store storage.Provider,
	aspects repository.AspectRepository,
	bus *events.EventBus,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tenant:  tenant,
		repo:    repo,
		storage: store,
		aspects: aspects,
		bus:     bus,
		logger:  logger,
		metrics: m,
	}
}

func (s *Service) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveNodeOperation(operation, err)
	}
}

// ExportInfo names a streamed body.
type ExportInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Breadcrumb is one step of an ancestor chain.
type Breadcrumb struct {
	UUID  string `json:"uuid"`
	Title string `json:"title"`
}

// Get resolves a node by uuid or friendly id and enforces Read.
func (s *Service) Get(ctx context.Context, auth principal.AuthenticationContext, id string) (*node.Node, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		s.observe("get", err)
		return nil, err
	}
	if err := s.authorize(ctx, auth, n, node.PermissionRead); err != nil {
		s.observe("get", err)
		return nil, err
	}
	s.observe("get", nil)
	return n, nil
}

// resolve looks a node up by uuid first, then by friendly id.
func (s *Service) resolve(ctx context.Context, id string) (*node.Node, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}
	n, fidErr := s.repo.GetByFid(ctx, id)
	if fidErr != nil {
		if errors.IsNotFound(fidErr) {
			return nil, errors.NewNodeNotFoundError(id)
		}
		return nil, fidErr
	}
	return n, nil
}

// List returns the direct children of a folder the caller may read.
// An empty parent lists the root.
func (s *Service) List(ctx context.Context, auth principal.AuthenticationContext, parent string) ([]*node.Node, error) {
	if parent == "" {
		parent = shared.RootFolderUUID
	}
	folder, err := s.resolve(ctx, parent)
	if err != nil {
		s.observe("list", err)
		return nil, err
	}
	if !folder.IsFolder() {
		err := errors.NewFolderNotFoundError(parent)
		s.observe("list", err)
		return nil, err
	}
	if err := s.authorize(ctx, auth, folder, node.PermissionRead); err != nil {
		s.observe("list", err)
		return nil, err
	}

	children, err := s.collect(ctx, filters.NewFilters(
		filters.NewFilter("parent", filters.OpEqual, folder.UUID),
	))
	if err != nil {
		s.observe("list", err)
		return nil, err
	}

	visible := make([]*node.Node, 0, len(children))
	for _, child := range children {
		if s.canRead(ctx, auth, child) {
			visible = append(visible, child)
		}
	}
	s.observe("list", nil)
	return visible, nil
}

// Create validates and persists a metadata-only node.
func (s *Service) Create(ctx context.Context, auth principal.AuthenticationContext, md node.Metadata) (*node.Node, error) {
	n, err := s.create(ctx, auth, md, 0)
	s.observe("create", err)
	return n, err
}

// CreateFile persists a file-like node together with its body.
func (s *Service) CreateFile(ctx context.Context, auth principal.AuthenticationContext, content []byte, md node.Metadata) (*node.Node, error) {
	n, err := s.createFile(ctx, auth, content, md)
	s.observe("createFile", err)
	return n, err
}

func (s *Service) createFile(ctx context.Context, auth principal.AuthenticationContext, content []byte, md node.Metadata) (*node.Node, error) {
	n, err := s.create(ctx, auth, md, int64(len(content)))
	if err != nil {
		return nil, err
	}
	if err := s.storage.Put(ctx, n.UUID, content); err != nil {
		// Roll the metadata back so no body-less file survives.
		if delErr := s.repo.Delete(ctx, n.UUID); delErr != nil {
			s.logger.Error("orphaned node after storage failure",
				zap.String("uuid", n.UUID), zap.Error(delErr))
		}
		return nil, err
	}
	return n, nil
}

func (s *Service) create(ctx context.Context, auth principal.AuthenticationContext, md node.Metadata, size int64) (*node.Node, error) {
	if !auth.IsAuthenticated() {
		return nil, errors.NewForbiddenError("anonymous principals cannot create nodes")
	}

	n := node.New(md, auth.Principal.Email, s.tenant)
	n.Size = size
	if err := n.Validate(); err != nil {
		return nil, err
	}

	parent, err := s.ensureParentFolder(ctx, n.Parent, n)
	if err != nil {
		return nil, err
	}
	if !allows(auth, parent, node.PermissionWrite) {
		return nil, errors.NewForbiddenError("")
	}
	if err := s.validateAspects(ctx, n); err != nil {
		return nil, err
	}

	if err := s.repo.Add(ctx, n); err != nil {
		return nil, err
	}

	s.bus.Publish(node.NewCreatedEvent(n, auth.Principal.Email))
	s.logger.Info("node created",
		zap.String("uuid", n.UUID),
		zap.String("mimetype", n.Mimetype),
		zap.String("owner", n.Owner))
	return n, nil
}

// Update applies a metadata patch. Identity fields and kind changes
// are rejected; moves verify the destination and cycle freedom.
func (s *Service) Update(ctx context.Context, auth principal.AuthenticationContext, id string, patch node.Patch) (*node.Node, error) {
	n, err := s.update(ctx, auth, id, patch)
	s.observe("update", err)
	return n, err
}

func (s *Service) update(ctx context.Context, auth principal.AuthenticationContext, id string, patch node.Patch) (*node.Node, error) {
	current, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsRoot() {
		return nil, errors.NewBadRequestError("the root folder cannot be modified")
	}
	if err := s.authorize(ctx, auth, current, node.PermissionWrite); err != nil {
		return nil, err
	}
	if err := checkLock(auth, current); err != nil {
		return nil, err
	}

	updated := current.Clone()
	oldValues, newValues, err := patch.Apply(updated)
	if err != nil {
		return nil, err
	}
	if len(newValues) == 0 {
		return current, nil
	}

	if updated.Parent != current.Parent {
		parent, err := s.ensureParentFolder(ctx, updated.Parent, updated)
		if err != nil {
			return nil, err
		}
		if !allows(auth, parent, node.PermissionWrite) {
			return nil, errors.NewForbiddenError("")
		}
		if err := s.checkNoCycle(ctx, updated.UUID, updated.Parent); err != nil {
			return nil, err
		}
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateAspects(ctx, updated); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.bus.Publish(node.NewUpdatedEvent(updated, auth.Principal.Email, oldValues, newValues))
	return updated, nil
}

// UpdateFile replaces the stored body of a file-like node.
func (s *Service) UpdateFile(ctx context.Context, auth principal.AuthenticationContext, id string, content []byte) (*node.Node, error) {
	n, err := s.updateFile(ctx, auth, id, content)
	s.observe("updateFile", err)
	return n, err
}

func (s *Service) updateFile(ctx context.Context, auth principal.AuthenticationContext, id string, content []byte) (*node.Node, error) {
	current, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsFileLike() {
		return nil, errors.NewBadRequestError("node has no binary body: " + current.UUID)
	}
	if err := s.authorize(ctx, auth, current, node.PermissionWrite); err != nil {
		return nil, err
	}
	if err := checkLock(auth, current); err != nil {
		return nil, err
	}

	if err := s.storage.Put(ctx, current.UUID, content); err != nil {
		return nil, err
	}

	updated := current.Clone()
	updated.Size = int64(len(content))
	updated.Touch()
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.bus.Publish(node.NewUpdatedEvent(updated, auth.Principal.Email,
		map[string]interface{}{"size": current.Size},
		map[string]interface{}{"size": updated.Size}))
	return updated, nil
}

// Delete removes a node; folders take their descendants with them,
// depth-first. One NodeDeleted event is emitted per removed node.
func (s *Service) Delete(ctx context.Context, auth principal.AuthenticationContext, id string) error {
	err := s.delete(ctx, auth, id)
	s.observe("delete", err)
	return err
}

func (s *Service) delete(ctx context.Context, auth principal.AuthenticationContext, id string) error {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	if n.IsRoot() {
		return errors.NewBadRequestError("the root folder cannot be deleted")
	}
	if err := s.authorize(ctx, auth, n, node.PermissionDelete); err != nil {
		return err
	}
	return s.deleteTree(ctx, auth, n)
}

func (s *Service) deleteTree(ctx context.Context, auth principal.AuthenticationContext, n *node.Node) error {
	if err := checkLock(auth, n); err != nil {
		return err
	}

	if n.IsFolder() {
		children, err := s.collect(ctx, filters.NewFilters(
			filters.NewFilter("parent", filters.OpEqual, n.UUID),
		))
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.deleteTree(ctx, auth, child); err != nil {
				return err
			}
		}
	}

	if err := s.repo.Delete(ctx, n.UUID); err != nil {
		return err
	}
	if n.IsFileLike() {
		if err := s.storage.Delete(ctx, n.UUID); err != nil && !errors.IsNotFound(err) {
			s.logger.Warn("blob cleanup failed",
				zap.String("uuid", n.UUID), zap.Error(err))
		}
	}

	s.bus.Publish(node.NewDeletedEvent(n, auth.Principal.Email))
	return nil
}

// Copy deep-copies a node into another folder under fresh uuids.
// Metadata is preserved except identity: friendly ids do not travel
// and creation times restart.
func (s *Service) Copy(ctx context.Context, auth principal.AuthenticationContext, id, parentID string) (*node.Node, error) {
	n, err := s.copy(ctx, auth, id, parentID, "")
	s.observe("copy", err)
	return n, err
}

// Duplicate copies a node next to itself with a derived title.
func (s *Service) Duplicate(ctx context.Context, auth principal.AuthenticationContext, id string) (*node.Node, error) {
	source, err := s.resolve(ctx, id)
	if err != nil {
		s.observe("duplicate", err)
		return nil, err
	}
	n, err := s.copy(ctx, auth, id, source.Parent, source.Title+" (copy)")
	s.observe("duplicate", err)
	return n, err
}

func (s *Service) copy(ctx context.Context, auth principal.AuthenticationContext, id, parentID, title string) (*node.Node, error) {
	source, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if source.IsRoot() {
		return nil, errors.NewBadRequestError("the root folder cannot be copied")
	}
	if err := s.authorize(ctx, auth, source, node.PermissionRead); err != nil {
		return nil, err
	}

	copied := source.Clone()
	copied.Parent = parentID
	if title != "" {
		copied.Title = title
	}

	parent, err := s.ensureParentFolder(ctx, parentID, copied)
	if err != nil {
		return nil, err
	}
	if !allows(auth, parent, node.PermissionWrite) {
		return nil, errors.NewForbiddenError("")
	}
	return s.copyTree(ctx, auth, source, copied)
}

// copyTree persists one copied node and recurses into folders. The
// copy arrives pre-cloned with its destination parent set.
func (s *Service) copyTree(ctx context.Context, auth principal.AuthenticationContext, source, copied *node.Node) (*node.Node, error) {
	now := shared.NowISO()
	copied.UUID = shared.NewUUID()
	copied.FID = ""
	copied.CreatedTime = now
	copied.ModifiedTime = now
	copied.Locked = false
	copied.LockedBy = ""
	copied.UnlockAuthorizedGroups = nil

	if err := s.repo.Add(ctx, copied); err != nil {
		return nil, err
	}

	if source.IsFileLike() {
		content, err := s.storage.Get(ctx, source.UUID)
		if err != nil {
			return nil, err
		}
		if err := s.storage.Put(ctx, copied.UUID, content); err != nil {
			return nil, err
		}
	}

	s.bus.Publish(node.NewCreatedEvent(copied, auth.Principal.Email))

	if source.IsFolder() {
		children, err := s.collect(ctx, filters.NewFilters(
			filters.NewFilter("parent", filters.OpEqual, source.UUID),
		))
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			childCopy := child.Clone()
			childCopy.Parent = copied.UUID
			if _, err := s.copyTree(ctx, auth, child, childCopy); err != nil {
				return nil, err
			}
		}
	}
	return copied, nil
}

// Find runs a repository query and drops unreadable nodes from the
// returned page.
func (s *Service) Find(ctx context.Context, auth principal.AuthenticationContext, f filters.Filters, page repository.PageRequest) (*repository.NodePage, error) {
	result, err := s.repo.Filter(ctx, f, page)
	if err != nil {
		s.observe("find", err)
		return nil, err
	}

	visible := make([]*node.Node, 0, len(result.Items))
	for _, n := range result.Items {
		if s.canRead(ctx, auth, n) {
			visible = append(visible, n)
		}
	}
	result.Items = visible
	s.observe("find", nil)
	return result, nil
}

// Breadcrumbs returns the ancestor chain root→node.
func (s *Service) Breadcrumbs(ctx context.Context, auth principal.AuthenticationContext, id string) ([]Breadcrumb, error) {
	n, err := s.Get(ctx, auth, id)
	if err != nil {
		s.observe("breadcrumbs", err)
		return nil, err
	}

	chain := []Breadcrumb{{UUID: n.UUID, Title: n.Title}}
	seen := map[string]struct{}{n.UUID: {}}
	for !n.IsRoot() {
		parent, err := s.repo.GetByID(ctx, n.Parent)
		if err != nil {
			s.observe("breadcrumbs", err)
			return nil, err
		}
		if _, dup := seen[parent.UUID]; dup {
			err := errors.NewUnknownError(
				fmt.Sprintf("ancestry cycle detected at %s", parent.UUID), nil)
			s.observe("breadcrumbs", err)
			return nil, err
		}
		seen[parent.UUID] = struct{}{}
		chain = append([]Breadcrumb{{UUID: parent.UUID, Title: parent.Title}}, chain...)
		n = parent
	}
	s.observe("breadcrumbs", nil)
	return chain, nil
}

// Export returns the stored body of a file-like node.
func (s *Service) Export(ctx context.Context, auth principal.AuthenticationContext, id string) ([]byte, ExportInfo, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		s.observe("export", err)
		return nil, ExportInfo{}, err
	}
	if err := s.authorize(ctx, auth, n, node.PermissionExport); err != nil {
		s.observe("export", err)
		return nil, ExportInfo{}, err
	}
	if !n.IsFileLike() {
		err := errors.NewBadRequestError("node has no binary body: " + n.UUID)
		s.observe("export", err)
		return nil, ExportInfo{}, err
	}

	content, err := s.storage.Get(ctx, n.UUID)
	if err != nil {
		s.observe("export", err)
		return nil, ExportInfo{}, err
	}
	s.observe("export", nil)
	return content, ExportInfo{Name: n.Title, Type: n.Mimetype}, nil
}

// Evaluate runs a smart folder's stored query and returns the nodes
// the caller may read.
func (s *Service) Evaluate(ctx context.Context, auth principal.AuthenticationContext, id string) ([]*node.Node, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		s.observe("evaluate", err)
		return nil, err
	}
	if !n.IsSmartFolder() {
		err := errors.NewSmartFolderNotFoundError(id)
		s.observe("evaluate", err)
		return nil, err
	}
	if err := s.authorize(ctx, auth, n, node.PermissionRead); err != nil {
		s.observe("evaluate", err)
		return nil, err
	}

	matches, err := s.collect(ctx, n.Filters)
	if err != nil {
		s.observe("evaluate", err)
		return nil, err
	}
	visible := make([]*node.Node, 0, len(matches))
	for _, m := range matches {
		if s.canRead(ctx, auth, m) {
			visible = append(visible, m)
		}
	}
	s.observe("evaluate", nil)
	return visible, nil
}

// Lock marks a node read-only for everyone except the locker, admins
// and the optionally authorized groups.
func (s *Service) Lock(ctx context.Context, auth principal.AuthenticationContext, id string, unlockAuthorizedGroups []string) (*node.Node, error) {
	n, err := s.lock(ctx, auth, id, unlockAuthorizedGroups)
	s.observe("lock", err)
	return n, err
}

func (s *Service) lock(ctx context.Context, auth principal.AuthenticationContext, id string, groups []string) (*node.Node, error) {
	current, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, auth, current, node.PermissionWrite); err != nil {
		return nil, err
	}
	if current.Locked {
		return nil, errors.NewLockedError(current.UUID)
	}

	updated := current.Clone()
	updated.Locked = true
	updated.LockedBy = auth.Principal.Email
	updated.UnlockAuthorizedGroups = append([]string(nil), groups...)
	updated.Touch()

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.bus.Publish(node.NewUpdatedEvent(updated, auth.Principal.Email,
		map[string]interface{}{"locked": false},
		map[string]interface{}{"locked": true, "lockedBy": updated.LockedBy}))
	return updated, nil
}

// Unlock clears the lock. Only admins, the locker, or members of the
// authorized groups may do it.
func (s *Service) Unlock(ctx context.Context, auth principal.AuthenticationContext, id string) (*node.Node, error) {
	n, err := s.unlock(ctx, auth, id)
	s.observe("unlock", err)
	return n, err
}

func (s *Service) unlock(ctx context.Context, auth principal.AuthenticationContext, id string) (*node.Node, error) {
	current, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Locked {
		return current, nil
	}
	if err := checkLock(auth, current); err != nil {
		return nil, err
	}

	updated := current.Clone()
	updated.Locked = false
	updated.LockedBy = ""
	updated.UnlockAuthorizedGroups = nil
	updated.Touch()

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.bus.Publish(node.NewUpdatedEvent(updated, auth.Principal.Email,
		map[string]interface{}{"locked": true},
		map[string]interface{}{"locked": false}))
	return updated, nil
}

// checkNoCycle walks the destination's ancestry and rejects a move
// that would place a folder under one of its own descendants.
func (s *Service) checkNoCycle(ctx context.Context, movingUUID, newParentUUID string) error {
	seen := map[string]struct{}{}
	current := newParentUUID
	for current != "" && current != shared.RootFolderUUID {
		if current == movingUUID {
			return errors.NewBadRequestError("a folder cannot be moved into its own subtree")
		}
		if _, dup := seen[current]; dup {
			return errors.NewUnknownError("ancestry cycle detected at "+current, nil)
		}
		seen[current] = struct{}{}
		ancestor, err := s.repo.GetByID(ctx, current)
		if err != nil {
			return err
		}
		current = ancestor.Parent
	}
	return nil
}

// validateAspects checks the node's properties against every attached
// aspect schema and the aspect's applicability filter.
func (s *Service) validateAspects(ctx context.Context, n *node.Node) error {
	if len(n.Aspects) == 0 {
		return nil
	}

	resolve := func(uuid string) (filters.FieldResolver, error) {
		ref, err := s.repo.GetByID(ctx, uuid)
		if err != nil {
			return nil, err
		}
		return ref, nil
	}

	var errs []error
	for _, aspectUUID := range n.Aspects {
		a, err := s.aspects.GetByUUID(ctx, aspectUUID)
		if err != nil {
			if errors.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("aspects: unknown aspect %q", aspectUUID))
				continue
			}
			return err
		}
		applies, err := a.AppliesTo(n)
		if err != nil {
			return err
		}
		if !applies {
			errs = append(errs, fmt.Errorf("aspects: aspect %q does not apply to this node", aspectUUID))
			continue
		}
		if err := a.ValidateProperties(n.Properties, aspect.ReferenceResolver(resolve)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// collect drains a filtered query across every page.
func (s *Service) collect(ctx context.Context, f filters.Filters) ([]*node.Node, error) {
	var all []*node.Node
	token := 1
	for {
		page, err := s.repo.Filter(ctx, f, repository.NewPageRequest(repository.MaxPageSize, token))
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageToken == 0 {
			return all, nil
		}
		token = page.NextPageToken
	}
}
