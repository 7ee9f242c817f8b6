package nodes

import (
	"context"

	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// enclosingFolder resolves the folder whose permission block governs a
// node: the node itself when it is a folder, its parent otherwise.
func (s *Service) enclosingFolder(ctx context.Context, n *node.Node) (*node.Node, error) {
	if n.IsFolder() || n.IsSmartFolder() {
		return n, nil
	}
	folder, err := s.repo.GetByID(ctx, n.Parent)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewFolderNotFoundError(n.Parent)
		}
		return nil, err
	}
	return folder, nil
}

// allows evaluates the permission algorithm for one action against a
// folder. Order matters only for short-circuiting; the categories are
// additive grants.
func allows(auth principal.AuthenticationContext, folder *node.Node, action node.Permission) bool {
	if auth.IsAdmin() {
		return true
	}
	if auth.IsAuthenticated() && folder.Owner == auth.Principal.Email {
		return true
	}

	perms := folder.Permissions
	if perms == nil {
		return false
	}
	if perms.AnonymousAllows(action) {
		return true
	}
	if !auth.IsAuthenticated() {
		// Unauthenticated principals evaluate only the anonymous set.
		return false
	}
	if perms.AuthenticatedAllows(action) {
		return true
	}
	if folder.Group != "" && auth.HasGroup(folder.Group) && perms.GroupAllows(action) {
		return true
	}
	return perms.AdvancedAllows(auth.Principal.Groups, action)
}

// authorize checks an action on a node, resolving its enclosing folder.
func (s *Service) authorize(ctx context.Context, auth principal.AuthenticationContext, n *node.Node, action node.Permission) error {
	folder, err := s.enclosingFolder(ctx, n)
	if err != nil {
		return err
	}
	if !allows(auth, folder, action) {
		return errors.NewForbiddenError("")
	}
	return nil
}

// checkLock rejects mutations against a locked node unless the caller
// is admin, the original locker, or a member of an authorized group.
func checkLock(auth principal.AuthenticationContext, n *node.Node) error {
	if !n.Locked {
		return nil
	}
	if auth.IsAdmin() || auth.Principal.Email == n.LockedBy {
		return nil
	}
	if auth.SharesGroupWith(n.UnlockAuthorizedGroups) {
		return nil
	}
	return errors.NewLockedError(n.UUID)
}

// canRead is the read predicate used by list, find and evaluate to
// drop nodes the caller may not see. Lookup failures read as no.
func (s *Service) canRead(ctx context.Context, auth principal.AuthenticationContext, n *node.Node) bool {
	folder, err := s.enclosingFolder(ctx, n)
	if err != nil {
		return false
	}
	return allows(auth, folder, node.PermissionRead)
}

// ensureParentFolder loads and validates the destination folder for a
// create or move. Children of the root must be folders.
func (s *Service) ensureParentFolder(ctx context.Context, parentUUID string, child *node.Node) (*node.Node, error) {
	parent, err := s.repo.GetByID(ctx, parentUUID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewFolderNotFoundError(parentUUID)
		}
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, errors.NewBadRequestError("parent must be a folder: " + parentUUID)
	}
	if parent.UUID == shared.RootFolderUUID && !child.IsFolder() && !child.IsSmartFolder() {
		return nil, errors.NewBadRequestError("only folders may be created under the root")
	}
	return parent, nil
}
