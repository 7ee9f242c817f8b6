package nodes

import (
	"context"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
)

// Proxy wraps the service with a pre-bound authentication context for
// feature-invoked calls. A fresh proxy is created for every feature
// invocation; the snapshot means feature code cannot forge a
// different principal.
type Proxy struct {
	svc  *Service
	auth principal.AuthenticationContext
}

// NewProxy binds an authentication context to the service.
func NewProxy(svc *Service, auth principal.AuthenticationContext) *Proxy {
	return &Proxy{svc: svc, auth: auth}
}

// Context returns a copy of the bound authentication context.
func (p *Proxy) Context() principal.AuthenticationContext {
	return p.auth
}

func (p *Proxy) Get(ctx context.Context, id string) (*node.Node, error) {
	return p.svc.Get(ctx, p.auth, id)
}

func (p *Proxy) List(ctx context.Context, parent string) ([]*node.Node, error) {
	return p.svc.List(ctx, p.auth, parent)
}

func (p *Proxy) Create(ctx context.Context, md node.Metadata) (*node.Node, error) {
	return p.svc.Create(ctx, p.auth, md)
}

func (p *Proxy) CreateFile(ctx context.Context, content []byte, md node.Metadata) (*node.Node, error) {
	return p.svc.CreateFile(ctx, p.auth, content, md)
}

func (p *Proxy) Update(ctx context.Context, id string, patch node.Patch) (*node.Node, error) {
	return p.svc.Update(ctx, p.auth, id, patch)
}

func (p *Proxy) UpdateFile(ctx context.Context, id string, content []byte) (*node.Node, error) {
	return p.svc.UpdateFile(ctx, p.auth, id, content)
}

func (p *Proxy) Delete(ctx context.Context, id string) error {
	return p.svc.Delete(ctx, p.auth, id)
}

func (p *Proxy) Copy(ctx context.Context, id, parent string) (*node.Node, error) {
	return p.svc.Copy(ctx, p.auth, id, parent)
}

func (p *Proxy) Duplicate(ctx context.Context, id string) (*node.Node, error) {
	return p.svc.Duplicate(ctx, p.auth, id)
}

func (p *Proxy) Find(ctx context.Context, f filters.Filters, page repository.PageRequest) (*repository.NodePage, error) {
	return p.svc.Find(ctx, p.auth, f, page)
}

func (p *Proxy) Breadcrumbs(ctx context.Context, id string) ([]Breadcrumb, error) {
	return p.svc.Breadcrumbs(ctx, p.auth, id)
}

func (p *Proxy) Export(ctx context.Context, id string) ([]byte, ExportInfo, error) {
	return p.svc.Export(ctx, p.auth, id)
}

func (p *Proxy) Evaluate(ctx context.Context, id string) ([]*node.Node, error) {
	return p.svc.Evaluate(ctx, p.auth, id)
}

func (p *Proxy) Lock(ctx context.Context, id string, unlockAuthorizedGroups []string) (*node.Node, error) {
	return p.svc.Lock(ctx, p.auth, id, unlockAuthorizedGroups)
}

func (p *Proxy) Unlock(ctx context.Context, id string) (*node.Node, error) {
	return p.svc.Unlock(ctx, p.auth, id)
}
