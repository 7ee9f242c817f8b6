// Package di assembles the per-tenant service bundles from
// configuration. Every tenant gets isolated repositories, blob storage,
// and an event bus; process-wide pieces (logger, metrics, JWT, AWS
// clients) are shared.
package di

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"antbox-backend/internal/config"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/events"
	"antbox-backend/internal/interfaces/http/rest"
	"antbox-backend/internal/metrics"
	"antbox-backend/internal/repository"
	boltrepo "antbox-backend/internal/repository/bolt"
	"antbox-backend/internal/repository/ddb"
	repomemory "antbox-backend/internal/repository/memory"
	"antbox-backend/internal/service/agents"
	"antbox-backend/internal/service/apikeys"
	"antbox-backend/internal/service/aspects"
	auditsvc "antbox-backend/internal/service/audit"
	"antbox-backend/internal/service/features"
	"antbox-backend/internal/service/nodes"
	"antbox-backend/internal/service/users"
	"antbox-backend/internal/storage"
	"antbox-backend/internal/storage/disk"
	"antbox-backend/internal/storage/memory"
	"antbox-backend/internal/storage/s3"
	"antbox-backend/pkg/auth"
	"antbox-backend/pkg/errors"
)

// Container holds every wired dependency of a running server and
// implements rest.Registry over the tenant bundles.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	JWT     *auth.JWT

	dynamo      *awsdynamodb.Client
	s3          *awss3.Client
	eventbridge *awseventbridge.Client

	watcher *config.TenantsWatcher

	mu      sync.RWMutex
	tenants map[string]*rest.Services
	closers []func() error
}

// New builds the container: AWS clients if any backend needs them, the
// tenants file watcher, and one service bundle per configured tenant.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: ProvideMetrics(),
		JWT:     ProvideJWT(cfg),
		tenants: map[string]*rest.Services{},
	}

	if c.needsAWS() {
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		if cfg.Persistence.Repository == "dynamodb" {
			c.dynamo = ProvideDynamoDBClient(awsCfg)
		}
		if cfg.Persistence.Storage == "s3" {
			c.s3 = ProvideS3Client(awsCfg)
		}
		if cfg.AWS.EventBusRelay {
			c.eventbridge = ProvideEventBridgeClient(awsCfg)
		}
	}

	watcher, err := config.NewTenantsWatcher(cfg.TenantsFile, cfg.DefaultTenant, logger)
	if err != nil {
		return nil, err
	}
	c.watcher = watcher

	for _, tenant := range watcher.Tenants() {
		if err := c.addTenant(ctx, tenant); err != nil {
			c.Close()
			return nil, fmt.Errorf("tenant %s: %w", tenant.Name, err)
		}
	}

	// New tenants appearing in the file get bundles on the fly;
	// removed tenants keep serving until restart.
	watcher.OnChange(func(tenants []config.Tenant) {
		for _, tenant := range tenants {
			c.mu.RLock()
			_, known := c.tenants[tenant.Name]
			c.mu.RUnlock()
			if known {
				continue
			}
			if err := c.addTenant(context.Background(), tenant); err != nil {
				logger.Error("tenant bundle failed",
					zap.String("tenant", tenant.Name), zap.Error(err))
			}
		}
	})

	return c, nil
}

func (c *Container) needsAWS() bool {
	return c.Config.Persistence.Repository == "dynamodb" ||
		c.Config.Persistence.Storage == "s3" ||
		c.Config.AWS.EventBusRelay
}

// Get implements rest.Registry.
func (c *Container) Get(tenant string) (*rest.Services, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bundle, ok := c.tenants[tenant]
	return bundle, ok
}

// DefaultTenant implements rest.Registry.
func (c *Container) DefaultTenant() string {
	return c.Config.DefaultTenant
}

// Close releases tenant stores and the file watcher.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	if c.watcher != nil {
		errs = multierr.Append(errs, c.watcher.Close())
		c.watcher = nil
	}
	for _, closer := range c.closers {
		errs = multierr.Append(errs, closer())
	}
	c.closers = nil
	return errs
}

func (c *Container) addTenant(ctx context.Context, tenant config.Tenant) error {
	bundle, closers, err := c.buildTenant(ctx, tenant)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tenants[tenant.Name] = bundle
	c.closers = append(c.closers, closers...)
	c.mu.Unlock()

	c.Logger.Info("tenant ready", zap.String("tenant", tenant.Name))
	return nil
}

func (c *Container) buildTenant(ctx context.Context, tenant config.Tenant) (*rest.Services, []func() error, error) {
	cfg := c.Config
	logger := c.Logger.With(zap.String("tenant", tenant.Name))
	bus := events.NewEventBus(logger)

	var closers []func() error

	repos, boltStore, err := c.openRepositories(tenant.Name)
	if err != nil {
		return nil, nil, err
	}
	if boltStore != nil {
		closers = append(closers, boltStore.Close)
	}

	store, err := c.openStorage(tenant.Name)
	if err != nil {
		for _, closer := range closers {
			closer()
		}
		return nil, nil, err
	}

	if err := ensureRootFolder(ctx, repos.nodes, tenant.Name); err != nil {
		for _, closer := range closers {
			closer()
		}
		return nil, nil, err
	}

	nodeSvc := nodes.NewService(tenant.Name, repos.nodes, store, repos.aspects, bus, logger, c.Metrics)

	userSvc := users.NewService(repos.users, repos.groups, logger)
	if err := userSvc.Seed(ctx); err != nil {
		for _, closer := range closers {
			closer()
		}
		return nil, nil, err
	}

	featureSvc := features.NewService(tenant.Name, repos.features, nodeSvc, logger, c.Metrics)
	featureSvc.Attach(bus)

	agentSvc := agents.NewService(tenant.Name, repos.agents, featureSvc, agents.NewStubModel(), logger)

	auditSvc := auditsvc.NewService(repos.audit, logger)
	auditSvc.Attach(bus)

	if cfg.AWS.EventBusRelay {
		relay := events.NewRelay(c.eventbridge, cfg.AWS.EventBusName, "antbox."+tenant.Name, logger)
		relay.Attach(bus,
			node.EventNodeCreated, node.EventNodeUpdated, node.EventNodeDeleted)
		closers = append(closers, func() error {
			relay.Close()
			return nil
		})
	}

	rootHash := tenant.RootPasswordHash
	if rootHash == "" {
		rootHash = cfg.Auth.RootPasswordHash
	}

	return &rest.Services{
		Nodes:            nodeSvc,
		Features:         featureSvc,
		Users:            userSvc,
		Aspects:          aspects.NewService(repos.aspects, logger),
		APIKeys:          apikeys.NewService(repos.apikeys, repos.groups, logger),
		Agents:           agentSvc,
		Audit:            auditSvc,
		RootPasswordHash: rootHash,
	}, closers, nil
}

type tenantRepositories struct {
	nodes    repository.NodeRepository
	users    repository.UserRepository
	groups   repository.GroupRepository
	features repository.FeatureRepository
	aspects  repository.AspectRepository
	apikeys  repository.APIKeyRepository
	agents   repository.AgentRepository
	audit    repository.AuditRepository
}

func (c *Container) openRepositories(tenant string) (tenantRepositories, *boltrepo.Store, error) {
	switch c.Config.Persistence.Repository {
	case "memory":
		return tenantRepositories{
			nodes:    repomemory.NewNodeRepository(),
			users:    repomemory.NewUserRepository(),
			groups:   repomemory.NewGroupRepository(),
			features: repomemory.NewFeatureRepository(),
			aspects:  repomemory.NewAspectRepository(),
			apikeys:  repomemory.NewAPIKeyRepository(),
			agents:   repomemory.NewAgentRepository(),
			audit:    repomemory.NewAuditRepository(),
		}, nil, nil

	case "bolt":
		store, err := boltrepo.Open(c.Config.Persistence.DataDir, tenant)
		if err != nil {
			return tenantRepositories{}, nil, err
		}
		return boltRepositories(store), store, nil

	case "dynamodb":
		// DynamoDB backs the node tree; the low-volume collections
		// stay in the tenant's bolt file.
		store, err := boltrepo.Open(c.Config.Persistence.DataDir, tenant)
		if err != nil {
			return tenantRepositories{}, nil, err
		}
		repos := boltRepositories(store)
		repos.nodes = ddb.NewNodeRepository(c.dynamo, c.Config.Persistence.DynamoDBTable, tenant)
		return repos, store, nil

	default:
		return tenantRepositories{}, nil, fmt.Errorf("unknown repository backend %q", c.Config.Persistence.Repository)
	}
}

func boltRepositories(store *boltrepo.Store) tenantRepositories {
	return tenantRepositories{
		nodes:    store.Nodes(),
		users:    store.Users(),
		groups:   store.Groups(),
		features: store.Features(),
		aspects:  store.Aspects(),
		apikeys:  store.APIKeys(),
		agents:   store.Agents(),
		audit:    store.Audit(),
	}
}

func (c *Container) openStorage(tenant string) (storage.Provider, error) {
	switch c.Config.Persistence.Storage {
	case "memory":
		return memory.NewProvider(), nil
	case "disk":
		return disk.NewOsProvider(filepath.Join(c.Config.Persistence.DataDir, "blobs", tenant))
	case "s3":
		prefix := path.Join(c.Config.Persistence.S3Prefix, tenant)
		return s3.NewProvider(c.s3, c.Config.Persistence.S3Bucket, prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Config.Persistence.Storage)
	}
}

func ensureRootFolder(ctx context.Context, repo repository.NodeRepository, tenant string) error {
	_, err := repo.GetByID(ctx, shared.RootFolderUUID)
	if err == nil {
		return nil
	}
	if !errors.IsNotFound(err) {
		return err
	}
	return repo.Add(ctx, node.RootFolder(tenant))
}
