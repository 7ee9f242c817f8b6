package features

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/metrics"
	"antbox-backend/internal/repository"
	"antbox-backend/internal/service/nodes"
	"antbox-backend/pkg/errors"
)

// Service manages executable feature modules and runs them through
// the action, extension and AI tool channels.
type Service struct {
	tenant  string
	repo    repository.FeatureRepository
	nodes   *nodes.Service
	runtime *Runtime
	limiter *rateLimiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	ocr       OCRModel
	templates ToolLibrary
	docs      ToolLibrary
}

// NewService wires the feature service.
func NewService(tenant string, repo repository.FeatureRepository, nodeSvc *nodes.Service, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tenant:  tenant,
		repo:    repo,
		nodes:   nodeSvc,
		runtime: NewRuntime(),
		limiter: newRateLimiter(rateLimitMax, rateLimitWindow),
		logger:  logger,
		metrics: m,
	}
}

// CreateOrReplace installs a feature from module source. The module's
// default export declares the feature record; the uuid it carries
// decides whether this is a create or a replace.
func (s *Service) CreateOrReplace(ctx context.Context, auth principal.AuthenticationContext, source string) (*feature.Feature, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only administrators manage features")
	}

	f, err := s.runtime.Parse(source)
	if err != nil {
		return nil, err
	}
	if f.UUID == "" {
		f.UUID = shared.NewUUID()
	}
	f.Builtin = false
	if err := f.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByUUID(ctx, f.UUID)
	switch {
	case err == nil:
		if existing.Builtin {
			return nil, errors.NewForbiddenError("builtin features cannot be replaced")
		}
		f.CreatedTime = existing.CreatedTime
		f.Touch()
		if err := s.repo.Update(ctx, f); err != nil {
			return nil, err
		}
	case errors.IsNotFound(err):
		now := shared.NowISO()
		f.CreatedTime = now
		f.ModifiedTime = now
		if err := s.repo.Add(ctx, f); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.logger.Info("feature installed",
		zap.String("uuid", f.UUID),
		zap.String("title", f.Title),
		zap.Bool("replaced", existing != nil))
	return f, nil
}

// Get returns a feature the caller is allowed to see.
func (s *Service) Get(ctx context.Context, auth principal.AuthenticationContext, uuid string) (*feature.Feature, error) {
	f, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if !s.visible(auth, f) {
		return nil, errors.NewFeatureNotFoundError(uuid)
	}
	return f, nil
}

// List returns the features visible to the caller.
func (s *Service) List(ctx context.Context, auth principal.AuthenticationContext) ([]*feature.Feature, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(f *feature.Feature, _ int) bool {
		return s.visible(auth, f)
	}), nil
}

// ListActions returns visible features exposed through the action channel.
func (s *Service) ListActions(ctx context.Context, auth principal.AuthenticationContext) ([]*feature.Feature, error) {
	return s.listExposed(ctx, auth, func(f *feature.Feature) bool { return f.ExposeAction })
}

// ListExtensions returns visible features exposed through the HTTP channel.
func (s *Service) ListExtensions(ctx context.Context, auth principal.AuthenticationContext) ([]*feature.Feature, error) {
	return s.listExposed(ctx, auth, func(f *feature.Feature) bool { return f.ExposeExtension })
}

// ListAITools returns the builtin node service tools, the tools of any
// configured backends, and visible features exposed as AI tools.
func (s *Service) ListAITools(ctx context.Context, auth principal.AuthenticationContext) ([]*feature.Feature, error) {
	stored, err := s.listExposed(ctx, auth, func(f *feature.Feature) bool { return f.ExposeAITool })
	if err != nil {
		return nil, err
	}
	tools := append(BuiltinAITools(), s.backendTools()...)
	return append(tools, stored...), nil
}

func (s *Service) listExposed(ctx context.Context, auth principal.AuthenticationContext, exposed func(*feature.Feature) bool) ([]*feature.Feature, error) {
	visible, err := s.List(ctx, auth)
	if err != nil {
		return nil, err
	}
	return lo.Filter(visible, func(f *feature.Feature, _ int) bool {
		return exposed(f)
	}), nil
}

// Delete removes a feature. Builtins are protected.
func (s *Service) Delete(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only administrators manage features")
	}
	f, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if f.Builtin {
		return errors.NewForbiddenError("builtin features cannot be deleted")
	}
	return s.repo.Delete(ctx, uuid)
}

// Export returns the module source of a feature.
func (s *Service) Export(ctx context.Context, auth principal.AuthenticationContext, uuid string) ([]byte, string, error) {
	f, err := s.Get(ctx, auth, uuid)
	if err != nil {
		return nil, "", err
	}
	if f.Module == "" {
		return nil, "", errors.NewBadRequestError("feature has no module source")
	}
	return []byte(f.Module), f.Title + ".js", nil
}

// RunAction invokes a feature through the action channel against a set
// of target nodes. Direct callers may only run features flagged for
// manual execution; each target must satisfy the feature's filters.
func (s *Service) RunAction(ctx context.Context, auth principal.AuthenticationContext, uuid string, uuids []string, params map[string]interface{}) (interface{}, error) {
	// Execution loads the record directly: restricted features hide
	// from listings, but running one fails on the groups gate in run,
	// not with a not-found.
	f, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if auth.Mode == principal.ModeDirect && !f.ExposeAction {
		return nil, errors.NewForbiddenError("feature is not exposed as an action")
	}
	if auth.Mode == principal.ModeDirect && !f.RunManually {
		return nil, errors.NewBadRequestError("Feature is not run manually")
	}
	if len(uuids) == 0 {
		return nil, errors.NewBadRequestError("missing required parameter \"uuids\"")
	}

	survivors := s.filterTargets(ctx, auth, f, uuids)
	if len(survivors) == 0 {
		return nil, errors.NewBadRequestError("no target node satisfies the feature filters")
	}

	args := map[string]interface{}{}
	for k, v := range params {
		args[k] = v
	}
	args[feature.UUIDsParameter] = survivors

	return s.run(ctx, auth, f, args, channelAction, nil)
}

// filterTargets keeps the target uuids whose nodes satisfy the
// feature's filters. Targets that do not resolve for the caller are
// dropped the same way filter mismatches are.
func (s *Service) filterTargets(ctx context.Context, auth principal.AuthenticationContext, f *feature.Feature, uuids []string) []string {
	survivors := make([]string, 0, len(uuids))
	for _, id := range uuids {
		n, err := s.nodes.Get(ctx, auth, id)
		if err != nil {
			continue
		}
		ok, err := f.Filters.IsSatisfiedBy(n)
		if err != nil || !ok {
			continue
		}
		survivors = append(survivors, id)
	}
	return survivors
}

// run is the single execution path for every channel. It enforces
// group restrictions, applies runAs elevation, validates arguments,
// admits through the rate limiter and hands the module to the runtime.
func (s *Service) run(ctx context.Context, auth principal.AuthenticationContext, f *feature.Feature, args map[string]interface{}, channel string, request map[string]interface{}) (interface{}, error) {
	if len(f.GroupsAllowed) > 0 && !auth.IsAdmin() && !auth.SharesGroupWith(f.GroupsAllowed) {
		return nil, errors.NewForbiddenError("feature is restricted to specific groups")
	}

	effective := auth
	switch channel {
	case channelAction:
		effective = effective.WithMode(principal.ModeAction)
	case channelTool:
		effective = effective.WithMode(principal.ModeAI)
	}
	if f.RunAs != "" {
		effective = effective.WithGroups(f.RunAs)
	}

	args = f.ApplyDefaults(args)
	if err := f.ValidateArgs(args); err != nil {
		return nil, err
	}

	if err := s.limiter.acquire(f.UUID, channel); err != nil {
		s.observeRun(channel, 0, err)
		return nil, err
	}

	s.logger.Info("feature execution started",
		zap.String("uuid", f.UUID),
		zap.String("channel", channel),
		zap.String("user", auth.Principal.Email))

	start := time.Now()
	result, err := s.runtime.Execute(ctx, f, RunContext{
		Auth:    effective,
		Nodes:   nodes.NewProxy(s.nodes, effective),
		Request: request,
	}, args)
	elapsed := time.Since(start)
	s.observeRun(channel, elapsed.Seconds(), err)

	if err != nil {
		s.logger.Warn("feature execution failed",
			zap.String("uuid", f.UUID),
			zap.String("channel", channel),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("feature execution finished",
		zap.String("uuid", f.UUID),
		zap.String("channel", channel),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (s *Service) observeRun(channel string, seconds float64, err error) {
	if s.metrics != nil {
		s.metrics.ObserveFeatureExecution(channel, seconds, err)
	}
}

// visible tells whether the caller may see the feature at all.
// Restricted features hide from principals outside their groups.
func (s *Service) visible(auth principal.AuthenticationContext, f *feature.Feature) bool {
	if auth.IsAdmin() || len(f.GroupsAllowed) == 0 {
		return true
	}
	return auth.SharesGroupWith(f.GroupsAllowed)
}
