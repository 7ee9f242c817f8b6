package agents

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/agent"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/internal/service/features"
	"antbox-backend/pkg/errors"
)

// maxToolRounds bounds how many tool-call turns a single conversation
// may consume before the service forces a final answer.
const maxToolRounds = 5

// Service manages agent configurations and runs conversations against
// the configured model. Model calls go through a circuit breaker so a
// struggling provider fails fast instead of piling up requests.
type Service struct {
	tenant   string
	repo     repository.AgentRepository
	features *features.Service
	model    AIModel
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewService wires the agents service.
func NewService(tenant string, repo repository.AgentRepository, featureSvc *features.Service, model AIModel, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-model",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Service{
		tenant:   tenant,
		repo:     repo,
		features: featureSvc,
		model:    model,
		breaker:  breaker,
		logger:   logger,
	}
}

// Create registers a new agent.
func (s *Service) Create(ctx context.Context, auth principal.AuthenticationContext, a *agent.Agent) (*agent.Agent, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only administrators manage agents")
	}
	if a.UUID == "" {
		a.UUID = shared.NewUUID()
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	now := shared.NowISO()
	a.CreatedTime = now
	a.ModifiedTime = now
	if err := s.repo.Add(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one agent.
func (s *Service) Get(ctx context.Context, auth principal.AuthenticationContext, uuid string) (*agent.Agent, error) {
	if !auth.IsAuthenticated() {
		return nil, errors.NewForbiddenError("")
	}
	return s.repo.GetByUUID(ctx, uuid)
}

// List returns every agent.
func (s *Service) List(ctx context.Context, auth principal.AuthenticationContext) ([]*agent.Agent, error) {
	if !auth.IsAuthenticated() {
		return nil, errors.NewForbiddenError("")
	}
	return s.repo.List(ctx)
}

// Update patches an agent's configuration.
func (s *Service) Update(ctx context.Context, auth principal.AuthenticationContext, uuid string, updated *agent.Agent) (*agent.Agent, error) {
	if !auth.IsAdmin() {
		return nil, errors.NewForbiddenError("only administrators manage agents")
	}
	existing, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	updated.UUID = existing.UUID
	updated.CreatedTime = existing.CreatedTime
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.Touch()
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an agent.
func (s *Service) Delete(ctx context.Context, auth principal.AuthenticationContext, uuid string) error {
	if !auth.IsAdmin() {
		return errors.NewForbiddenError("only administrators manage agents")
	}
	if _, err := s.repo.GetByUUID(ctx, uuid); err != nil {
		return err
	}
	return s.repo.Delete(ctx, uuid)
}

// Chat runs a free-form conversation turn. When the agent has tool
// access, model-requested tool calls execute against the feature
// service under the caller's identity and feed back into the
// conversation until the model produces text.
func (s *Service) Chat(ctx context.Context, auth principal.AuthenticationContext, uuid string, history []Message) (string, error) {
	a, err := s.Get(ctx, auth, uuid)
	if err != nil {
		return "", err
	}
	return s.converse(ctx, auth, a, history, a.UseTools)
}

// Answer asks a single question and returns a structured object. The
// model is instructed to reply with one JSON object; a reply that is
// not one is a provider fault, not a caller error.
func (s *Service) Answer(ctx context.Context, auth principal.AuthenticationContext, uuid, question string) (map[string]interface{}, error) {
	a, err := s.Get(ctx, auth, uuid)
	if err != nil {
		return nil, err
	}
	if question == "" {
		return nil, errors.NewBadRequestError("missing required parameter \"question\"")
	}

	instructed := *a
	instructed.SystemInstructions = strings.TrimSpace(a.SystemInstructions +
		"\nAnswer with a single JSON object and nothing else.")

	text, err := s.converse(ctx, auth, &instructed, []Message{{Role: RoleUser, Content: question}}, false)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil, errors.NewUnknownError("model returned malformed structured output", err)
	}
	return out, nil
}

// RAG answers a question grounded on repository content: tool access
// is forced on so the model can search and read nodes regardless of
// the agent's chat configuration.
func (s *Service) RAG(ctx context.Context, auth principal.AuthenticationContext, uuid, question string) (string, error) {
	a, err := s.Get(ctx, auth, uuid)
	if err != nil {
		return "", err
	}
	if question == "" {
		return "", errors.NewBadRequestError("missing required parameter \"question\"")
	}

	grounded := *a
	grounded.SystemInstructions = strings.TrimSpace(a.SystemInstructions +
		"\nGround every statement on repository content retrieved through the available tools.")

	return s.converse(ctx, auth, &grounded, []Message{{Role: RoleUser, Content: question}}, true)
}

func (s *Service) converse(ctx context.Context, auth principal.AuthenticationContext, a *agent.Agent, history []Message, withTools bool) (string, error) {
	req := CompletionRequest{
		Model:              a.Model,
		SystemInstructions: a.SystemInstructions,
		Temperature:        a.Temperature,
		MaxTokens:          a.MaxTokens,
		Reasoning:          a.Reasoning,
		Messages:           history,
	}
	if withTools {
		tools, err := s.features.ListAITools(ctx, auth)
		if err != nil {
			return "", err
		}
		req.Tools = tools
	}

	for round := 0; ; round++ {
		resp, err := s.complete(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 || !withTools {
			return resp.Text, nil
		}
		if round >= maxToolRounds {
			return "", errors.NewUnknownError("model exceeded the tool call budget", nil)
		}

		for _, call := range resp.ToolCalls {
			result, err := s.features.RunAITool(ctx, auth, call.Tool, call.Args)
			content := toolResultContent(result, err)
			s.logger.Debug("agent tool call",
				zap.String("agent", a.UUID),
				zap.String("tool", call.Tool),
				zap.Bool("failed", err != nil))
			req.Messages = append(req.Messages, Message{Role: RoleTool, Content: content})
		}
	}
}

// complete runs one model call through the circuit breaker.
func (s *Service) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.model.Complete(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.NewUnknownError("ai model is unavailable", err)
		}
		if appErr := errors.GetAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, errors.NewUnknownError("ai model call failed", err)
	}
	return out.(*CompletionResponse), nil
}

// toolResultContent serializes a tool outcome for the conversation.
// Failures flow back to the model as text so it can recover.
func toolResultContent(result interface{}, err error) string {
	if err != nil {
		return "tool error: " + err.Error()
	}
	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return "tool error: unserializable result"
	}
	return string(raw)
}

// extractJSON trims prose around the first top-level JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
