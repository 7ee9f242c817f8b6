package agents

import (
	"context"
	"fmt"
	"strings"

	"antbox-backend/internal/domain/feature"
)

// Message roles exchanged with a model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// CompletionRequest is the provider-neutral model input.
type CompletionRequest struct {
	Model              string
	SystemInstructions string
	Temperature        float64
	MaxTokens          int
	Reasoning          bool
	Messages           []Message
	Tools              []*feature.Feature
}

// CompletionResponse is the provider-neutral model output. A response
// carries either text or tool calls to satisfy first.
type CompletionResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// AIModel is the port to a completion provider. Implementations must
// be safe for concurrent use.
type AIModel interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// StubModel is a deterministic offline model: it answers by echoing
// the last user message, and honors scripted responses for tests and
// demo deployments.
type StubModel struct {
	// Scripted responses are consumed in order before the echo
	// fallback kicks in.
	Scripted []CompletionResponse

	next int
}

// NewStubModel creates an echo model with no scripted turns.
func NewStubModel() *StubModel {
	return &StubModel{}
}

// Complete pops the next scripted response, or echoes.
func (m *StubModel) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.next < len(m.Scripted) {
		resp := m.Scripted[m.next]
		m.next++
		return &resp, nil
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	text := fmt.Sprintf("[%s] %s", req.Model, strings.TrimSpace(last))
	return &CompletionResponse{Text: text}, nil
}
