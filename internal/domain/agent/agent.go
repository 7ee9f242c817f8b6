// Package agent models tenant-scoped AI configurations. An agent
// binds a model with a system prompt and tool access flags; the model
// itself stays opaque behind the AIModel port.
package agent

import (
	"fmt"

	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// Agent is the AI configuration record. Mutable, unlike builtins.
type Agent struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Model              string  `json:"model"`
	SystemInstructions string  `json:"systemInstructions,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxTokens          int     `json:"maxTokens,omitempty"`

	// UseTools lets the agent call the exposed AI tools; Reasoning
	// requests extended reasoning from models that support it.
	UseTools  bool `json:"useTools,omitempty"`
	Reasoning bool `json:"reasoning,omitempty"`

	CreatedTime  string `json:"createdTime,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// Validate aggregates field-level failures.
func (a *Agent) Validate() error {
	var errs []error
	if a.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	} else if !shared.IsValidID(a.UUID) {
		errs = append(errs, fmt.Errorf("uuid: %q is not a valid identifier", a.UUID))
	}
	if a.Title == "" {
		errs = append(errs, fmt.Errorf("title: required"))
	}
	if a.Model == "" {
		errs = append(errs, fmt.Errorf("model: required"))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature: %v is outside [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("maxTokens: must not be negative"))
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// Touch stamps the record as just modified.
func (a *Agent) Touch() {
	a.ModifiedTime = shared.NowISO()
}
