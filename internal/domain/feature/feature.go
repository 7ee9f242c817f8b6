// Package feature models executable units: user-authored modules that
// run as manual actions, event-triggered actions, folder hooks, HTTP
// extensions, or AI tools.
package feature

import (
	"fmt"

	"github.com/samber/lo"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// UUIDsParameter is the parameter every action must declare; it
// carries the target node uuids of an invocation.
const UUIDsParameter = "uuids"

// ParameterType is the closed set of declared input shapes.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamObject  ParameterType = "object"
	ParamArray   ParameterType = "array"
	ParamFile    ParameterType = "file"
)

var parameterTypes = []ParameterType{
	ParamString, ParamNumber, ParamBoolean, ParamObject, ParamArray, ParamFile,
}

// ReturnType tells the transport layer how to shape a result.
type ReturnType string

const (
	ReturnString  ReturnType = "string"
	ReturnNumber  ReturnType = "number"
	ReturnBoolean ReturnType = "boolean"
	ReturnObject  ReturnType = "object"
	ReturnArray   ReturnType = "array"
	ReturnFile    ReturnType = "file"
	ReturnVoid    ReturnType = "void"
)

var returnTypes = []ReturnType{
	ReturnString, ReturnNumber, ReturnBoolean, ReturnObject,
	ReturnArray, ReturnFile, ReturnVoid,
}

// Parameter declares one typed input of a feature.
type Parameter struct {
	Name         string        `json:"name"`
	Type         ParameterType `json:"type"`
	ArrayType    string        `json:"arrayType,omitempty"`
	Required     bool          `json:"required,omitempty"`
	Description  string        `json:"description,omitempty"`
	DefaultValue interface{}   `json:"defaultValue,omitempty"`
}

// Feature is the configuration record of an executable unit. Module
// holds the source text the runtime materializes.
type Feature struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	ExposeAction    bool `json:"exposeAction,omitempty"`
	ExposeExtension bool `json:"exposeExtension,omitempty"`
	ExposeAITool    bool `json:"exposeAITool,omitempty"`

	RunOnCreates bool `json:"runOnCreates,omitempty"`
	RunOnUpdates bool `json:"runOnUpdates,omitempty"`
	RunOnDeletes bool `json:"runOnDeletes,omitempty"`
	RunManually  bool `json:"runManually,omitempty"`

	RunAs         string   `json:"runAs,omitempty"`
	GroupsAllowed []string `json:"groupsAllowed,omitempty"`

	Filters    filters.Filters `json:"filters,omitempty"`
	Parameters []Parameter     `json:"parameters,omitempty"`

	ReturnType        ReturnType `json:"returnType,omitempty"`
	ReturnContentType string     `json:"returnContentType,omitempty"`

	Module  string `json:"module,omitempty"`
	Builtin bool   `json:"builtin,omitempty"`

	CreatedTime  string `json:"createdTime,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// Validate aggregates every configuration failure.
func (f *Feature) Validate() error {
	var errs []error

	if f.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	} else if !shared.IsValidID(f.UUID) {
		errs = append(errs, fmt.Errorf("uuid: %q is not a valid identifier", f.UUID))
	}
	if f.Title == "" {
		errs = append(errs, fmt.Errorf("title: required"))
	}
	if err := f.Filters.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("filters: %v", err))
	}
	if f.ReturnType != "" && !lo.Contains(returnTypes, f.ReturnType) {
		errs = append(errs, fmt.Errorf("returnType: unknown type %q", f.ReturnType))
	}

	seen := map[string]struct{}{}
	for _, p := range f.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("parameters: every parameter needs a name"))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("parameters: duplicate name %q", p.Name))
		}
		seen[p.Name] = struct{}{}
		if !lo.Contains(parameterTypes, p.Type) {
			errs = append(errs, fmt.Errorf("parameters.%s: unknown type %q", p.Name, p.Type))
		}
		if p.ArrayType != "" && p.Type != ParamArray {
			errs = append(errs, fmt.Errorf("parameters.%s: arrayType is only valid on arrays", p.Name))
		}
	}

	if f.ExposeAction {
		errs = append(errs, f.validateActionParameters()...)
	}

	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// validateActionParameters enforces the action contract: a required
// uuids array of strings and no file inputs.
func (f *Feature) validateActionParameters() []error {
	var errs []error

	uuids, found := lo.Find(f.Parameters, func(p Parameter) bool {
		return p.Name == UUIDsParameter
	})
	switch {
	case !found:
		errs = append(errs, fmt.Errorf("parameters: actions must declare a required %q parameter", UUIDsParameter))
	case uuids.Type != ParamArray || (uuids.ArrayType != "" && uuids.ArrayType != string(ParamString)):
		errs = append(errs, fmt.Errorf("parameters.%s: must be an array of strings", UUIDsParameter))
	case !uuids.Required:
		errs = append(errs, fmt.Errorf("parameters.%s: must be required", UUIDsParameter))
	}

	for _, p := range f.Parameters {
		if p.Type == ParamFile {
			errs = append(errs, fmt.Errorf("parameters.%s: actions may not declare file parameters", p.Name))
		}
	}
	return errs
}

// ValidateArgs enforces required-parameter presence. Type checking is
// shallow: a present value of any shape passes.
func (f *Feature) ValidateArgs(args map[string]interface{}) error {
	for _, p := range f.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || v == nil {
			return errors.NewBadRequestError(fmt.Sprintf("missing required parameter %q", p.Name))
		}
	}
	return nil
}

// ApplyDefaults returns a copy of args with declared defaults filled
// in for absent optional parameters.
func (f *Feature) ApplyDefaults(args map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(args))
	for k, v := range args {
		merged[k] = v
	}
	for _, p := range f.Parameters {
		if p.DefaultValue == nil {
			continue
		}
		if _, ok := merged[p.Name]; !ok {
			merged[p.Name] = p.DefaultValue
		}
	}
	return merged
}

// Parameter returns the declared parameter with the given name.
func (f *Feature) Parameter(name string) (Parameter, bool) {
	return lo.Find(f.Parameters, func(p Parameter) bool { return p.Name == name })
}

// RunsOn reports whether the feature reacts to the given node event
// type automatically.
func (f *Feature) RunsOn(eventType string) bool {
	switch eventType {
	case "NodeCreated":
		return f.RunOnCreates
	case "NodeUpdated":
		return f.RunOnUpdates
	case "NodeDeleted":
		return f.RunOnDeletes
	default:
		return false
	}
}

// Touch stamps the record as just modified.
func (f *Feature) Touch() {
	f.ModifiedTime = shared.NowISO()
}
