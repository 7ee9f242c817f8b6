// Package aspect models typed property schemas that nodes attach to.
// An aspect constrains which nodes it may be applied to and which
// shapes the namespaced properties must have.
package aspect

import (
	"fmt"
	"regexp"

	"github.com/samber/lo"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/pkg/errors"
)

// PropertyType is the closed set of value shapes a property accepts.
type PropertyType string

const (
	PropertyString  PropertyType = "string"
	PropertyNumber  PropertyType = "number"
	PropertyBoolean PropertyType = "boolean"
	PropertyObject  PropertyType = "object"
	PropertyArray   PropertyType = "array"
	PropertyUUID    PropertyType = "uuid"
)

var propertyTypes = []PropertyType{
	PropertyString, PropertyNumber, PropertyBoolean,
	PropertyObject, PropertyArray, PropertyUUID,
}

// Property declares one named, typed slot on an aspect. Validation is
// optional: a regex for strings, an allowed-value list, or a filter
// set that referenced nodes must satisfy (uuid type only).
type Property struct {
	Name              string          `json:"name"`
	Title             string          `json:"title,omitempty"`
	Type              PropertyType    `json:"type"`
	Required          bool            `json:"required,omitempty"`
	ValidationRegex   string          `json:"validationRegex,omitempty"`
	ValidationList    []interface{}   `json:"validationList,omitempty"`
	ValidationFilters filters.Filters `json:"validationFilters,omitempty"`
	Default           interface{}     `json:"default,omitempty"`
}

// FullName returns the namespaced property key nodes carry.
func (p Property) FullName(aspectUUID string) string {
	return aspectUUID + ":" + p.Name
}

// Aspect is the schema record.
type Aspect struct {
	UUID        string          `json:"uuid"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Filters     filters.Filters `json:"filters,omitempty"`
	Properties  []Property      `json:"properties,omitempty"`
}

// Validate aggregates schema-level failures.
func (a *Aspect) Validate() error {
	var errs []error
	if a.UUID == "" {
		errs = append(errs, fmt.Errorf("uuid: required"))
	} else if !shared.IsValidID(a.UUID) {
		errs = append(errs, fmt.Errorf("uuid: %q is not a valid identifier", a.UUID))
	}
	if a.Title == "" {
		errs = append(errs, fmt.Errorf("title: required"))
	}
	if err := a.Filters.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("filters: %v", err))
	}

	seen := map[string]struct{}{}
	for _, p := range a.Properties {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("properties: every property needs a name"))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("properties: duplicate name %q", p.Name))
		}
		seen[p.Name] = struct{}{}
		if !lo.Contains(propertyTypes, p.Type) {
			errs = append(errs, fmt.Errorf("properties.%s: unknown type %q", p.Name, p.Type))
		}
		if p.ValidationRegex != "" {
			if _, err := regexp.Compile(p.ValidationRegex); err != nil {
				errs = append(errs, fmt.Errorf("properties.%s: invalid validation regex: %v", p.Name, err))
			}
		}
		if len(p.ValidationFilters) > 0 && p.Type != PropertyUUID {
			errs = append(errs, fmt.Errorf("properties.%s: validation filters apply to uuid properties only", p.Name))
		}
	}

	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

// AppliesTo reports whether the aspect may attach to the candidate.
func (a *Aspect) AppliesTo(r filters.FieldResolver) (bool, error) {
	return a.Filters.IsSatisfiedBy(r)
}

// ReferenceResolver loads a referenced node for uuid-typed property
// validation. It returns the node as a resolvable candidate.
type ReferenceResolver func(uuid string) (filters.FieldResolver, error)

// ValidateProperties checks a node's property map against this
// aspect's schema. Required slots must be present, values must match
// their declared type, and declared validations must hold. The
// resolver may be nil when no uuid property declares filters.
func (a *Aspect) ValidateProperties(props map[string]interface{}, resolve ReferenceResolver) error {
	var errs []error
	for _, p := range a.Properties {
		key := p.FullName(a.UUID)
		value, present := props[key]
		if !present || value == nil {
			if p.Required {
				errs = append(errs, fmt.Errorf("%s: required property is missing", key))
			}
			continue
		}
		if err := p.checkValue(key, value, resolve); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.NewValidationErrors(errs...); err != nil {
		return err
	}
	return nil
}

func (p Property) checkValue(key string, value interface{}, resolve ReferenceResolver) error {
	switch p.Type {
	case PropertyString, PropertyUUID:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected a %s, got %T", key, p.Type, value)
		}
		if p.Type == PropertyUUID && !shared.IsValidID(s) {
			return fmt.Errorf("%s: %q is not a valid identifier", key, s)
		}
		if p.ValidationRegex != "" {
			re, err := regexp.Compile(p.ValidationRegex)
			if err != nil {
				return fmt.Errorf("%s: invalid validation regex: %v", key, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("%s: %q does not match %q", key, s, p.ValidationRegex)
			}
		}
		if p.Type == PropertyUUID && len(p.ValidationFilters) > 0 {
			if resolve == nil {
				return fmt.Errorf("%s: cannot verify node reference", key)
			}
			candidate, err := resolve(s)
			if err != nil {
				return fmt.Errorf("%s: referenced node %q not found", key, s)
			}
			ok, err := p.ValidationFilters.IsSatisfiedBy(candidate)
			if err != nil {
				return fmt.Errorf("%s: %v", key, err)
			}
			if !ok {
				return fmt.Errorf("%s: referenced node %q does not satisfy the aspect filters", key, s)
			}
		}

	case PropertyNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("%s: expected a number, got %T", key, value)
		}

	case PropertyBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected a boolean, got %T", key, value)
		}

	case PropertyArray:
		switch value.(type) {
		case []interface{}, []string:
		default:
			return fmt.Errorf("%s: expected an array, got %T", key, value)
		}

	case PropertyObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("%s: expected an object, got %T", key, value)
		}
	}

	if len(p.ValidationList) > 0 {
		allowed := lo.SomeBy(p.ValidationList, func(item interface{}) bool {
			return fmt.Sprint(item) == fmt.Sprint(value)
		})
		if !allowed {
			return fmt.Errorf("%s: %v is not one of the allowed values", key, value)
		}
	}
	return nil
}
