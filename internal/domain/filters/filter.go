// Package filters implements the predicate engine used by smart
// folders, repository queries, aspect targeting, and feature
// targeting. A filter is a [field, operator, value] triple; triples
// compose conjunctively inside a group and groups compose
// disjunctively.
package filters

import (
	"bytes"
	"encoding/json"
	"fmt"

	"antbox-backend/pkg/errors"
)

// Operator is the comparison verb of a filter triple.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLike           Operator = "~="
	OpIn             Operator = "in"
	OpNotIn          Operator = "not-in"
	OpMatch          Operator = "match"
	OpContains       Operator = "contains"
	OpContainsAll    Operator = "contains-all"
	OpContainsAny    Operator = "contains-any"
	OpNotContains    Operator = "not-contains"
	OpContainsNone   Operator = "contains-none"
)

var validOperators = map[Operator]struct{}{
	OpEqual: {}, OpNotEqual: {},
	OpLess: {}, OpLessOrEqual: {}, OpGreater: {}, OpGreaterOrEqual: {},
	OpLike: {}, OpMatch: {},
	OpIn: {}, OpNotIn: {},
	OpContains: {}, OpContainsAll: {}, OpContainsAny: {},
	OpNotContains: {}, OpContainsNone: {},
}

// Valid reports whether the operator is part of the closed set.
func (o Operator) Valid() bool {
	_, ok := validOperators[o]
	return ok
}

// Filter is a single [field, operator, value] predicate triple.
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// NewFilter builds a predicate triple.
func NewFilter(field string, op Operator, value interface{}) Filter {
	return Filter{Field: field, Operator: op, Value: value}
}

// MarshalJSON encodes the filter in its wire form, a 3-element array.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{f.Field, f.Operator, f.Value})
}

// UnmarshalJSON decodes a [field, operator, value] array.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("filter must be a [field, operator, value] triple, got %d elements", len(triple))
	}
	if err := json.Unmarshal(triple[0], &f.Field); err != nil {
		return fmt.Errorf("filter field: %w", err)
	}
	var op string
	if err := json.Unmarshal(triple[1], &op); err != nil {
		return fmt.Errorf("filter operator: %w", err)
	}
	f.Operator = Operator(op)
	if err := json.Unmarshal(triple[2], &f.Value); err != nil {
		return fmt.Errorf("filter value: %w", err)
	}
	return nil
}

// Group is a conjunctive filter list: a candidate satisfies the group
// when every triple matches. The empty group matches everything.
type Group []Filter

// Filters is a disjunction of conjunctive groups. A candidate
// satisfies the set when at least one group fully matches. The empty
// set matches every candidate.
type Filters []Group

// NewFilters wraps a flat conjunctive list in the canonical nested form.
func NewFilters(fs ...Filter) Filters {
	return Filters{Group(fs)}
}

// MarshalJSON preserves the flat wire shape for a single group and the
// nested shape otherwise.
func (fs Filters) MarshalJSON() ([]byte, error) {
	if len(fs) == 0 {
		return []byte("[]"), nil
	}
	if len(fs) == 1 {
		return json.Marshal(fs[0])
	}
	return json.Marshal([]Group(fs))
}

// UnmarshalJSON accepts both wire shapes: a flat list of triples
// (conjunctive) and a list of lists of triples (disjunctive normal
// form). The flat shape is detected by probing whether the first
// element of the first entry is a field name or a nested triple.
func (fs *Filters) UnmarshalJSON(data []byte) error {
	var outer []json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return err
	}
	if len(outer) == 0 {
		*fs = Filters{}
		return nil
	}

	var probe []json.RawMessage
	if err := json.Unmarshal(outer[0], &probe); err != nil {
		return fmt.Errorf("filter entry must be an array: %w", err)
	}
	flat := false
	if len(probe) > 0 {
		head := bytes.TrimSpace(probe[0])
		flat = len(head) > 0 && head[0] == '"'
	}

	if flat {
		var group Group
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}
		*fs = Filters{group}
		return nil
	}

	var groups []Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return err
	}
	*fs = Filters(groups)
	return nil
}

// Validate checks that every triple names a field and uses a known
// operator. Failures aggregate into a single validation error.
func (fs Filters) Validate() error {
	var errs []error
	for _, group := range fs {
		for _, f := range group {
			if f.Field == "" {
				errs = append(errs, fmt.Errorf("filter [%v, %v]: field is required", f.Operator, f.Value))
			}
			if !f.Operator.Valid() {
				errs = append(errs, fmt.Errorf("filter %q: unknown operator %q", f.Field, f.Operator))
			}
		}
	}
	if len(errs) > 0 {
		return errors.NewValidationErrors(errs...)
	}
	return nil
}

// IsEmpty reports whether the set holds no triples at all.
func (fs Filters) IsEmpty() bool {
	for _, group := range fs {
		if len(group) > 0 {
			return false
		}
	}
	return true
}

// Clone copies the groups and triples. Filter values are shared; they are
// treated as immutable once parsed.
func (fs Filters) Clone() Filters {
	if fs == nil {
		return nil
	}
	out := make(Filters, len(fs))
	for i, group := range fs {
		out[i] = append(Group(nil), group...)
	}
	return out
}
