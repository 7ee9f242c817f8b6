package filters

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"antbox-backend/pkg/errors"
)

// FieldResolver supplies candidate field values during evaluation.
// Implementations resolve named top-level attributes first and fall
// back to dynamic properties.
type FieldResolver interface {
	FieldValue(field string) (interface{}, bool)
}

// MapResolver adapts a raw payload map to field resolution, with the
// same properties fallback nodes use.
type MapResolver map[string]interface{}

// FieldValue implements FieldResolver.
func (m MapResolver) FieldValue(field string) (interface{}, bool) {
	if v, ok := m[field]; ok {
		return v, true
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		if v, ok := props[field]; ok {
			return v, true
		}
	}
	return nil, false
}

// IsSatisfiedBy evaluates the disjunction against one candidate. An
// empty set matches everything.
func (fs Filters) IsSatisfiedBy(r FieldResolver) (bool, error) {
	if fs.IsEmpty() {
		return true, nil
	}
	for _, group := range fs {
		ok, err := group.IsSatisfiedBy(r)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsSatisfiedBy evaluates the conjunctive group.
func (g Group) IsSatisfiedBy(r FieldResolver) (bool, error) {
	for _, f := range g {
		ok, err := f.IsSatisfiedBy(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// IsSatisfiedBy evaluates a single triple. Absent fields match only
// the negated operators.
func (f Filter) IsSatisfiedBy(r FieldResolver) (bool, error) {
	value, defined := r.FieldValue(f.Field)
	if !defined || value == nil {
		switch f.Operator {
		case OpNotEqual, OpNotIn, OpNotContains, OpContainsNone:
			return true, nil
		default:
			return false, nil
		}
	}

	switch f.Operator {
	case OpEqual:
		return looseEqual(value, f.Value), nil

	case OpNotEqual:
		return !looseEqual(value, f.Value), nil

	case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return f.compareOrdered(value)

	case OpLike:
		return f.substringMatch(value)

	case OpMatch:
		return f.regexMatch(value)

	case OpIn:
		set, ok := asSlice(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a set value")
		}
		return containsValue(set, value), nil

	case OpNotIn:
		set, ok := asSlice(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a set value")
		}
		return !containsValue(set, value), nil

	case OpContains:
		seq, ok := asSlice(value)
		if !ok {
			return false, f.typeError(value, "a sequence field")
		}
		return containsValue(seq, f.Value), nil

	case OpNotContains:
		seq, ok := asSlice(value)
		if !ok {
			return false, f.typeError(value, "a sequence field")
		}
		return !containsValue(seq, f.Value), nil

	case OpContainsAll:
		seq, ok := asSlice(value)
		if !ok {
			return false, f.typeError(value, "a sequence field")
		}
		want, ok := asSlice(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a set value")
		}
		return lo.EveryBy(want, func(w interface{}) bool {
			return containsValue(seq, w)
		}), nil

	case OpContainsAny:
		seq, ok := asSlice(value)
		if !ok {
			return false, f.typeError(value, "a sequence field")
		}
		want, ok := asSlice(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a set value")
		}
		return lo.SomeBy(want, func(w interface{}) bool {
			return containsValue(seq, w)
		}), nil

	case OpContainsNone:
		seq, ok := asSlice(value)
		if !ok {
			return false, f.typeError(value, "a sequence field")
		}
		want, ok := asSlice(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a set value")
		}
		return !lo.SomeBy(want, func(w interface{}) bool {
			return containsValue(seq, w)
		}), nil

	default:
		return false, errors.NewBadRequestError(fmt.Sprintf("unknown filter operator: %q", f.Operator))
	}
}

// compareOrdered handles <, <=, >, >= for numbers and strings.
func (f Filter) compareOrdered(value interface{}) (bool, error) {
	if a, ok := asFloat(value); ok {
		b, ok := asFloat(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a numeric value")
		}
		switch f.Operator {
		case OpLess:
			return a < b, nil
		case OpLessOrEqual:
			return a <= b, nil
		case OpGreater:
			return a > b, nil
		default:
			return a >= b, nil
		}
	}

	if a, ok := asString(value); ok {
		b, ok := asString(f.Value)
		if !ok {
			return false, f.typeError(f.Value, "a string value")
		}
		switch f.Operator {
		case OpLess:
			return a < b, nil
		case OpLessOrEqual:
			return a <= b, nil
		case OpGreater:
			return a > b, nil
		default:
			return a >= b, nil
		}
	}

	return false, f.typeError(value, "an ordered field")
}

// substringMatch implements the case-insensitive "~=" operator.
func (f Filter) substringMatch(value interface{}) (bool, error) {
	s, ok := asString(value)
	if !ok {
		return false, f.typeError(value, "a string field")
	}
	sub, ok := asString(f.Value)
	if !ok {
		return false, f.typeError(f.Value, "a string value")
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
}

// regexMatch implements the anchor-free "match" operator.
func (f Filter) regexMatch(value interface{}) (bool, error) {
	s, ok := asString(value)
	if !ok {
		return false, f.typeError(value, "a string field")
	}
	pattern, ok := asString(f.Value)
	if !ok {
		return false, f.typeError(f.Value, "a pattern string")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, errors.NewBadRequestError(fmt.Sprintf("filter %q: invalid pattern %q", f.Field, pattern))
	}
	return re.MatchString(s), nil
}

// typeError reports an operator applied to an incompatible value.
func (f Filter) typeError(got interface{}, want string) error {
	return errors.NewBadRequestError(fmt.Sprintf("filter %q: operator %q requires %s, got %T", f.Field, f.Operator, want, got))
}

// looseEqual compares after normalization so wire-decoded values and
// in-memory values agree on numeric width and sequence type.
func looseEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func containsValue(seq []interface{}, v interface{}) bool {
	nv := normalize(v)
	return lo.SomeBy(seq, func(item interface{}) bool {
		return reflect.DeepEqual(item, nv)
	})
}

// normalize maps every numeric type to float64 and every sequence to
// []interface{} of normalized elements.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

func asFloat(v interface{}) (float64, bool) {
	f, ok := normalize(v).(float64)
	return f, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := normalize(v).([]interface{})
	return s, ok
}
