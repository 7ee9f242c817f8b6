package filters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/pkg/errors"
)

func resolver(fields map[string]interface{}) MapResolver {
	return MapResolver(fields)
}

func TestFilterJSON(t *testing.T) {
	t.Run("triple round trip", func(t *testing.T) {
		f := NewFilter("mimetype", OpEqual, "text/plain")
		raw, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `["mimetype","==","text/plain"]`, string(raw))

		var back Filter
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, f.Field, back.Field)
		assert.Equal(t, f.Operator, back.Operator)
		assert.Equal(t, "text/plain", back.Value)
	})

	t.Run("rejects short arrays", func(t *testing.T) {
		var f Filter
		err := json.Unmarshal([]byte(`["mimetype","=="]`), &f)
		assert.Error(t, err)
	})

	t.Run("flat list decodes as one conjunctive group", func(t *testing.T) {
		var fs Filters
		raw := `[["mimetype","==","text/plain"],["size",">",100]]`
		require.NoError(t, json.Unmarshal([]byte(raw), &fs))
		require.Len(t, fs, 1)
		assert.Len(t, fs[0], 2)
	})

	t.Run("nested list decodes as disjunction", func(t *testing.T) {
		var fs Filters
		raw := `[[["mimetype","==","text/plain"]],[["mimetype","==","text/html"]]]`
		require.NoError(t, json.Unmarshal([]byte(raw), &fs))
		require.Len(t, fs, 2)
		assert.Len(t, fs[0], 1)
		assert.Len(t, fs[1], 1)
	})

	t.Run("empty list decodes empty", func(t *testing.T) {
		var fs Filters
		require.NoError(t, json.Unmarshal([]byte(`[]`), &fs))
		assert.True(t, fs.IsEmpty())
	})

	t.Run("single group marshals flat", func(t *testing.T) {
		fs := NewFilters(NewFilter("size", OpGreater, 100))
		raw, err := json.Marshal(fs)
		require.NoError(t, err)
		assert.JSONEq(t, `[["size",">",100]]`, string(raw))
	})

	t.Run("multiple groups marshal nested", func(t *testing.T) {
		fs := Filters{
			Group{NewFilter("a", OpEqual, 1)},
			Group{NewFilter("b", OpEqual, 2)},
		}
		raw, err := json.Marshal(fs)
		require.NoError(t, err)

		var back Filters
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Len(t, back, 2)
	})
}

func TestFilterValidate(t *testing.T) {
	t.Run("accepts known operators", func(t *testing.T) {
		fs := NewFilters(
			NewFilter("mimetype", OpEqual, "text/plain"),
			NewFilter("tags", OpContainsAny, []string{"a"}),
		)
		assert.NoError(t, fs.Validate())
	})

	t.Run("rejects unknown operator and empty field", func(t *testing.T) {
		fs := NewFilters(
			NewFilter("", OpEqual, 1),
			NewFilter("x", Operator("=~"), 1),
		)
		err := fs.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestEqualityOperators(t *testing.T) {
	r := resolver(map[string]interface{}{
		"mimetype": "text/plain",
		"size":     int64(5),
		"locked":   false,
	})

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"string equal", NewFilter("mimetype", OpEqual, "text/plain"), true},
		{"string not equal mismatch", NewFilter("mimetype", OpEqual, "text/html"), false},
		{"numeric equal across widths", NewFilter("size", OpEqual, 5), true},
		{"numeric equal wire float", NewFilter("size", OpEqual, float64(5)), true},
		{"bool equal", NewFilter("locked", OpEqual, false), true},
		{"not equal true", NewFilter("mimetype", OpNotEqual, "text/html"), true},
		{"not equal false", NewFilter("mimetype", OpNotEqual, "text/plain"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.filter.IsSatisfiedBy(r)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOrderedOperators(t *testing.T) {
	r := resolver(map[string]interface{}{
		"size":  int64(10),
		"title": "beta",
	})

	t.Run("numeric comparisons", func(t *testing.T) {
		for _, tc := range []struct {
			op   Operator
			val  interface{}
			want bool
		}{
			{OpLess, 11, true},
			{OpLess, 10, false},
			{OpLessOrEqual, 10, true},
			{OpGreater, 9, true},
			{OpGreaterOrEqual, 11, false},
		} {
			got, err := NewFilter("size", tc.op, tc.val).IsSatisfiedBy(r)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "size %s %v", tc.op, tc.val)
		}
	})

	t.Run("string comparisons are lexicographic", func(t *testing.T) {
		got, err := NewFilter("title", OpLess, "gamma").IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)

		got, err = NewFilter("title", OpGreater, "gamma").IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("mismatched operand types fail", func(t *testing.T) {
		_, err := NewFilter("size", OpLess, "ten").IsSatisfiedBy(r)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))

		_, err = NewFilter("title", OpLess, 3).IsSatisfiedBy(r)
		assert.Error(t, err)
	})

	t.Run("unordered field type fails", func(t *testing.T) {
		rb := resolver(map[string]interface{}{"locked": true})
		_, err := NewFilter("locked", OpLess, 1).IsSatisfiedBy(rb)
		assert.Error(t, err)
	})
}

func TestStringOperators(t *testing.T) {
	r := resolver(map[string]interface{}{"title": "Quarterly Report"})

	t.Run("like is case-insensitive substring", func(t *testing.T) {
		got, err := NewFilter("title", OpLike, "quarterly").IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)

		got, err = NewFilter("title", OpLike, "annual").IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("match is anchor-free regex", func(t *testing.T) {
		got, err := NewFilter("title", OpMatch, `Report$`).IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)

		got, err = NewFilter("title", OpMatch, `^Annual`).IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("invalid pattern fails", func(t *testing.T) {
		_, err := NewFilter("title", OpMatch, `([`).IsSatisfiedBy(r)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	})
}

func TestSetOperators(t *testing.T) {
	r := resolver(map[string]interface{}{
		"mimetype": "text/plain",
		"tags":     []string{"finance", "q3"},
	})

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"in hit", NewFilter("mimetype", OpIn, []string{"text/plain", "text/html"}), true},
		{"in miss", NewFilter("mimetype", OpIn, []string{"image/png"}), false},
		{"not-in", NewFilter("mimetype", OpNotIn, []string{"image/png"}), true},
		{"contains hit", NewFilter("tags", OpContains, "finance"), true},
		{"contains miss", NewFilter("tags", OpContains, "hr"), false},
		{"not-contains", NewFilter("tags", OpNotContains, "hr"), true},
		{"contains-all hit", NewFilter("tags", OpContainsAll, []string{"finance", "q3"}), true},
		{"contains-all miss", NewFilter("tags", OpContainsAll, []string{"finance", "q4"}), false},
		{"contains-any hit", NewFilter("tags", OpContainsAny, []string{"q4", "q3"}), true},
		{"contains-any miss", NewFilter("tags", OpContainsAny, []string{"q4", "q5"}), false},
		{"contains-none hit", NewFilter("tags", OpContainsNone, []string{"q4"}), true},
		{"contains-none miss", NewFilter("tags", OpContainsNone, []string{"q3"}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.filter.IsSatisfiedBy(r)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("in requires a set value", func(t *testing.T) {
		_, err := NewFilter("mimetype", OpIn, "text/plain").IsSatisfiedBy(r)
		assert.Error(t, err)
	})

	t.Run("contains requires a sequence field", func(t *testing.T) {
		_, err := NewFilter("mimetype", OpContains, "text").IsSatisfiedBy(r)
		assert.Error(t, err)
	})
}

func TestUndefinedFieldSemantics(t *testing.T) {
	r := resolver(map[string]interface{}{})

	trueOps := []Filter{
		NewFilter("ghost", OpNotEqual, "x"),
		NewFilter("ghost", OpNotIn, []string{"x"}),
		NewFilter("ghost", OpNotContains, "x"),
		NewFilter("ghost", OpContainsNone, []string{"x"}),
	}
	for _, f := range trueOps {
		got, err := f.IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got, "operator %s on undefined field", f.Operator)
	}

	falseOps := []Filter{
		NewFilter("ghost", OpEqual, "x"),
		NewFilter("ghost", OpLess, 1),
		NewFilter("ghost", OpLike, "x"),
		NewFilter("ghost", OpMatch, "x"),
		NewFilter("ghost", OpIn, []string{"x"}),
		NewFilter("ghost", OpContains, "x"),
		NewFilter("ghost", OpContainsAll, []string{"x"}),
		NewFilter("ghost", OpContainsAny, []string{"x"}),
	}
	for _, f := range falseOps {
		got, err := f.IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got, "operator %s on undefined field", f.Operator)
	}
}

func TestPropertiesFallback(t *testing.T) {
	r := resolver(map[string]interface{}{
		"title": "invoice",
		"properties": map[string]interface{}{
			"invoice:number": float64(42),
		},
	})

	got, err := NewFilter("invoice:number", OpEqual, 42).IsSatisfiedBy(r)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = NewFilter("title", OpEqual, "invoice").IsSatisfiedBy(r)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompoundEvaluation(t *testing.T) {
	r := resolver(map[string]interface{}{
		"mimetype": "text/plain",
		"size":     float64(5),
	})

	t.Run("empty set matches anything", func(t *testing.T) {
		got, err := Filters{}.IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)

		got, err = NewFilters().IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("group is conjunctive", func(t *testing.T) {
		fs := NewFilters(
			NewFilter("mimetype", OpEqual, "text/plain"),
			NewFilter("size", OpGreater, 10),
		)
		got, err := fs.IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("one satisfied group is enough", func(t *testing.T) {
		fs := Filters{
			Group{NewFilter("mimetype", OpEqual, "text/html")},
			Group{NewFilter("size", OpLess, 10)},
		}
		got, err := fs.IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("errors propagate", func(t *testing.T) {
		fs := NewFilters(NewFilter("size", OpLess, "five"))
		_, err := fs.IsSatisfiedBy(r)
		assert.Error(t, err)
	})
}

func TestSpecificationCombinators(t *testing.T) {
	r := resolver(map[string]interface{}{"mimetype": "text/plain", "size": float64(5)})

	isText := FromFilters(NewFilters(NewFilter("mimetype", OpEqual, "text/plain")))
	isBig := FromFilters(NewFilters(NewFilter("size", OpGreater, 100)))

	t.Run("and", func(t *testing.T) {
		got, err := isText.And(isBig).IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("or", func(t *testing.T) {
		got, err := isText.Or(isBig).IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("not", func(t *testing.T) {
		got, err := isBig.Not().IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("double negation cancels", func(t *testing.T) {
		got, err := isText.Not().Not().IsSatisfiedBy(r)
		require.NoError(t, err)
		assert.True(t, got)
	})
}
