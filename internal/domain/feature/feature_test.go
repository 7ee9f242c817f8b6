package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/pkg/errors"
)

func action() *Feature {
	return &Feature{
		UUID:         "copy-to-archive",
		Title:        "Copy to archive",
		ExposeAction: true,
		RunManually:  true,
		Parameters: []Parameter{
			{Name: UUIDsParameter, Type: ParamArray, ArrayType: "string", Required: true},
			{Name: "target", Type: ParamString, DefaultValue: "archive"},
		},
	}
}

func TestFeatureValidate(t *testing.T) {
	t.Run("valid action", func(t *testing.T) {
		assert.NoError(t, action().Validate())
	})

	t.Run("action without uuids parameter", func(t *testing.T) {
		f := action()
		f.Parameters = f.Parameters[1:]
		err := f.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("action uuids must be a required string array", func(t *testing.T) {
		f := action()
		f.Parameters[0].Required = false
		assert.Error(t, f.Validate())

		f = action()
		f.Parameters[0].Type = ParamString
		assert.Error(t, f.Validate())

		f = action()
		f.Parameters[0].ArrayType = "number"
		assert.Error(t, f.Validate())
	})

	t.Run("action may not declare file parameters", func(t *testing.T) {
		f := action()
		f.Parameters = append(f.Parameters, Parameter{Name: "attachment", Type: ParamFile})
		assert.Error(t, f.Validate())
	})

	t.Run("extension may declare file parameters", func(t *testing.T) {
		f := &Feature{
			UUID:            "thumbnailer",
			Title:           "Thumbnailer",
			ExposeExtension: true,
			ReturnType:      ReturnFile,
			Parameters: []Parameter{
				{Name: "image", Type: ParamFile, Required: true},
			},
		}
		assert.NoError(t, f.Validate())
	})

	t.Run("empty parameters is always valid", func(t *testing.T) {
		f := &Feature{UUID: "housekeeping", Title: "Housekeeping", ExposeExtension: true}
		assert.NoError(t, f.Validate())
	})

	t.Run("rejects bad metadata", func(t *testing.T) {
		f := &Feature{
			UUID:       "x",
			ReturnType: ReturnType("blob"),
			Filters:    filters.NewFilters(filters.NewFilter("", filters.OpEqual, 1)),
			Parameters: []Parameter{
				{Name: "a", Type: ParameterType("thing")},
				{Name: "a", Type: ParamString},
				{Name: "b", Type: ParamString, ArrayType: "string"},
			},
		}
		err := f.Validate()
		require.Error(t, err)
		msgs := errors.GetAppError(err).Details["errors"].([]string)
		assert.GreaterOrEqual(t, len(msgs), 6)
	})
}

func TestValidateArgs(t *testing.T) {
	f := action()

	t.Run("all required present", func(t *testing.T) {
		err := f.ValidateArgs(map[string]interface{}{UUIDsParameter: []string{"n1"}})
		assert.NoError(t, err)
	})

	t.Run("missing required parameter", func(t *testing.T) {
		err := f.ValidateArgs(map[string]interface{}{})
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("nil counts as missing", func(t *testing.T) {
		err := f.ValidateArgs(map[string]interface{}{UUIDsParameter: nil})
		assert.Error(t, err)
	})
}

func TestApplyDefaults(t *testing.T) {
	f := action()

	merged := f.ApplyDefaults(map[string]interface{}{UUIDsParameter: []string{"n1"}})
	assert.Equal(t, "archive", merged["target"])
	assert.Equal(t, []string{"n1"}, merged[UUIDsParameter])

	merged = f.ApplyDefaults(map[string]interface{}{"target": "vault"})
	assert.Equal(t, "vault", merged["target"], "explicit values win over defaults")
}

func TestRunsOn(t *testing.T) {
	f := &Feature{RunOnCreates: true, RunOnDeletes: true}
	assert.True(t, f.RunsOn("NodeCreated"))
	assert.False(t, f.RunsOn("NodeUpdated"))
	assert.True(t, f.RunsOn("NodeDeleted"))
	assert.False(t, f.RunsOn("SomethingElse"))
}

func TestParseInvocation(t *testing.T) {
	t.Run("uuid only", func(t *testing.T) {
		inv, err := ParseInvocation("tracker")
		require.NoError(t, err)
		assert.Equal(t, "tracker", inv.FeatureUUID)
		assert.Empty(t, inv.Params)
	})

	t.Run("uuid with parameters", func(t *testing.T) {
		inv, err := ParseInvocation("tracker workflow=approval priority=high")
		require.NoError(t, err)
		assert.Equal(t, "tracker", inv.FeatureUUID)
		assert.Equal(t, "approval", inv.Params["workflow"])
		assert.Equal(t, "high", inv.Params["priority"])
	})

	t.Run("value may contain equals", func(t *testing.T) {
		inv, err := ParseInvocation("tracker formula=a=b")
		require.NoError(t, err)
		assert.Equal(t, "a=b", inv.Params["formula"])
	})

	t.Run("empty string fails", func(t *testing.T) {
		_, err := ParseInvocation("   ")
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	})

	t.Run("malformed parameter fails", func(t *testing.T) {
		_, err := ParseInvocation("tracker notkeyvalue")
		assert.Error(t, err)
	})
}
