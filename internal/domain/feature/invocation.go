package feature

import (
	"strings"

	"antbox-backend/pkg/errors"
)

// Invocation is one parsed folder-hook entry. Hooks are stored as
// action-invocation strings of the form "<featureUuid> key=value ...".
type Invocation struct {
	FeatureUUID string
	Params      map[string]interface{}
}

// ParseInvocation splits a hook string into the target feature and its
// fixed parameters. Values stay strings; features coerce as needed.
func ParseInvocation(s string) (Invocation, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Invocation{}, errors.NewBadRequestError("empty action invocation")
	}

	inv := Invocation{
		FeatureUUID: fields[0],
		Params:      map[string]interface{}{},
	}
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found || key == "" {
			return Invocation{}, errors.NewBadRequestError(
				"malformed action invocation: expected key=value, got " + field)
		}
		inv.Params[key] = value
	}
	return inv, nil
}
