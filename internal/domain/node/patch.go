package node

import (
	"encoding/json"
	"fmt"
	"reflect"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/pkg/errors"
)

// Patch is a partial update keyed by wire attribute names. Values
// arrive JSON-decoded.
type Patch map[string]interface{}

// Identity and lifecycle fields never change after creation. They may
// appear in a patch only when echoing the current value back.
var immutableFields = map[string]struct{}{
	"uuid":        {},
	"fid":         {},
	"tenant":      {},
	"createdTime": {},
}

// Fields owned by dedicated operations rather than metadata updates.
var reservedFields = map[string]struct{}{
	"size":                   {},
	"modifiedTime":           {},
	"locked":                 {},
	"lockedBy":               {},
	"unlockAuthorizedGroups": {},
}

// Apply mutates the node in place and reports the attribute values
// before and after. Only attributes that actually changed appear in
// the result maps. A non-empty change set stamps modifiedTime.
func (p Patch) Apply(n *Node) (oldValues, newValues map[string]interface{}, err error) {
	oldValues = map[string]interface{}{}
	newValues = map[string]interface{}{}

	record := func(field string, before, after interface{}) {
		if reflect.DeepEqual(before, after) {
			return
		}
		oldValues[field] = before
		newValues[field] = after
	}

	for field, value := range p {
		if _, ok := immutableFields[field]; ok {
			current, _ := n.FieldValue(field)
			if !looseSame(current, value) {
				return nil, nil, errors.NewBadRequestError(fmt.Sprintf("field %q cannot be changed", field))
			}
			continue
		}
		if _, ok := reservedFields[field]; ok {
			return nil, nil, errors.NewBadRequestError(fmt.Sprintf("field %q is managed by the service and cannot be patched", field))
		}

		switch field {
		case "title":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Title, s)
			n.Title = s

		case "description":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Description, s)
			n.Description = s

		case "mimetype":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			if !IsValidMimetype(s) {
				return nil, nil, errors.NewBadRequestError(fmt.Sprintf("mimetype: %q is not an accepted mimetype", s))
			}
			if KindOf(s) != n.Kind() {
				return nil, nil, errors.NewBadRequestError(fmt.Sprintf("mimetype: cannot change a %s into a %s", n.Kind(), KindOf(s)))
			}
			record(field, n.Mimetype, s)
			n.Mimetype = s

		case "parent":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Parent, s)
			n.Parent = s

		case "owner":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Owner, s)
			n.Owner = s

		case "group":
			s, err := asPatchString(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Group, s)
			n.Group = s

		case "tags":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Tags, ss)
			n.Tags = ss

		case "aspects":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.Aspects, ss)
			n.Aspects = ss

		case "groupsAllowed":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.GroupsAllowed, ss)
			n.GroupsAllowed = ss

		case "onCreate":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.OnCreate, ss)
			n.OnCreate = ss

		case "onUpdate":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.OnUpdate, ss)
			n.OnUpdate = ss

		case "onDelete":
			ss, err := asPatchStrings(field, value)
			if err != nil {
				return nil, nil, err
			}
			record(field, n.OnDelete, ss)
			n.OnDelete = ss

		case "properties":
			m, ok := value.(map[string]interface{})
			if !ok && value != nil {
				return nil, nil, errors.NewBadRequestError("properties: expected an object")
			}
			record(field, n.Properties, m)
			n.Properties = m

		case "permissions":
			var perms *Permissions
			if value != nil {
				perms = &Permissions{}
				if err := decodeAs(value, perms); err != nil {
					return nil, nil, errors.NewBadRequestError(fmt.Sprintf("permissions: %v", err))
				}
				if err := perms.Validate(); err != nil {
					return nil, nil, err
				}
			}
			record(field, n.Permissions, perms)
			n.Permissions = perms

		case "filters":
			var fs filters.Filters
			if value != nil {
				if err := decodeAs(value, &fs); err != nil {
					return nil, nil, errors.NewBadRequestError(fmt.Sprintf("filters: %v", err))
				}
				if err := fs.Validate(); err != nil {
					return nil, nil, err
				}
			}
			record(field, n.Filters, fs)
			n.Filters = fs

		default:
			return nil, nil, errors.NewBadRequestError(fmt.Sprintf("unknown attribute %q", field))
		}
	}

	if len(newValues) > 0 {
		n.Touch()
	}
	return oldValues, newValues, nil
}

// looseSame compares a current field value against a raw patch value,
// tolerating the undefined-vs-empty distinction.
func looseSame(current, patched interface{}) bool {
	if current == nil {
		s, ok := patched.(string)
		return patched == nil || (ok && s == "")
	}
	return reflect.DeepEqual(current, patched)
}

func asPatchString(field string, v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewBadRequestError(fmt.Sprintf("%s: expected a string, got %T", field, v))
	}
	return s, nil
}

func asPatchStrings(field string, v interface{}) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, errors.NewBadRequestError(fmt.Sprintf("%s: expected strings, got %T", field, e))
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.NewBadRequestError(fmt.Sprintf("%s: expected a string list, got %T", field, v))
	}
}

// decodeAs converts a decoded JSON value into a typed target by
// round-tripping through the codec.
func decodeAs(v interface{}, target interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
