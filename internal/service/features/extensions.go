package features

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/pkg/errors"
)

// ExtensionResult is the transport-ready outcome of an extension run,
// shaped by the feature's declared return type.
type ExtensionResult struct {
	ContentType string
	Filename    string
	Body        []byte
}

// RunExtension invokes a feature through the HTTP extension channel.
// Parameters come from the query string, a JSON body or a form body,
// depending on the request; the result is shaped for the wire.
func (s *Service) RunExtension(ctx context.Context, auth principal.AuthenticationContext, uuid string, r *http.Request) (*ExtensionResult, error) {
	f, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if !f.ExposeExtension {
		return nil, errors.NewForbiddenError("feature is not exposed as an extension")
	}

	args, err := extractArgs(f, r)
	if err != nil {
		return nil, err
	}

	request := map[string]interface{}{
		"method":  r.Method,
		"path":    r.URL.Path,
		"headers": flattenHeaders(r.Header),
	}

	result, err := s.run(ctx, auth, f, args, channelExtension, request)
	if err != nil {
		return nil, err
	}
	return shapeResult(f, result)
}

// extractArgs pulls declared parameters out of the request. GET reads
// the query string; POST reads a JSON object or form fields. Values
// are coerced to the declared parameter types where the source is
// stringly typed.
func extractArgs(f *feature.Feature, r *http.Request) (map[string]interface{}, error) {
	args := map[string]interface{}{}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case r.Method == http.MethodGet || contentType == "":
		for _, p := range f.Parameters {
			if v := r.URL.Query().Get(p.Name); v != "" {
				coerced, err := coerceParam(p, v)
				if err != nil {
					return nil, err
				}
				args[p.Name] = coerced
			}
		}
	case contentType == "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.NewBadRequestError("cannot read request body")
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &args); err != nil {
				return nil, errors.NewBadRequestError("request body is not a JSON object")
			}
		}
	case contentType == "application/x-www-form-urlencoded" || strings.HasPrefix(contentType, "multipart/"):
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if err := r.ParseForm(); err != nil {
				return nil, errors.NewBadRequestError("cannot parse form body")
			}
		}
		for _, p := range f.Parameters {
			if v := r.FormValue(p.Name); v != "" {
				coerced, err := coerceParam(p, v)
				if err != nil {
					return nil, err
				}
				args[p.Name] = coerced
			}
		}
	default:
		return nil, errors.NewBadRequestError("unsupported content type: " + contentType)
	}

	return args, nil
}

func coerceParam(p feature.Parameter, raw string) (interface{}, error) {
	switch p.Type {
	case feature.ParamNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("parameter %q is not a number", p.Name))
		}
		return n, nil
	case feature.ParamBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("parameter %q is not a boolean", p.Name))
		}
		return b, nil
	case feature.ParamArray, feature.ParamObject:
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("parameter %q is not valid JSON", p.Name))
		}
		return v, nil
	default:
		return raw, nil
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// shapeResult turns a module's return value into wire bytes following
// the declared return type: files become attachments, structured
// values become JSON, void becomes a plain acknowledgement.
func shapeResult(f *feature.Feature, result interface{}) (*ExtensionResult, error) {
	switch f.ReturnType {
	case feature.ReturnVoid:
		return &ExtensionResult{ContentType: "text/plain", Body: []byte("OK")}, nil

	case feature.ReturnFile:
		m, ok := result.(map[string]interface{})
		if !ok {
			return nil, errors.NewUnknownError("feature declared a file result but returned none", nil)
		}
		content, _ := m["content"].(string)
		name, _ := m["name"].(string)
		contentType, _ := m["type"].(string)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &ExtensionResult{ContentType: contentType, Filename: name, Body: []byte(content)}, nil

	case feature.ReturnObject, feature.ReturnArray:
		body, err := json.Marshal(result)
		if err != nil {
			return nil, errors.NewUnknownError("feature result is not serializable", err)
		}
		return &ExtensionResult{ContentType: "application/json", Body: body}, nil

	default:
		contentType := f.ReturnContentType
		if contentType == "" {
			contentType = "text/plain"
		}
		return &ExtensionResult{ContentType: contentType, Body: []byte(fmt.Sprintf("%v", result))}, nil
	}
}
