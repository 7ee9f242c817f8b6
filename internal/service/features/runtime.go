package features

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	gocache "github.com/patrickmn/go-cache"

	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
	"antbox-backend/internal/service/nodes"
	"antbox-backend/pkg/errors"

	"antbox-backend/internal/domain/filters"
)

// executionTimeout interrupts feature code that never returns.
const executionTimeout = 30 * time.Second

// RunContext is what feature code receives as its first argument. The
// node service proxy is bound to the authentication context, so the
// module cannot act as anyone else.
type RunContext struct {
	Auth    principal.AuthenticationContext
	Nodes   *nodes.Proxy
	Request map[string]interface{}
}

// Runtime materializes feature module source into executable units.
// Compiled programs are cached by (uuid, modifiedTime); replacing a
// feature naturally invalidates its cache entry.
type Runtime struct {
	programs *gocache.Cache
}

// NewRuntime creates the module runtime.
func NewRuntime() *Runtime {
	return &Runtime{programs: gocache.New(30*time.Minute, 10*time.Minute)}
}

// commonJS rewrites the ES default-export form into the CommonJS
// shape the embedded engine evaluates. Module authors may use either.
func commonJS(source string) string {
	return strings.Replace(source, "export default", "module.exports.default =", 1)
}

func wrapModule(source string) string {
	return "(function(module, exports) {\n" + commonJS(source) + "\n; return module.exports; })"
}

func (r *Runtime) compile(cacheKey, source string) (*goja.Program, error) {
	if cacheKey != "" {
		if cached, ok := r.programs.Get(cacheKey); ok {
			return cached.(*goja.Program), nil
		}
	}
	prog, err := goja.Compile("feature.js", wrapModule(source), true)
	if err != nil {
		return nil, errors.NewBadRequestError("module does not compile: " + err.Error())
	}
	if cacheKey != "" {
		r.programs.SetDefault(cacheKey, prog)
	}
	return prog, nil
}

// evaluate runs the module wrapper and returns its default export.
func (r *Runtime) evaluate(vm *goja.Runtime, cacheKey, source string) (*goja.Object, error) {
	prog, err := r.compile(cacheKey, source)
	if err != nil {
		return nil, err
	}

	wrapper, err := vm.RunProgram(prog)
	if err != nil {
		return nil, moduleError(err)
	}
	factory, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, errors.NewBadRequestError("module wrapper is not callable")
	}

	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	exported, err := factory(goja.Undefined(), moduleObj, exportsObj)
	if err != nil {
		return nil, moduleError(err)
	}

	obj := exported.ToObject(vm)
	if def := obj.Get("default"); def != nil && !goja.IsUndefined(def) && !goja.IsNull(def) {
		obj = def.ToObject(vm)
	}
	return obj, nil
}

// Parse evaluates module source and extracts the feature record its
// default export declares. The record keeps the source text so the
// module can be re-materialized and exported later.
func (r *Runtime) Parse(source string) (*feature.Feature, error) {
	vm := goja.New()
	obj, err := r.evaluate(vm, "", source)
	if err != nil {
		return nil, err
	}

	runFn := obj.Get("run")
	if runFn == nil || goja.IsUndefined(runFn) {
		return nil, errors.NewBadRequestError("module must export a run(ctx, args) function")
	}
	if _, ok := goja.AssertFunction(runFn); !ok {
		return nil, errors.NewBadRequestError("exported run is not a function")
	}

	exported, ok := obj.Export().(map[string]interface{})
	if !ok {
		return nil, errors.NewBadRequestError("module default export must be an object")
	}
	metadata := make(map[string]interface{}, len(exported))
	for k, v := range exported {
		if k == "run" {
			continue
		}
		metadata[k] = v
	}

	f := &feature.Feature{}
	if err := decodeArg(metadata, f); err != nil {
		return nil, errors.NewBadRequestError("module metadata: " + err.Error())
	}
	f.Module = source
	return f, nil
}

// Execute runs the module's run(ctx, args) and exports the result.
func (r *Runtime) Execute(ctx context.Context, f *feature.Feature, runCtx RunContext, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.NewUnknownError(fmt.Sprintf("feature %s panicked: %v", f.UUID, rec), nil)
		}
	}()

	vm := goja.New()
	cacheKey := f.UUID + "@" + f.ModifiedTime
	obj, err := r.evaluate(vm, cacheKey, f.Module)
	if err != nil {
		return nil, err
	}
	runFn, ok := goja.AssertFunction(obj.Get("run"))
	if !ok {
		return nil, errors.NewBadRequestError("module must export a run(ctx, args) function")
	}

	timer := time.AfterFunc(executionTimeout, func() {
		vm.Interrupt("execution timeout")
	})
	defer timer.Stop()

	ctxValue := vm.ToValue(runContextObject(ctx, runCtx))
	argsValue := vm.ToValue(args)

	value, err := runFn(goja.Undefined(), ctxValue, argsValue)
	if err != nil {
		return nil, moduleError(err)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// runContextObject shapes the RunContext for JS consumption. Node
// service methods surface as plain functions; errors thrown from them
// keep their taxonomy when they cross back.
func runContextObject(ctx context.Context, rc RunContext) map[string]interface{} {
	obj := map[string]interface{}{
		"authenticationContext": map[string]interface{}{
			"tenant": rc.Auth.Tenant,
			"principal": map[string]interface{}{
				"email":  rc.Auth.Principal.Email,
				"groups": rc.Auth.Principal.Groups,
			},
			"mode": string(rc.Auth.Mode),
		},
		"nodeService": nodeServiceObject(ctx, rc.Nodes),
	}
	if rc.Request != nil {
		obj["request"] = rc.Request
	}
	return obj
}

func nodeServiceObject(ctx context.Context, proxy *nodes.Proxy) map[string]interface{} {
	nodeMap := func(n *node.Node, err error) (map[string]interface{}, error) {
		if err != nil {
			return nil, err
		}
		return n.Map(), nil
	}
	nodeMaps := func(ns []*node.Node, err error) ([]map[string]interface{}, error) {
		if err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, len(ns))
		for i, n := range ns {
			out[i] = n.Map()
		}
		return out, nil
	}

	return map[string]interface{}{
		"get": func(id string) (map[string]interface{}, error) {
			return nodeMap(proxy.Get(ctx, id))
		},
		"list": func(parent ...string) ([]map[string]interface{}, error) {
			p := ""
			if len(parent) > 0 {
				p = parent[0]
			}
			return nodeMaps(proxy.List(ctx, p))
		},
		"find": func(rawFilters interface{}, pageSize, pageToken int) (map[string]interface{}, error) {
			var f filters.Filters
			if rawFilters != nil {
				if err := decodeArg(rawFilters, &f); err != nil {
					return nil, errors.NewBadRequestError("filters: " + err.Error())
				}
			}
			page, err := proxy.Find(ctx, f, repository.NewPageRequest(pageSize, pageToken))
			if err != nil {
				return nil, err
			}
			items := make([]map[string]interface{}, len(page.Items))
			for i, n := range page.Items {
				items[i] = n.Map()
			}
			return map[string]interface{}{
				"nodes":         items,
				"nextPageToken": page.NextPageToken,
				"total":         page.Total,
			}, nil
		},
		"create": func(raw map[string]interface{}) (map[string]interface{}, error) {
			var md node.Metadata
			if err := decodeArg(raw, &md); err != nil {
				return nil, errors.NewBadRequestError("metadata: " + err.Error())
			}
			return nodeMap(proxy.Create(ctx, md))
		},
		"createFile": func(content string, raw map[string]interface{}) (map[string]interface{}, error) {
			var md node.Metadata
			if err := decodeArg(raw, &md); err != nil {
				return nil, errors.NewBadRequestError("metadata: " + err.Error())
			}
			return nodeMap(proxy.CreateFile(ctx, []byte(content), md))
		},
		"update": func(id string, patch map[string]interface{}) (map[string]interface{}, error) {
			return nodeMap(proxy.Update(ctx, id, node.Patch(patch)))
		},
		"updateFile": func(id, content string) (map[string]interface{}, error) {
			return nodeMap(proxy.UpdateFile(ctx, id, []byte(content)))
		},
		"delete": func(id string) error {
			return proxy.Delete(ctx, id)
		},
		"copy": func(id, parent string) (map[string]interface{}, error) {
			return nodeMap(proxy.Copy(ctx, id, parent))
		},
		"duplicate": func(id string) (map[string]interface{}, error) {
			return nodeMap(proxy.Duplicate(ctx, id))
		},
		"export": func(id string) (map[string]interface{}, error) {
			content, info, err := proxy.Export(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"content": string(content),
				"name":    info.Name,
				"type":    info.Type,
			}, nil
		},
		"breadcrumbs": func(id string) ([]nodes.Breadcrumb, error) {
			return proxy.Breadcrumbs(ctx, id)
		},
		"evaluate": func(id string) ([]map[string]interface{}, error) {
			return nodeMaps(proxy.Evaluate(ctx, id))
		},
		"lock": func(id string, groups ...string) (map[string]interface{}, error) {
			return nodeMap(proxy.Lock(ctx, id, groups))
		},
		"unlock": func(id string) (map[string]interface{}, error) {
			return nodeMap(proxy.Unlock(ctx, id))
		},
	}
}

// moduleError maps a failure escaping the engine into the taxonomy.
// Errors thrown by proxied Go calls keep their codes; JS values with
// a string code keep theirs; everything else is Unknown.
func moduleError(err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		return errors.NewUnknownError("feature execution interrupted", err)
	}

	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		exported := ex.Value().Export()
		if thrown, ok := exported.(error); ok {
			if appErr := errors.GetAppError(thrown); appErr != nil {
				return appErr
			}
		}
		if m, ok := exported.(map[string]interface{}); ok {
			// Errors raised by proxied Go calls surface as GoError
			// objects carrying the original error under "value".
			if thrown, ok := m["value"].(error); ok {
				if appErr := errors.GetAppError(thrown); appErr != nil {
					return appErr
				}
			}
			if code, ok := m["code"].(string); ok {
				message, _ := m["message"].(string)
				if message == "" {
					message = "feature raised " + code
				}
				return errors.NewBadRequestError(message).WithCode(code)
			}
		}
		return errors.NewUnknownError("feature raised: "+ex.Value().String(), err)
	}

	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}
	return errors.NewUnknownError("feature execution failed", err)
}

// decodeArg converts a loosely typed engine value into a typed target
// by round-tripping through the codec.
func decodeArg(v interface{}, target interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
