package features

import (
	"context"
	"strings"

	"antbox-backend/internal/domain/feature"
	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/principal"
	"antbox-backend/internal/repository"
	"antbox-backend/internal/service/nodes"
	"antbox-backend/pkg/errors"
)

// builtinToolPrefix marks tools backed directly by the node service
// instead of a stored module.
const builtinToolPrefix = "NodeService:"

// OCRModel extracts text from stored file content. The OcrModel:ocr
// tool routes here when a backend is configured.
type OCRModel interface {
	OCR(ctx context.Context, content []byte, mimetype string) (string, error)
}

// ToolLibrary serves a read-only document collection to agents. The
// Templates and Docs tool families route here.
type ToolLibrary interface {
	List(ctx context.Context) ([]map[string]interface{}, error)
	Get(ctx context.Context, uuid string) (map[string]interface{}, error)
}

// SetOCRModel attaches the text extraction backend behind OcrModel:ocr.
func (s *Service) SetOCRModel(m OCRModel) { s.ocr = m }

// SetTemplates attaches the library behind Templates:list and Templates:get.
func (s *Service) SetTemplates(lib ToolLibrary) { s.templates = lib }

// SetDocs attaches the library behind Docs:list and Docs:get.
func (s *Service) SetDocs(lib ToolLibrary) { s.docs = lib }

// RunAITool invokes a tool on behalf of an AI agent. Names containing
// ":" route to a fixed switch over core services (module uuids never
// contain a colon); everything else resolves to a stored feature
// exposed as a tool.
func (s *Service) RunAITool(ctx context.Context, auth principal.AuthenticationContext, uuid string, args map[string]interface{}) (interface{}, error) {
	if family, op, ok := strings.Cut(uuid, ":"); ok {
		if err := s.limiter.acquire(uuid, channelTool); err != nil {
			return nil, err
		}
		return s.runServiceTool(ctx, auth.WithMode(principal.ModeAI), family, op, args)
	}

	f, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if !f.ExposeAITool {
		return nil, errors.NewForbiddenError("feature is not exposed as an AI tool")
	}
	return s.run(ctx, auth, f, args, channelTool, nil)
}

func (s *Service) runServiceTool(ctx context.Context, auth principal.AuthenticationContext, family, op string, args map[string]interface{}) (interface{}, error) {
	switch family {
	case "NodeService":
		return s.runBuiltinTool(ctx, auth, op, args)
	case "OcrModel":
		return s.runOCRTool(ctx, auth, op, args)
	case "Templates":
		return s.runLibraryTool(ctx, s.templates, family, op, args)
	case "Docs":
		return s.runLibraryTool(ctx, s.docs, family, op, args)
	default:
		return nil, errors.NewBadRequestError("unknown tool: " + family + ":" + op)
	}
}

func (s *Service) runOCRTool(ctx context.Context, auth principal.AuthenticationContext, op string, args map[string]interface{}) (interface{}, error) {
	if op != "ocr" {
		return nil, errors.NewBadRequestError("unknown tool: OcrModel:" + op)
	}
	if s.ocr == nil {
		return nil, errors.NewBadRequestError("no OCR model is configured")
	}
	uuid, _ := args["uuid"].(string)
	if uuid == "" {
		return nil, errors.NewBadRequestError("missing required parameter \"uuid\"")
	}
	content, info, err := nodes.NewProxy(s.nodes, auth).Export(ctx, uuid)
	if err != nil {
		return nil, err
	}
	text, err := s.ocr.OCR(ctx, content, info.Type)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"text": text}, nil
}

func (s *Service) runLibraryTool(ctx context.Context, lib ToolLibrary, family, op string, args map[string]interface{}) (interface{}, error) {
	if lib == nil {
		return nil, errors.NewBadRequestError("no " + family + " library is configured")
	}
	switch op {
	case "list":
		return lib.List(ctx)
	case "get":
		uuid, _ := args["uuid"].(string)
		if uuid == "" {
			return nil, errors.NewBadRequestError("missing required parameter \"uuid\"")
		}
		return lib.Get(ctx, uuid)
	default:
		return nil, errors.NewBadRequestError("unknown tool: " + family + ":" + op)
	}
}

func (s *Service) runBuiltinTool(ctx context.Context, auth principal.AuthenticationContext, op string, args map[string]interface{}) (interface{}, error) {
	proxy := nodes.NewProxy(s.nodes, auth)

	str := func(key string) string {
		v, _ := args[key].(string)
		return v
	}
	asNode := func(n *node.Node, err error) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		return n.Map(), nil
	}

	switch op {
	case "get":
		return asNode(proxy.Get(ctx, str("uuid")))

	case "list":
		ns, err := proxy.List(ctx, str("parent"))
		if err != nil {
			return nil, err
		}
		return nodeMaps(ns), nil

	case "find":
		var f filters.Filters
		if raw, ok := args["filters"]; ok {
			if err := decodeArg(raw, &f); err != nil {
				return nil, errors.NewBadRequestError("filters: " + err.Error())
			}
		}
		pageSize, _ := args["pageSize"].(float64)
		pageToken, _ := args["pageToken"].(float64)
		page, err := proxy.Find(ctx, f, repository.NewPageRequest(int(pageSize), int(pageToken)))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"nodes":         nodeMaps(page.Items),
			"nextPageToken": page.NextPageToken,
			"total":         page.Total,
		}, nil

	case "create":
		var md node.Metadata
		if err := decodeArg(args["metadata"], &md); err != nil {
			return nil, errors.NewBadRequestError("metadata: " + err.Error())
		}
		return asNode(proxy.Create(ctx, md))

	case "update":
		patch, _ := args["metadata"].(map[string]interface{})
		if patch == nil {
			return nil, errors.NewBadRequestError("missing required parameter \"metadata\"")
		}
		return asNode(proxy.Update(ctx, str("uuid"), node.Patch(patch)))

	case "delete":
		if err := proxy.Delete(ctx, str("uuid")); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": true}, nil

	case "copy":
		return asNode(proxy.Copy(ctx, str("uuid"), str("parent")))

	case "duplicate":
		return asNode(proxy.Duplicate(ctx, str("uuid")))

	case "breadcrumbs":
		return proxy.Breadcrumbs(ctx, str("uuid"))

	case "export":
		content, info, err := proxy.Export(ctx, str("uuid"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"content": string(content),
			"name":    info.Name,
			"type":    info.Type,
		}, nil

	default:
		return nil, errors.NewBadRequestError("unknown tool: " + builtinToolPrefix + op)
	}
}

func nodeMaps(ns []*node.Node) []map[string]interface{} {
	out := make([]map[string]interface{}, len(ns))
	for i, n := range ns {
		out[i] = n.Map()
	}
	return out
}

// BuiltinAITools describes the node service surface offered to agents
// alongside stored tool features.
func BuiltinAITools() []*feature.Feature {
	uuidParam := feature.Parameter{Name: "uuid", Type: feature.ParamString, Required: true, Description: "Target node uuid or fid"}

	tool := func(op, description string, returnType feature.ReturnType, params ...feature.Parameter) *feature.Feature {
		return &feature.Feature{
			UUID:         builtinToolPrefix + op,
			Title:        "NodeService " + op,
			Description:  description,
			ExposeAITool: true,
			Builtin:      true,
			Parameters:   params,
			ReturnType:   returnType,
		}
	}

	return []*feature.Feature{
		tool("get", "Fetch one node by uuid or fid", feature.ReturnObject, uuidParam),
		tool("list", "List the children of a folder", feature.ReturnArray,
			feature.Parameter{Name: "parent", Type: feature.ParamString, Description: "Folder uuid; the root folder when omitted"}),
		tool("find", "Query nodes with filter triples", feature.ReturnObject,
			feature.Parameter{Name: "filters", Type: feature.ParamArray, Description: "Filter triples [field, operator, value]"},
			feature.Parameter{Name: "pageSize", Type: feature.ParamNumber},
			feature.Parameter{Name: "pageToken", Type: feature.ParamNumber}),
		tool("create", "Create a node from metadata", feature.ReturnObject,
			feature.Parameter{Name: "metadata", Type: feature.ParamObject, Required: true}),
		tool("update", "Patch node metadata", feature.ReturnObject, uuidParam,
			feature.Parameter{Name: "metadata", Type: feature.ParamObject, Required: true}),
		tool("delete", "Delete a node and its descendants", feature.ReturnObject, uuidParam),
		tool("copy", "Copy a node into another folder", feature.ReturnObject, uuidParam,
			feature.Parameter{Name: "parent", Type: feature.ParamString, Required: true}),
		tool("duplicate", "Duplicate a node next to itself", feature.ReturnObject, uuidParam),
		tool("breadcrumbs", "Resolve the path from the root to a node", feature.ReturnArray, uuidParam),
		tool("export", "Export a file node's content", feature.ReturnFile, uuidParam),
	}
}

// backendTools describes the tools of the optional backends that are
// actually configured on this service.
func (s *Service) backendTools() []*feature.Feature {
	uuidParam := feature.Parameter{Name: "uuid", Type: feature.ParamString, Required: true}

	tool := func(name, description string, returnType feature.ReturnType, params ...feature.Parameter) *feature.Feature {
		return &feature.Feature{
			UUID:         name,
			Title:        strings.ReplaceAll(name, ":", " "),
			Description:  description,
			ExposeAITool: true,
			Builtin:      true,
			Parameters:   params,
			ReturnType:   returnType,
		}
	}

	var out []*feature.Feature
	if s.ocr != nil {
		out = append(out, tool("OcrModel:ocr", "Extract text from a file node's content", feature.ReturnObject, uuidParam))
	}
	if s.templates != nil {
		out = append(out,
			tool("Templates:list", "List the available templates", feature.ReturnArray),
			tool("Templates:get", "Fetch one template by uuid", feature.ReturnObject, uuidParam))
	}
	if s.docs != nil {
		out = append(out,
			tool("Docs:list", "List the available documents", feature.ReturnArray),
			tool("Docs:get", "Fetch one document by uuid", feature.ReturnObject, uuidParam))
	}
	return out
}
