package rest

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"antbox-backend/pkg/errors"
)

// maxModuleBytes caps feature module source uploads.
const maxModuleBytes = 4 << 20

type featureHandler struct {
	logger *zap.Logger
}

func newFeatureHandler(logger *zap.Logger) *featureHandler {
	return &featureHandler{logger: logger}
}

// createOrReplace accepts the raw module source as the request body.
func (h *featureHandler) createOrReplace(w http.ResponseWriter, r *http.Request) {
	source, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxModuleBytes))
	if err != nil {
		writeError(w, h.logger, errors.NewBadRequestError("cannot read module source"))
		return
	}
	if len(source) == 0 {
		writeError(w, h.logger, errors.NewBadRequestError("empty module source"))
		return
	}

	svc := servicesFrom(r.Context())
	feat, err := svc.Features.CreateOrReplace(r.Context(), authFrom(r.Context()), string(source))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, feat)
}

func (h *featureHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	feat, err := svc.Features.Get(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, feat)
}

func (h *featureHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	all, err := svc.Features.List(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *featureHandler) listActions(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	actions, err := svc.Features.ListActions(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (h *featureHandler) listExtensions(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	extensions, err := svc.Features.ListExtensions(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, extensions)
}

func (h *featureHandler) listAITools(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	tools, err := svc.Features.ListAITools(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

func (h *featureHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Features.Delete(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *featureHandler) export(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	source, name, err := svc.Features.Export(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(source)
}

func (h *featureHandler) run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUIDs  []string               `json:"uuids"`
		Params map[string]interface{} `json:"params"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	result, err := svc.Features.RunAction(r.Context(), authFrom(r.Context()),
		chi.URLParam(r, "uuid"), req.UUIDs, req.Params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (h *featureHandler) runAITool(w http.ResponseWriter, r *http.Request) {
	var args map[string]interface{}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &args); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	svc := servicesFrom(r.Context())
	result, err := svc.Features.RunAITool(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), args)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// runExtension hands the raw request to the extension channel and
// writes whatever wire shape the feature's return type dictates.
func (h *featureHandler) runExtension(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	result, err := svc.Features.RunExtension(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	if result.Filename != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
