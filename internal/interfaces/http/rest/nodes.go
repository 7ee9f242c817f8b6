package rest

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 128 << 20

type nodeHandler struct {
	logger *zap.Logger
}

func newNodeHandler(logger *zap.Logger) *nodeHandler {
	return &nodeHandler{logger: logger}
}

func (h *nodeHandler) create(w http.ResponseWriter, r *http.Request) {
	var md node.Metadata
	if err := decodeJSON(r, &md); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	created, err := svc.Nodes.Create(r.Context(), authFrom(r.Context()), md)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// upload creates a file node from a multipart body: a "file" part
// with the content and an optional "metadata" part with JSON.
func (h *nodeHandler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, h.logger, errors.NewBadRequestError("malformed multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, errors.NewBadRequestError("missing file part"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, h.logger, errors.NewUnknownError("cannot read upload", err))
		return
	}

	var md node.Metadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			writeError(w, h.logger, errors.NewBadRequestError("metadata part is not valid JSON"))
			return
		}
	}
	if md.Title == "" {
		md.Title = header.Filename
	}
	if md.Mimetype == "" {
		md.Mimetype = header.Header.Get("Content-Type")
	}

	svc := servicesFrom(r.Context())
	created, err := svc.Nodes.CreateFile(r.Context(), authFrom(r.Context()), content, md)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *nodeHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	n, err := svc.Nodes.Get(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *nodeHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	children, err := svc.Nodes.List(r.Context(), authFrom(r.Context()), r.URL.Query().Get("parent"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *nodeHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch node.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	updated, err := svc.Nodes.Update(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *nodeHandler) updateFile(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, h.logger, errors.NewBadRequestError("cannot read body"))
		return
	}

	svc := servicesFrom(r.Context())
	updated, err := svc.Nodes.UpdateFile(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *nodeHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Nodes.Delete(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *nodeHandler) export(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	content, info, err := svc.Nodes.Export(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	contentType := info.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *nodeHandler) evaluate(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	result, err := svc.Nodes.Evaluate(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *nodeHandler) breadcrumbs(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	crumbs, err := svc.Nodes.Breadcrumbs(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, crumbs)
}

func (h *nodeHandler) find(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filters   filters.Filters `json:"filters"`
		PageSize  int             `json:"pageSize"`
		PageToken int             `json:"pageToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	page, err := svc.Nodes.Find(r.Context(), authFrom(r.Context()), req.Filters,
		repository.NewPageRequest(req.PageSize, req.PageToken))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *nodeHandler) copy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent string `json:"parent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	copied, err := svc.Nodes.Copy(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), req.Parent)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, copied)
}

func (h *nodeHandler) duplicate(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	copied, err := svc.Nodes.Duplicate(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, copied)
}

func (h *nodeHandler) lock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UnlockAuthorizedGroups []string `json:"unlockAuthorizedGroups"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	svc := servicesFrom(r.Context())
	locked, err := svc.Nodes.Lock(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), req.UnlockAuthorizedGroups)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, locked)
}

func (h *nodeHandler) unlock(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	unlocked, err := svc.Nodes.Unlock(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, unlocked)
}
