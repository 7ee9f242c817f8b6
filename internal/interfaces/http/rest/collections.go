package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/aspect"
)

type apiKeyHandler struct {
	logger *zap.Logger
}

func newAPIKeyHandler(logger *zap.Logger) *apiKeyHandler {
	return &apiKeyHandler{logger: logger}
}

// create returns the only response that ever carries the secret.
func (h *apiKeyHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Group       string `json:"group"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	key, err := svc.APIKeys.Create(r.Context(), authFrom(r.Context()), req.Group, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (h *apiKeyHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	key, err := svc.APIKeys.Get(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *apiKeyHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	keys, err := svc.APIKeys.List(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *apiKeyHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.APIKeys.Delete(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aspectHandler struct {
	logger *zap.Logger
}

func newAspectHandler(logger *zap.Logger) *aspectHandler {
	return &aspectHandler{logger: logger}
}

func (h *aspectHandler) createOrReplace(w http.ResponseWriter, r *http.Request) {
	var a aspect.Aspect
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	stored, err := svc.Aspects.CreateOrReplace(r.Context(), authFrom(r.Context()), &a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *aspectHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	a, err := svc.Aspects.Get(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *aspectHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	all, err := svc.Aspects.List(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *aspectHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Aspects.Delete(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type auditHandler struct {
	logger *zap.Logger
}

func newAuditHandler(logger *zap.Logger) *auditHandler {
	return &auditHandler{logger: logger}
}

func (h *auditHandler) getStream(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	stream, err := svc.Audit.GetStream(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

func (h *auditHandler) listStreams(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	streams, err := svc.Audit.ListStreams(r.Context(), authFrom(r.Context()), r.URL.Query().Get("mimetype"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (h *auditHandler) listDeleted(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	deleted, err := svc.Audit.GetDeleted(r.Context(), authFrom(r.Context()), r.URL.Query().Get("mimetype"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}
