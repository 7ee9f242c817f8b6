package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/principal"
)

type userHandler struct {
	logger *zap.Logger
}

func newUserHandler(logger *zap.Logger) *userHandler {
	return &userHandler{logger: logger}
}

func (h *userHandler) create(w http.ResponseWriter, r *http.Request) {
	var u principal.User
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	created, err := svc.Users.CreateUser(r.Context(), authFrom(r.Context()), u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *userHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	u, err := svc.Users.GetUser(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *userHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	all, err := svc.Users.ListUsers(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *userHandler) update(w http.ResponseWriter, r *http.Request) {
	var u principal.User
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	updated, err := svc.Users.UpdateUser(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *userHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Users.DeleteUser(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type groupHandler struct {
	logger *zap.Logger
}

func newGroupHandler(logger *zap.Logger) *groupHandler {
	return &groupHandler{logger: logger}
}

func (h *groupHandler) create(w http.ResponseWriter, r *http.Request) {
	var g principal.Group
	if err := decodeJSON(r, &g); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	created, err := svc.Users.CreateGroup(r.Context(), authFrom(r.Context()), g)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *groupHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	g, err := svc.Users.GetGroup(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *groupHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	all, err := svc.Users.ListGroups(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *groupHandler) update(w http.ResponseWriter, r *http.Request) {
	var g principal.Group
	if err := decodeJSON(r, &g); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	updated, err := svc.Users.UpdateGroup(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), g)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *groupHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Users.DeleteGroup(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
