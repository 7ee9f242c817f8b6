package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"antbox-backend/internal/domain/agent"
	"antbox-backend/internal/service/agents"
)

type agentHandler struct {
	logger *zap.Logger
}

func newAgentHandler(logger *zap.Logger) *agentHandler {
	return &agentHandler{logger: logger}
}

func (h *agentHandler) create(w http.ResponseWriter, r *http.Request) {
	var a agent.Agent
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	created, err := svc.Agents.Create(r.Context(), authFrom(r.Context()), &a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *agentHandler) get(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	a, err := svc.Agents.Get(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *agentHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	all, err := svc.Agents.List(r.Context(), authFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *agentHandler) update(w http.ResponseWriter, r *http.Request) {
	var a agent.Agent
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	updated, err := svc.Agents.Update(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), &a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *agentHandler) delete(w http.ResponseWriter, r *http.Request) {
	svc := servicesFrom(r.Context())
	if err := svc.Agents.Delete(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *agentHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		History []agents.Message `json:"history"`
		Message string           `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	history := req.History
	if req.Message != "" {
		history = append(history, agents.Message{Role: agents.RoleUser, Content: req.Message})
	}

	svc := servicesFrom(r.Context())
	text, err := svc.Agents.Chat(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), history)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": text})
}

func (h *agentHandler) answer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	out, err := svc.Agents.Answer(r.Context(), authFrom(r.Context()), chi.URLParam(r, "uuid"), req.Question)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ragChat answers a question grounded on repository content through
// the agent named in the body.
func (h *agentHandler) ragChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent    string `json:"agent"`
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	svc := servicesFrom(r.Context())
	text, err := svc.Agents.RAG(r.Context(), authFrom(r.Context()), req.Agent, req.Question)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": text})
}
