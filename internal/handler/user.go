package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/service"
)

// UserHandler serves /users/ (admins) and /users/me/ (every member).
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// HandleList: GET /api/v1/users/?search=<substring>&limit=&offset=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), auth.PrincipalFromContext(r.Context()), r.URL.Query().Get("search"), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate: POST /api/v1/users/
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.UserPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleGet: GET /api/v1/users/{username}/
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Get(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate: PATCH /api/v1/users/{username}/
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in model.UserPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.svc.Update(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "username"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDelete: DELETE /api/v1/users/{username}/
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "username")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe: GET /api/v1/users/me/
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe: PATCH /api/v1/users/me/
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var in model.UserPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.svc.UpdateMe(r.Context(), auth.PrincipalFromContext(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
