package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/service"
)

// TermHandler serves /categories/ or /genres/; both have the same shape.
type TermHandler struct {
	svc    *service.TermService
	logger *slog.Logger
}

func NewTermHandler(svc *service.TermService, logger *slog.Logger) *TermHandler {
	return &TermHandler{svc: svc, logger: logger}
}

// HandleList: GET /api/v1/{categories|genres}/?search=<name substring>
func (h *TermHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), r.URL.Query().Get("search"), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate: POST /api/v1/{categories|genres}/ {"name": "...", "slug": "..."}
func (h *TermHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.Term
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	term, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), in.Name, in.Slug)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, term)
}

// HandleDelete: DELETE /api/v1/{categories|genres}/{slug}/
func (h *TermHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "slug")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TitleHandler serves /titles/.
type TitleHandler struct {
	svc    *service.TitleService
	logger *slog.Logger
}

func NewTitleHandler(svc *service.TitleService, logger *slog.Logger) *TitleHandler {
	return &TitleHandler{svc: svc, logger: logger}
}

// HandleList: GET /api/v1/titles/?category=&genre=&name=&year=
func (h *TitleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter, err := titleFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), filter, opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func titleFilter(r *http.Request) (model.TitleFilter, error) {
	q := r.URL.Query()
	filter := model.TitleFilter{
		CategorySlug: q.Get("category"),
		GenreSlug:    q.Get("genre"),
		Name:         q.Get("name"),
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return filter, apperror.ValidationFailed("year", "year must be an integer")
		}
		filter.Year = year
	}
	return filter, nil
}

// HandleCreate: POST /api/v1/titles/
//
//	{"name": "Dune", "year": 1965, "genre": ["sci-fi"], "category": "books"}
func (h *TitleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.TitleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	title, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, title)
}

// HandleGet: GET /api/v1/titles/{title_id}/
func (h *TitleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(chi.URLParam(r, "title_id"), "title")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	title, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, title)
}

// HandleUpdate: PATCH /api/v1/titles/{title_id}/
func (h *TitleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(chi.URLParam(r, "title_id"), "title")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in model.TitleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	title, err := h.svc.Update(r.Context(), auth.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, title)
}

// HandleDelete: DELETE /api/v1/titles/{title_id}/
func (h *TitleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(chi.URLParam(r, "title_id"), "title")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
