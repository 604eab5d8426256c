package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/service"
)

// ReviewHandler serves /titles/{title_id}/reviews/.
type ReviewHandler struct {
	svc    *service.ReviewService
	logger *slog.Logger
}

func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, logger: logger}
}

// pathIDs parses the numeric path segments named in order, stopping at the
// first malformed one.
func pathIDs(r *http.Request, names ...string) ([]int64, error) {
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := int64Param(chi.URLParam(r, name+"_id"), name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// HandleList: GET /api/v1/titles/{title_id}/reviews/
func (h *ReviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), ids[0], opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate: POST /api/v1/titles/{title_id}/reviews/ {"text": "...", "score": 8}
func (h *ReviewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in model.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	review, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// HandleGet: GET /api/v1/titles/{title_id}/reviews/{review_id}/
func (h *ReviewHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	review, err := h.svc.Get(r.Context(), ids[0], ids[1])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// HandleUpdate: PATCH /api/v1/titles/{title_id}/reviews/{review_id}/
func (h *ReviewHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in model.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	review, err := h.svc.Update(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], ids[1], in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// HandleDelete: DELETE /api/v1/titles/{title_id}/reviews/{review_id}/
func (h *ReviewHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], ids[1]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommentHandler serves /titles/{title_id}/reviews/{review_id}/comments/.
type CommentHandler struct {
	svc    *service.CommentService
	logger *slog.Logger
}

func NewCommentHandler(svc *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{svc: svc, logger: logger}
}

func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), ids[0], ids[1], opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in model.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	comment, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], ids[1], in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *CommentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review", "comment")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	comment, err := h.svc.Get(r.Context(), ids[0], ids[1], ids[2])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *CommentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review", "comment")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in model.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	comment, err := h.svc.Update(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], ids[1], ids[2], in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "title", "review", "comment")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), ids[0], ids[1], ids[2]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
