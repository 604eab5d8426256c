package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/yamdb/internal/service"
)

// AuthHandler serves the two unauthenticated endpoints of the
// confirmation-code flow.
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// HandleSignUp registers a user and mails the confirmation code.
//
// HTTP: POST /api/v1/auth/signup/
// REQUEST BODY: {"username": "alice", "email": "a@x.com"}
// RESPONSE: 200 {"username": "alice", "email": "a@x.com"}
//
// Repeating the call for the same pair is not an error; it mails the code
// again.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.SignUp(r.Context(), req.Username, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type tokenRequest struct {
	Username         string `json:"username"`
	ConfirmationCode string `json:"confirmation_code"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleToken exchanges a confirmation code for an access token.
//
// HTTP: POST /api/v1/auth/token/
// REQUEST BODY: {"username": "alice", "confirmation_code": "..."}
// RESPONSE: 200 {"token": "<jwt>"}
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.svc.IssueToken(r.Context(), req.Username, req.ConfirmationCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
