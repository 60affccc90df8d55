package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/infinityhole/api/internal/response"
)

// usernameRegex allows 3 to 32 letters, digits or underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email"    example:"alice@example.com"`
	Password string `json:"password" example:"correct-horse"`
}

type loginRequest struct {
	Login    string `json:"login"    example:"alice"`
	Password string `json:"password" example:"correct-horse"`
}

// validateRegister returns a user-facing message, or "" when the request is valid.
func validateRegister(req *registerRequest) string {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if !usernameRegex.MatchString(req.Username) {
		return "username must be 3-32 characters: letters, digits or underscore"
	}
	if req.Email != "" {
		addr, err := mail.ParseAddress(req.Email)
		if err != nil || addr.Address != req.Email {
			return "invalid email address"
		}
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		return "password must be 8-72 bytes"
	}
	return ""
}

// Register godoc
//
//	@Summary		Register new user
//	@Description	Create an account with username, optional email and password. Issues a JWT token on success.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest	true	"Registration details"
//	@Success		201		{object}	response.Envelope{data=Result}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if msg := validateRegister(&req); msg != "" {
		response.BadRequest(w, msg)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if errors.Is(err, ErrUserExists) {
		response.Conflict(w, err.Error())
		return
	}
	if err != nil {
		slog.Error("auth: register", "username", req.Username, "error", err)
		response.InternalError(w)
		return
	}

	response.Created(w, res)
}

// Login godoc
//
//	@Summary		Log in
//	@Description	Exchange a username or email and password for a JWT token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=Result}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		response.BadRequest(w, "login and password are required")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Login, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, err.Error())
		return
	}
	if err != nil {
		slog.Error("auth: login", "error", err)
		response.InternalError(w)
		return
	}

	response.OK(w, res)
}
