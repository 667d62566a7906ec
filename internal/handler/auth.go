package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yankun-li/heatledger/internal/auth"
)

// AuthHandler gates the API behind a single shared access password. A
// successful login mints a session token; there are no user accounts.
type AuthHandler struct {
	accessPassword string
	jwtSecret      string
	jwtExpiry      time.Duration
}

func NewAuthHandler(accessPassword, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		accessPassword: accessPassword,
		jwtSecret:      jwtSecret,
		jwtExpiry:      jwtExpiry,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.accessPassword)) != 1 {
		RespondAppError(w, ErrInvalidPassword, nil)
		return
	}

	token, err := auth.GenerateToken(uuid.New().String(), h.jwtSecret, h.jwtExpiry)
	if err != nil {
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwtExpiry),
	})
}
