package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ferrovax/gatehouse/internal/auth"
	"github.com/ferrovax/gatehouse/internal/middleware"
)

// AuthHandlers serves the admin login endpoint.
type AuthHandlers struct {
	jwt           *auth.JWTService
	adminUser     string
	adminPassword string
}

// NewAuthHandlers creates auth handlers for the configured admin user.
func NewAuthHandlers(jwt *auth.JWTService, adminUser, adminPassword string) *AuthHandlers {
	return &AuthHandlers{jwt: jwt, adminUser: adminUser, adminPassword: adminPassword}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /api/login. A successful login returns a bearer
// token for the admin endpoints.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "username and password are required")
		return
	}

	if err := auth.CheckCredentials(req.Username, req.Password, h.adminUser, h.adminPassword); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credentials")
		return
	}

	token, err := h.jwt.GenerateToken(req.Username)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
