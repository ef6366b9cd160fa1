package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/auth"
	"github.com/otpgate/server/internal/middleware"
	"github.com/otpgate/server/internal/sms"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	MobileNumber string `json:"mobileNumber"`
	Password     string `json:"password"`
}

// userResponse is the user object in API responses. Never carries the
// password hash or the live OTP.
type userResponse struct {
	ID           string `json:"id"`
	MobileNumber string `json:"mobileNumber"`
}

// registerResponse is the JSON response for register
type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)

	user, created, err := h.authService.Register(r.Context(), req.MobileNumber, req.Password)
	if err != nil {
		h.respondWithFlowError(w, req.MobileNumber, "register failed", err)
		return
	}

	message := "Check your OTP"
	if created {
		message = "Account created, check your OTP"
	}
	respondWithJSON(w, http.StatusOK, registerResponse{
		Message: message,
		User:    userResponse{ID: user.ID.String(), MobileNumber: user.MobileNumber},
	})
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	MobileNumber string `json:"mobileNumber"`
	OTP          string `json:"otp"`
}

// loginResponse is the JSON response for login
type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.OTP = strings.TrimSpace(req.OTP)

	user, pair, err := h.authService.Login(r.Context(), req.MobileNumber, req.OTP)
	if err != nil {
		h.respondWithFlowError(w, req.MobileNumber, "login failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userResponse{ID: user.ID.String(), MobileNumber: user.MobileNumber},
	})
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the JSON response for refresh
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithFlowError(w, "", "refresh failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// revokeRequest is the request body for POST /auth/revoke
type revokeRequest struct {
	UserID string `json:"userId"`
}

// HandleRevokeAll handles POST /auth/revoke
func (h *AuthHandler) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondWithError(w, http.StatusBadRequest, "userId is required")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "userId must be a valid id")
		return
	}

	if err := h.authService.RevokeAll(r.Context(), userID); err != nil {
		h.respondWithFlowError(w, "", "revoke failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "tokens revoked"})
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, userResponse{
		ID:           user.ID.String(),
		MobileNumber: user.MobileNumber,
	})
}

// respondWithFlowError maps the typed flow failures to HTTP statuses.
// Unmatched errors become a generic 500 and are logged in full
// server-side; the caller never sees internals.
func (h *AuthHandler) respondWithFlowError(w http.ResponseWriter, mobile, what string, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrInvalidOTP):
		respondWithError(w, http.StatusForbidden, "invalid OTP")
	case errors.Is(err, auth.ErrPasswordMismatch):
		respondWithError(w, http.StatusUnauthorized, "password does not match")
	case errors.Is(err, auth.ErrSessionRotated), errors.Is(err, auth.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrDeliveryFailed):
		respondWithError(w, http.StatusBadGateway, "failed to send OTP")
	default:
		if mobile != "" {
			log.Printf("%s for %s: %v", what, sms.MaskNumber(mobile), err)
		} else {
			log.Printf("%s: %v", what, err)
		}
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
