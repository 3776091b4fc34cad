package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/classigoo/auth-server/internal/auth"
	"github.com/classigoo/auth-server/internal/middleware"
	"github.com/classigoo/auth-server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// sendOtpRequest is the request body for POST /v1/auth/otp/send
type sendOtpRequest struct {
	Email      string  `json:"email"`
	IsSignup   bool    `json:"is_signup"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Platform   string  `json:"platform"`
	OS         string  `json:"os"`
	Device     string  `json:"device"`
	Location   string  `json:"location"`
	RememberMe bool    `json:"remember_me"`
	PushToken  *string `json:"push_token"`
}

// sendOtpResponse is the success envelope for otp/send
type sendOtpResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
}

// HandleSendOtp handles POST /v1/auth/otp/send
func (h *AuthHandler) HandleSendOtp(w http.ResponseWriter, r *http.Request) {
	var req sendOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid_request_body", "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email_required", "email is required")
		return
	}

	result, err := h.service.SendOtp(r.Context(), auth.SendOtpInput{
		Email:    req.Email,
		IsSignup: req.IsSignup,
		Name:     req.Name,
		Role:     req.Role,
		Security: model.Security{
			IP:       clientIP(r),
			Platform: req.Platform,
			OS:       req.OS,
			Device:   req.Device,
			Location: req.Location,
		},
		RememberMe: req.RememberMe,
		PushToken:  req.PushToken,
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sendOtpResponse{
		Status:       "success",
		Message:      "OTP sent to your email address",
		SessionToken: result.SessionToken,
	})
}

// validateOtpRequest is the request body for POST /v1/auth/otp/validate
type validateOtpRequest struct {
	Otp          string `json:"otp"`
	SessionToken string `json:"session_token"`
}

// validateOtpResponse is the success envelope for otp/validate
type validateOtpResponse struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Token         string    `json:"token"`
	SessionExpiry time.Time `json:"session_expiry"`
}

// HandleValidateOtp handles POST /v1/auth/otp/validate
func (h *AuthHandler) HandleValidateOtp(w http.ResponseWriter, r *http.Request) {
	var req validateOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid_request_body", "Invalid request body")
		return
	}

	req.Otp = strings.TrimSpace(req.Otp)
	req.SessionToken = strings.TrimSpace(req.SessionToken)
	if req.Otp == "" || req.SessionToken == "" {
		respondWithError(w, http.StatusBadRequest, "otp_required", "otp and session_token are required")
		return
	}

	result, err := h.service.ValidateOtp(r.Context(), auth.ValidateOtpInput{
		IP:           clientIP(r),
		Code:         req.Otp,
		SessionToken: req.SessionToken,
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, validateOtpResponse{
		Status:        "success",
		Message:       "OTP validated successfully",
		Token:         result.Token,
		SessionExpiry: result.SessionExpiry,
	})
}

// resendOtpRequest is the request body for POST /v1/auth/otp/resend
type resendOtpRequest struct {
	SessionToken string `json:"session_token"`
}

// HandleResendOtp handles POST /v1/auth/otp/resend
func (h *AuthHandler) HandleResendOtp(w http.ResponseWriter, r *http.Request) {
	var req resendOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid_request_body", "Invalid request body")
		return
	}

	req.SessionToken = strings.TrimSpace(req.SessionToken)
	if req.SessionToken == "" {
		respondWithError(w, http.StatusBadRequest, "session_token_required", "session_token is required")
		return
	}

	err := h.service.ResendOtp(r.Context(), auth.ResendOtpInput{
		SessionToken: req.SessionToken,
		IP:           clientIP(r),
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "OTP sent to your email address",
	})
}

// meResponse is the authenticated-user view for GET /v1/auth/me
type meResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// HandleMe handles GET /v1/auth/me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized_access", "Unauthorized")
		return
	}

	respondJSON(w, http.StatusOK, meResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Status:    user.Status,
		AvatarURL: user.AvatarURL,
	})
}

// errorResponse is the error envelope shared by all auth endpoints.
type errorResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	I18n         string `json:"i18n"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
}

// respondWithDomainError maps a typed auth.Error onto the wire envelope.
// Unclassified failures stay generic so internals never leak.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var domainErr *auth.Error
	if errors.As(err, &domainErr) {
		respondJSON(w, domainErr.Status, errorResponse{
			Status:       "error",
			Message:      domainErr.Message,
			I18n:         string(domainErr.Reason),
			AttemptsLeft: domainErr.AttemptsLeft,
		})
		return
	}
	respondWithError(w, http.StatusInternalServerError, "internal_error", "Something went wrong, Please try again")
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, i18n, message string) {
	respondJSON(w, statusCode, errorResponse{Status: "error", Message: message, I18n: i18n})
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Take first IP if multiple
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 && !strings.HasSuffix(host, "]") {
		host = host[:idx]
	}
	return host
}
