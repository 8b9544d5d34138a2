package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront-backend/internal/http/middleware"
	"storefront-backend/internal/http/response"
	"storefront-backend/internal/observability"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/service"
)

type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	user, err := h.accounts.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		status = "failure"
		observability.RecordAccountFlow(r.Context(), "register", "failure")
		switch {
		case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
			response.Error(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
		case errors.Is(err, service.ErrWeakPassword):
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", err.Error(), nil)
		case errors.Is(err, service.ErrInvalidInput):
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "registration failed", nil)
		}
		return
	}
	observability.Audit(r, "account.register.success", "user_id", user.ID)
	observability.RecordAccountFlow(r.Context(), "register", "success")
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"message": "account created, check your email to verify it",
	})
}

func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "verify_email", status, time.Since(start))
	}()

	carrier := chi.URLParam(r, "uid")
	proof := chi.URLParam(r, "token")
	if err := h.accounts.VerifyEmail(r.Context(), carrier, proof); err != nil {
		status = "failure"
		if errors.Is(err, service.ErrInvalidLink) {
			observability.Audit(r, "account.verify.invalid_link")
			observability.RecordAccountFlow(r.Context(), "verify_email", "invalid_link")
			response.Error(w, r, http.StatusBadRequest, "INVALID_LINK", "verification link is invalid or expired", nil)
			return
		}
		observability.RecordAccountFlow(r.Context(), "verify_email", "error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "verification failed", nil)
		return
	}
	observability.Audit(r, "account.verify.success")
	observability.RecordAccountFlow(r.Context(), "verify_email", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "email verified"})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	access, user, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrInactiveAccount):
			observability.Audit(r, "account.login.inactive")
			observability.RecordAccountFlow(r.Context(), "login", "inactive")
			response.Error(w, r, http.StatusForbidden, "ACCOUNT_INACTIVE", "verify your email before logging in", nil)
		case errors.Is(err, service.ErrInvalidCredentials):
			observability.Audit(r, "account.login.failed")
			observability.RecordAccountFlow(r.Context(), "login", "invalid_credentials")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
		default:
			observability.RecordAccountFlow(r.Context(), "login", "error")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
		}
		return
	}
	observability.Audit(r, "account.login.success", "user_id", user.ID)
	observability.RecordAccountFlow(r.Context(), "login", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_token": access,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}

func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "password_forgot", status, time.Since(start))
	}()

	var req forgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrUnknownEmail):
			observability.Audit(r, "account.password.forgot.unknown_email")
			observability.RecordAccountFlow(r.Context(), "password_forgot", "unknown_email")
			response.Error(w, r, http.StatusBadRequest, "UNKNOWN_EMAIL", "no account with that email", nil)
		case errors.Is(err, service.ErrInvalidInput):
			observability.RecordAccountFlow(r.Context(), "password_forgot", "failure")
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		default:
			observability.RecordAccountFlow(r.Context(), "password_forgot", "failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "password reset request failed", nil)
		}
		return
	}
	observability.Audit(r, "account.password.forgot.requested")
	observability.RecordAccountFlow(r.Context(), "password_forgot", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password reset email sent"})
}

func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "password_reset", status, time.Since(start))
	}()

	carrier := chi.URLParam(r, "uid")
	proof := chi.URLParam(r, "token")
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.accounts.ConfirmPasswordReset(r.Context(), carrier, proof, req.Password); err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrInvalidLink):
			observability.Audit(r, "account.password.reset.invalid_link")
			observability.RecordAccountFlow(r.Context(), "password_reset", "invalid_link")
			response.Error(w, r, http.StatusBadRequest, "INVALID_LINK", "reset link is invalid or expired", nil)
		case errors.Is(err, service.ErrWeakPassword):
			observability.RecordAccountFlow(r.Context(), "password_reset", "weak_password")
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", err.Error(), nil)
		default:
			observability.RecordAccountFlow(r.Context(), "password_reset", "error")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "password reset failed", nil)
		}
		return
	}
	observability.Audit(r, "account.password.reset.success")
	observability.RecordAccountFlow(r.Context(), "password_reset", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAccountRequestDuration(r.Context(), "password_change", status, time.Since(start))
	}()

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			observability.Audit(r, "account.password.change.failed", "user_id", userID)
			observability.RecordAccountFlow(r.Context(), "password_change", "invalid_credentials")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "current password is incorrect", nil)
		case errors.Is(err, service.ErrWeakPassword):
			observability.RecordAccountFlow(r.Context(), "password_change", "weak_password")
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", err.Error(), nil)
		case errors.Is(err, service.ErrInvalidInput):
			observability.RecordAccountFlow(r.Context(), "password_change", "failure")
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		default:
			observability.RecordAccountFlow(r.Context(), "password_change", "failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "password change failed", nil)
		}
		return
	}
	observability.Audit(r, "account.password.change.success", "user_id", userID)
	observability.RecordAccountFlow(r.Context(), "password_change", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "profile lookup failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"username":       user.Username,
		"email_verified": user.EmailVerified(),
		"created_at":     user.CreatedAt,
	})
}
