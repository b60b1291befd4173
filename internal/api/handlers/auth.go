// auth.go — HTTP handlers входа, регистрации и подтверждения email.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/secureshare/internal/api/errors"
	"github.com/bigkaa/secureshare/internal/service"
)

// AuthHandler — обработчик auth endpoints.
type AuthHandler struct {
	accounts *service.AccountService
}

// NewAuthHandler создаёт обработчик auth endpoints.
func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// loginRequest — тело POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signupRequest — тело POST /auth/signup.
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse — публичное представление пользователя.
type userResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

// Login обрабатывает POST /auth/login.
// Успех: {"token": "...", "user": {...}}.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if req.Email == "" || req.Password == "" {
		apierrors.ValidationError(w, "Требуются email и пароль")
		return
	}

	signed, user, aerr := h.accounts.Login(req.Email, req.Password)
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": signed,
		"user": userResponse{
			ID:       user.ID,
			Name:     user.Name,
			Email:    user.Email,
			Role:     string(user.Role),
			Verified: user.Verified,
		},
	})
}

// Signup обрабатывает POST /auth/signup.
// Создаёт consumer-аккаунт и отправляет письмо подтверждения.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	user, aerr := h.accounts.Signup(req.Name, req.Email, req.Password)
	if aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user": userResponse{
			ID:       user.ID,
			Name:     user.Name,
			Email:    user.Email,
			Role:     string(user.Role),
			Verified: user.Verified,
		},
		"message": "Письмо подтверждения отправлено",
	})
}

// VerifyEmail обрабатывает GET /auth/verify-email?token=...
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("token")
	if value == "" {
		apierrors.ValidationError(w, "Параметр token обязателен")
		return
	}

	if aerr := h.accounts.VerifyEmail(value); aerr != nil {
		apierrors.WriteError(w, aerr.StatusCode, aerr.Code, aerr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email подтверждён",
	})
}
