package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/validate"
)

type AuthHandler struct {
	provider identity.Provider
	timeout  time.Duration
	secure   bool
}

func NewAuthHandler(provider identity.Provider, timeout time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{provider: provider, timeout: timeout, secure: secureCookies}
}

type SignUpRequestDTO struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type SignInRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FederatedRequestDTO struct {
	IDToken string `json:"idToken"`
}

type SessionResponse struct {
	User *domain.User `json:"user"`
}

// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignUpRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	form := validate.SignUp{Name: req.Name, Email: req.Email, Password: req.Password, ConfirmPassword: req.ConfirmPassword}
	if err := form.Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	session, err := h.provider.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		h.authFailed(w, r, err, "Sign up failed")
		return
	}
	notify.ContextNotifier{}.Notify(ctx, notify.Info("Account created", "Welcome to the store!"))
	h.startSession(w, r, http.StatusCreated, session)
}

// POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := (validate.SignIn{Email: req.Email, Password: req.Password}).Validate(); err != nil {
		handleError(w, r, err)
		return
	}

	session, err := h.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		h.authFailed(w, r, err, "Sign in failed")
		return
	}
	notify.ContextNotifier{}.Notify(ctx, notify.Info("Welcome back!", "You have successfully signed in."))
	h.startSession(w, r, http.StatusOK, session)
}

// POST /api/v1/auth/federated
func (h *AuthHandler) SignInFederated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req FederatedRequestDTO
	if err := decodeJSON(r, &req); err != nil || req.IDToken == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "idToken is required")
		return
	}

	session, err := h.provider.SignInFederated(ctx, req.IDToken)
	if err != nil {
		h.authFailed(w, r, err, "Sign in failed")
		return
	}
	notify.ContextNotifier{}.Notify(ctx, notify.Info("Welcome!", "You have successfully signed in."))
	h.startSession(w, r, http.StatusOK, session)
}

// POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if token := tokenFromContext(r.Context()); token != "" {
		if err := h.provider.SignOut(ctx, token); err != nil {
			h.authFailed(w, r, err, "Sign out failed")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.secure})
	notify.ContextNotifier{}.Notify(ctx, notify.Info("Signed out", "You have been signed out."))
	respondJSON(w, r, http.StatusOK, SessionResponse{})
}

// GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, SessionResponse{User: UserFromContext(r.Context())})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, session *identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, r, status, session)
}

// authFailed raises a destructive notification. Only identity errors carry a
// message meant for the user.
func (h *AuthHandler) authFailed(w http.ResponseWriter, r *http.Request, err error, title string) {
	msg := "Something went wrong. Please try again."
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrFederationDisabled):
		msg = err.Error()
	}
	notify.ContextNotifier{}.Notify(r.Context(), notify.Failure(title, msg))
	handleError(w, r, err)
}
