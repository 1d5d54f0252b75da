package adminauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"masjid/pkg/contracts"
	apperrors "masjid/pkg/errors"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
	"masjid/pkg/middleware"
)

const CookieName = "admin_session"

type loginRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type AuthHandler struct {
	auth         *Authenticator
	limiter      *middleware.IPRateLimiter
	cookieSecure bool
	log          *logger.Logger
}

func NewAuthHandler(auth *Authenticator, limiter *middleware.IPRateLimiter, cookieSecure bool, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		limiter:      limiter,
		cookieSecure: cookieSecure,
		log:          log,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Login", err)
		return
	}

	token, expiresAt, err := h.auth.Login(req.Password)
	if err != nil {
		h.log.Warn("Admin login failed", "client", middleware.ClientIP(r), "error", err)
		h.writeError(w, "Login", h.authError(err))
		return
	}

	http.SetCookie(w, h.cookie(token, expiresAt))
	h.log.Info("Admin logged in", "client", middleware.ClientIP(r))
	if err := httputil.WriteSuccess(w, sessionResponse{Authenticated: true, ExpiresAt: &expiresAt}); err != nil {
		h.log.Error("failed to write success response", "handler", "Login", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cookie := h.cookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	httputil.WriteNoContent(w)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := sessionResponse{}
	if expiresAt, err := h.auth.Verify(sessionToken(r)); err == nil {
		resp.Authenticated = true
		resp.ExpiresAt = &expiresAt
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Session", "operation", "WriteSuccess", "error", err)
	}
}

// RequireAdmin is the guard placed on every admin route.
func (h *AuthHandler) RequireAdmin() contracts.Guard {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if _, err := h.auth.Verify(sessionToken(r)); err != nil {
				h.writeError(w, "RequireAdmin", h.authError(err))
				return
			}
			next(w, r, ps)
		}
	}
}

func (h *AuthHandler) authError(err error) error {
	switch {
	case errors.Is(err, ErrDisabled):
		return apperrors.Unavailable("Admin access")
	case errors.Is(err, ErrInvalidPassword):
		return apperrors.Unauthorized("Invalid password")
	case errors.Is(err, ErrInvalidSession):
		return apperrors.Unauthorized("Admin session required")
	}
	return apperrors.Internal("Failed to authenticate", err)
}

func (h *AuthHandler) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/api/v1/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// sessionToken reads the session cookie, falling back to a bearer token for
// scripted access.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func (h *AuthHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *AuthHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/login", middleware.RateLimitHandle(h.limiter, h.Login))
	router.POST("/api/v1/admin/logout", h.Logout)
	router.GET("/api/v1/admin/session", h.Session)
}
