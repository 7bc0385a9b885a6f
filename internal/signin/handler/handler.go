package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"afenda/internal/ratelimit/models"
	"afenda/pkg/platform/httputil"
	"afenda/pkg/platform/middleware/admin"
	"afenda/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Unlocker

const (
	UnlockPath       = "/api/auth/unlock"
	UnlockedRedirect = "/login?unlocked=1"
)

// Unlocker issues and redeems unlock tokens.
type Unlocker interface {
	CreateToken(ctx context.Context, email, actor string) (*models.UnlockToken, error)
	Unlock(ctx context.Context, email, token string) error
}

type Handler struct {
	gate     http.Handler
	unlocker Unlocker
	logger   *slog.Logger
}

// New wires the auth routes. gate receives every /api/auth request that is
// not an unlock request.
func New(gate http.Handler, unlocker Unlocker, logger *slog.Logger) *Handler {
	return &Handler{
		gate:     gate,
		unlocker: unlocker,
		logger:   logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post(UnlockPath, h.HandleUnlock)
	r.Get(UnlockPath, h.HandleUnlockLink)
	r.Handle("/api/auth", h.gate)
	r.Handle("/api/auth/*", h.gate)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/login-protection/unlock-tokens", h.HandleIssueUnlockToken)
}

// UnlockRequest is the body of POST /api/auth/unlock. Missing fields are
// reported by the unlock service so both routes share one message.
type UnlockRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Token string `json:"token" validate:"omitempty,max=128"`
}

func (r *UnlockRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Token = strings.TrimSpace(r.Token)
}

type UnlockResponse struct {
	Success bool `json:"success"`
}

type IssueUnlockTokenRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (r *IssueUnlockTokenRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

type IssueUnlockTokenResponse struct {
	Token     string    `json:"token"`
	UnlockURL string    `json:"unlock_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleUnlock implements POST /api/auth/unlock.
// Input: { "email": "...", "token": "..." }
// Output: { "success": true }
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[UnlockRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.unlock(ctx, req.Email, req.Token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UnlockResponse{Success: true})
}

// HandleUnlockLink implements GET /api/auth/unlock?email=&token=, the link
// sent to a locked-out user. Success redirects to the login page.
func (h *Handler) HandleUnlockLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	req := &UnlockRequest{Email: q.Get("email"), Token: q.Get("token")}
	if err := httputil.Validate(req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.unlock(ctx, req.Email, req.Token); err != nil {
		httputil.WriteError(w, err)
		return
	}
	http.Redirect(w, r, UnlockedRedirect, http.StatusSeeOther)
}

func (h *Handler) unlock(ctx context.Context, email, token string) error {
	err := h.unlocker.Unlock(ctx, email, token)
	if err != nil {
		h.logger.WarnContext(ctx, "unlock rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return err
}

// HandleIssueUnlockToken implements POST /admin/login-protection/unlock-tokens.
// Input: { "email": "..." }
// Output: { "token": "...", "unlock_url": "/api/auth/unlock?...", "expires_at": "..." }
func (h *Handler) HandleIssueUnlockToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[IssueUnlockTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	token, err := h.unlocker.CreateToken(ctx, req.Email, admin.ActorID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue unlock token",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	link := url.Values{}
	link.Set("email", req.Email)
	link.Set("token", token.Token)
	httputil.WriteJSON(w, http.StatusCreated, IssueUnlockTokenResponse{
		Token:     token.Token,
		UnlockURL: UnlockPath + "?" + link.Encode(),
		ExpiresAt: token.ExpiresAt,
	})
}
