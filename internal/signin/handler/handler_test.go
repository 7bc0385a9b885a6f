package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"afenda/internal/ratelimit/models"
	"afenda/internal/signin/handler/mocks"
	dErrors "afenda/pkg/domain-errors"
	"afenda/pkg/platform/middleware/admin"
)

const adminToken = "operator-secret"

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	unlocker *mocks.MockUnlocker
	gateHits int
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.unlocker = mocks.NewMockUnlocker(s.ctrl)
	s.gateHits = 0
	logger := slog.New(slog.DiscardHandler)

	gate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.gateHits++
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(gate, s.unlocker, logger)

	r := chi.NewRouter()
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestUnlockPost() {
	s.Run("valid token", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com", "tok").Return(nil)

		rec := s.do(http.MethodPost, UnlockPath, `{"email":" alice@example.com ","token":"tok"}`, nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"success":true}`, rec.Body.String())
	})

	s.Run("invalid token", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com", "stale").
			Return(dErrors.New(dErrors.CodeInvalidInput, "Invalid or expired token"))

		rec := s.do(http.MethodPost, UnlockPath, `{"email":"alice@example.com","token":"stale"}`, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "Invalid or expired token")
	})

	s.Run("missing token reported by the service", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com", "").
			Return(dErrors.New(dErrors.CodeBadRequest, "Missing email or token"))

		rec := s.do(http.MethodPost, UnlockPath, `{"email":"alice@example.com"}`, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "Missing email or token")
	})

	s.Run("malformed email rejected before the service", func() {
		rec := s.do(http.MethodPost, UnlockPath, `{"email":"nope","token":"tok"}`, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("invalid json", func() {
		rec := s.do(http.MethodPost, UnlockPath, `not json`, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestUnlockLink() {
	s.Run("redirects to login on success", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com", "tok").Return(nil)

		rec := s.do(http.MethodGet, UnlockPath+"?email=alice%40example.com&token=tok", "", nil)
		s.Equal(http.StatusSeeOther, rec.Code)
		s.Equal(UnlockedRedirect, rec.Header().Get("Location"))
	})

	s.Run("returns the error otherwise", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com", "bad").
			Return(dErrors.New(dErrors.CodeInvalidInput, "Invalid or expired token"))

		rec := s.do(http.MethodGet, UnlockPath+"?email=alice%40example.com&token=bad", "", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Empty(rec.Header().Get("Location"))
	})
}

func (s *HandlerSuite) TestAuthTrafficGoesThroughGate() {
	s.Equal(http.StatusTeapot, s.do(http.MethodPost, "/api/auth/sign-in/email", `{}`, nil).Code)
	s.Equal(http.StatusTeapot, s.do(http.MethodGet, "/api/auth/session", "", nil).Code)
	s.Equal(2, s.gateHits)
}

func (s *HandlerSuite) TestIssueUnlockToken() {
	expires := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)

	s.Run("requires the admin token", func() {
		rec := s.do(http.MethodPost, "/admin/login-protection/unlock-tokens", `{"email":"alice@example.com"}`, nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("issues a token with the actor", func() {
		s.unlocker.EXPECT().CreateToken(gomock.Any(), "alice@example.com", "ops-7").
			Return(&models.UnlockToken{Token: "abc123", ExpiresAt: expires}, nil)

		rec := s.do(http.MethodPost, "/admin/login-protection/unlock-tokens", `{"email":"Alice@Example.com"}`, map[string]string{
			admin.HeaderAdminToken: adminToken,
			"X-Admin-Actor-ID":     "ops-7",
		})
		s.Require().Equal(http.StatusCreated, rec.Code)

		var body IssueUnlockTokenResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("abc123", body.Token)
		s.Equal(UnlockPath+"?email=alice%40example.com&token=abc123", body.UnlockURL)
		s.True(expires.Equal(body.ExpiresAt))
	})

	s.Run("rejects a missing email", func() {
		rec := s.do(http.MethodPost, "/admin/login-protection/unlock-tokens", `{}`, map[string]string{
			admin.HeaderAdminToken: adminToken,
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
