package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
)

// AdminMiddlewareSuite tests the operator token guard.
//
// Justification: unlock-token issuance bypasses the lockout, so a wrong or
// missing token must never reach the handler.
type AdminMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *AdminMiddlewareSuite) serve(expected, supplied, actor string) (int, bool, string) {
	reached := false
	var gotActor string
	handler := RequireAdminToken(expected, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		gotActor = ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/login-protection/unlock-tokens", nil)
	if supplied != "" {
		req.Header.Set(HeaderAdminToken, supplied)
	}
	if actor != "" {
		req.Header.Set("X-Admin-Actor-ID", actor)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code, reached, gotActor
}

func (s *AdminMiddlewareSuite) TestTokenValidation() {
	s.Run("correct token reaches handler with actor", func() {
		code, reached, actor := s.serve("secret", "secret", "ops-1")
		s.Equal(http.StatusNoContent, code)
		s.True(reached)
		s.Equal("ops-1", actor)
	})

	s.Run("wrong token is rejected", func() {
		code, reached, _ := s.serve("secret", "guess", "")
		s.Equal(http.StatusUnauthorized, code)
		s.False(reached)
	})

	s.Run("missing token is rejected", func() {
		code, reached, _ := s.serve("secret", "", "")
		s.Equal(http.StatusUnauthorized, code)
		s.False(reached)
	})

	s.Run("empty configured token disables the route", func() {
		code, reached, _ := s.serve("", "", "")
		s.Equal(http.StatusUnauthorized, code)
		s.False(reached)
	})
}
