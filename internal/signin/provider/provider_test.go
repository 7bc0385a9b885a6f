package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "afenda/pkg/domain-errors"
)

type ProviderSuite struct {
	suite.Suite
	upstream *httptest.Server
	handler  http.HandlerFunc
	provider *HTTPProvider
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))
	s.T().Cleanup(s.upstream.Close)

	target, err := url.Parse(s.upstream.URL)
	s.Require().NoError(err)
	s.provider, err = New(target)
	s.Require().NoError(err)
}

func (s *ProviderSuite) TestNewRequiresAbsoluteURL() {
	_, err := New(&url.URL{Path: "/relative"})
	s.Error(err)
	_, err = New(nil)
	s.Error(err)
}

func (s *ProviderSuite) TestForwardBuffersResponse() {
	var gotBody, gotPath, gotForwarded string
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotPath = r.URL.Path
		gotForwarded = r.Header.Get("X-Forwarded-For")
		w.Header().Set("Set-Cookie", "session=abc")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid credentials"}`)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/email", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.provider.Forward(context.Background(), req)
	s.Require().NoError(err)

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.False(resp.Success())
	s.JSONEq(`{"error":"invalid credentials"}`, string(resp.Body))
	s.Equal("session=abc", resp.Header.Get("Set-Cookie"))
	s.Equal(`{"email":"a@b.c"}`, gotBody)
	s.Equal("/api/auth/sign-in/email", gotPath)
	s.NotEmpty(gotForwarded)

	rec := httptest.NewRecorder()
	resp.WriteTo(rec)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("session=abc", rec.Header().Get("Set-Cookie"))
	s.JSONEq(`{"error":"invalid credentials"}`, rec.Body.String())
}

func (s *ProviderSuite) TestForwardSuccess() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}
	resp, err := s.provider.Forward(context.Background(), httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil))
	s.Require().NoError(err)
	s.True(resp.Success())
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *ProviderSuite) TestForwardTimeout() {
	release := make(chan struct{})
	defer close(release)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.provider.Forward(ctx, httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil))
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ProviderSuite) TestForwardCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.provider.Forward(ctx, httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil))
	s.ErrorIs(err, context.Canceled)
}

func (s *ProviderSuite) TestForwardUnreachable() {
	target, _ := url.Parse("http://127.0.0.1:1")
	p, err := New(target)
	s.Require().NoError(err)

	_, err = p.Forward(context.Background(), httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func (s *ProviderSuite) TestForwardRejectsOversizedBody() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, MaxResponseBytes+1))
	}
	_, err := s.provider.Forward(context.Background(), httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", nil))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func (s *ProviderSuite) TestServeHTTPStreamsPassThrough() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}
	rec := httptest.NewRecorder()
	s.provider.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/sign-up", nil))
	s.Equal(http.StatusCreated, rec.Code)
	s.Equal("created", rec.Body.String())
}

func (s *ProviderSuite) TestServeHTTPUnreachableIsBadGateway() {
	target, _ := url.Parse("http://127.0.0.1:1")
	p, err := New(target)
	s.Require().NoError(err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	s.Equal(http.StatusBadGateway, rec.Code)
}
