// Package loginprotection holds the sign-in gate step definitions.
package loginprotection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

const signInPath = "/api/auth/sign-in/email"

// TestContext is the part of the main test context the steps use.
type TestContext interface {
	POST(path string, body any) error
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	GetLastResponseBody() []byte
	SetClientIP(ip string)
	StopCounterStore()
	ProviderCalls() int
}

// Credentials used by the fake identity provider and CAPTCHA endpoint.
type Credentials struct {
	CorrectPassword string
	ValidCaptcha    string
	AdminToken      string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext, creds Credentials) {
	steps := &loginSteps{tc: tc, creds: creds}

	ctx.Step(`^I sign in from IP "([^"]*)"$`, steps.signInFromIP)
	ctx.Step(`^the counter store is unavailable$`, steps.counterStoreUnavailable)

	ctx.Step(`^I sign in as "([^"]*)" with password "([^"]*)"$`, steps.signInWithPassword)
	ctx.Step(`^I sign in as "([^"]*)" with the correct password$`, steps.signInCorrect)
	ctx.Step(`^I sign in as "([^"]*)" with the correct password and a valid captcha$`, steps.signInCorrectWithCaptcha)
	ctx.Step(`^I sign in as "([^"]*)" with password "([^"]*)" and captcha "([^"]*)" (\d+) times$`, steps.signInWithCaptchaNTimes)
	ctx.Step(`^I fail to sign in as "([^"]*)" (\d+) times$`, steps.failNTimes)
	ctx.Step(`^I fail to sign in as "([^"]*)" (\d+) times with a valid captcha$`, steps.failNTimesWithCaptcha)
	ctx.Step(`^(\d+) different accounts fail to sign in with a valid captcha$`, steps.distinctAccountsFail)

	ctx.Step(`^the Retry-After header should be between (\d+) and (\d+)$`, steps.retryAfterBetween)
	ctx.Step(`^the identity provider should have received (\d+) sign-in attempts$`, steps.providerReceived)
	ctx.Step(`^the readiness check should report "([^"]*)" down$`, steps.readinessReportsDown)

	ctx.Step(`^an operator issues an unlock token for "([^"]*)"$`, steps.operatorIssuesUnlockToken)
	ctx.Step(`^I follow the unlock link$`, steps.followUnlockLink)
}

type loginSteps struct {
	tc        TestContext
	creds     Credentials
	unlockURL string
}

func (s *loginSteps) signInFromIP(_ context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *loginSteps) counterStoreUnavailable(context.Context) error {
	s.tc.StopCounterStore()
	return nil
}

func (s *loginSteps) signIn(email, password, captchaToken string) error {
	body := map[string]string{"email": email, "password": password}
	if captchaToken != "" {
		body["captchaToken"] = captchaToken
	}
	return s.tc.POST(signInPath, body)
}

func (s *loginSteps) signInWithPassword(_ context.Context, email, password string) error {
	return s.signIn(email, password, "")
}

func (s *loginSteps) signInCorrect(_ context.Context, email string) error {
	return s.signIn(email, s.creds.CorrectPassword, "")
}

func (s *loginSteps) signInCorrectWithCaptcha(_ context.Context, email string) error {
	return s.signIn(email, s.creds.CorrectPassword, s.creds.ValidCaptcha)
}

func (s *loginSteps) signInWithCaptchaNTimes(_ context.Context, email, password, token string, n int) error {
	for range n {
		if err := s.signIn(email, password, token); err != nil {
			return err
		}
	}
	return nil
}

func (s *loginSteps) failNTimes(_ context.Context, email string, n int) error {
	return s.fail(email, n, "")
}

func (s *loginSteps) failNTimesWithCaptcha(_ context.Context, email string, n int) error {
	return s.fail(email, n, s.creds.ValidCaptcha)
}

// fail submits a wrong password n times and requires each to reach the
// identity provider.
func (s *loginSteps) fail(email string, n int, captchaToken string) error {
	for i := range n {
		if err := s.signIn(email, "wrong-password", captchaToken); err != nil {
			return err
		}
		if status := s.tc.GetLastResponseStatus(); status != 401 {
			return fmt.Errorf("failure %d for %s: expected 401 from the identity provider, got %d: %s",
				i+1, email, status, s.tc.GetLastResponseBody())
		}
	}
	return nil
}

func (s *loginSteps) distinctAccountsFail(_ context.Context, n int) error {
	for i := range n {
		if err := s.fail(fmt.Sprintf("user%02d@example.com", i), 1, s.creds.ValidCaptcha); err != nil {
			return err
		}
	}
	return nil
}

func (s *loginSteps) retryAfterBetween(_ context.Context, lo, hi int) error {
	raw := s.tc.GetLastResponseHeader("Retry-After")
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("Retry-After %q is not an integer", raw)
	}
	if v < lo || v > hi {
		return fmt.Errorf("expected Retry-After in [%d, %d], got %d", lo, hi, v)
	}
	field, err := s.tc.GetResponseField("retryAfterSeconds")
	if err != nil {
		return err
	}
	if n, ok := field.(float64); !ok || int(n) != v {
		return fmt.Errorf("body retryAfterSeconds %v does not match header %d", field, v)
	}
	return nil
}

func (s *loginSteps) providerReceived(_ context.Context, n int) error {
	if got := s.tc.ProviderCalls(); got != n {
		return fmt.Errorf("expected %d sign-in attempts at the identity provider, got %d", n, got)
	}
	return nil
}

func (s *loginSteps) readinessReportsDown(_ context.Context, check string) error {
	if err := s.tc.GET("/health/ready", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 503 {
		return fmt.Errorf("expected readiness 503, got %d", status)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return err
	}
	if !strings.HasPrefix(body.Checks[check], "down") {
		return fmt.Errorf("expected %s down, got %q", check, body.Checks[check])
	}
	return nil
}

func (s *loginSteps) operatorIssuesUnlockToken(_ context.Context, email string) error {
	err := s.tc.POSTWithHeaders("/admin/login-protection/unlock-tokens", map[string]string{"email": email}, map[string]string{
		"X-Admin-Token":    s.creds.AdminToken,
		"X-Admin-Actor-ID": "e2e-operator",
	})
	if err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("expected 201 issuing unlock token, got %d: %s", status, s.tc.GetLastResponseBody())
	}
	link, err := s.tc.GetResponseField("unlock_url")
	if err != nil {
		return err
	}
	s.unlockURL, _ = link.(string)
	return nil
}

func (s *loginSteps) followUnlockLink(context.Context) error {
	if s.unlockURL == "" {
		return fmt.Errorf("no unlock link issued")
	}
	return s.tc.GET(s.unlockURL, nil)
}
