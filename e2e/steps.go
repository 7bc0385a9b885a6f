package e2e

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"afenda/e2e/steps/loginprotection"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the login protection gate is running$`, tc.gateIsRunning)

	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)

	loginprotection.RegisterSteps(ctx, tc, loginprotection.Credentials{
		CorrectPassword: CorrectPassword,
		ValidCaptcha:    ValidCaptcha,
		AdminToken:      AdminToken,
	})
}

func (tc *TestContext) gateIsRunning(context.Context) error {
	if tc.BaseURL == "" {
		return fmt.Errorf("gateway not started")
	}
	return nil
}

func (tc *TestContext) responseStatusShouldBe(_ context.Context, expected int) error {
	if got := tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) responseShouldContain(_ context.Context, text string) error {
	if !strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("expected response to contain %q, got %s", text, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(_ context.Context, field, expected string) error {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s=%q, got %v", field, expected, value)
	}
	return nil
}
