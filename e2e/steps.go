package e2e

import (
	"github.com/cucumber/godog"

	"udyam/e2e/steps/common"
	"udyam/e2e/steps/ratelimit"
	"udyam/e2e/steps/registration"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registration.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
