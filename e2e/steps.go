package e2e

import (
	"github.com/cucumber/godog"

	"hatchery/e2e/steps/registry"
)

// RegisterSteps wires every step package into the scenario context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	registry.RegisterSteps(ctx, tc)
}
