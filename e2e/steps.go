package e2e

import (
	"github.com/cucumber/godog"

	"tokencore/e2e/steps/common"
	"tokencore/e2e/steps/core"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (status and response assertions)
	common.RegisterSteps(ctx, tc)

	// Register core steps (registry, ledger, audit)
	core.RegisterSteps(ctx, tc)
}
