package common

import (
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers response assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the failure reason should be "([^"]*)"$`, steps.reasonShouldBe)
	ctx.Step(`^the result code should be (\d+)$`, steps.resultShouldBe)
	ctx.Step(`^the result code should not be (\d+)$`, steps.resultShouldNotBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) statusShouldBe(want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) reasonShouldBe(want string) error {
	v, err := s.tc.GetResponseField("reason")
	if err != nil {
		return err
	}
	if v != want {
		return fmt.Errorf("expected reason %q, got %v", want, v)
	}
	return nil
}

func (s *commonSteps) result() (int, error) {
	v, err := s.tc.GetResponseField("result")
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("result is not a number: %v", v)
	}
	return int(n), nil
}

func (s *commonSteps) resultShouldBe(want int) error {
	got, err := s.result()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected result %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) resultShouldNotBe(unwanted int) error {
	got, err := s.result()
	if err != nil {
		return err
	}
	if got == unwanted {
		return fmt.Errorf("result must not be %s", strconv.Itoa(unwanted))
	}
	return nil
}
