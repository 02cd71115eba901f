package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

type workflowScenario struct {
	machine *Machine
	lastErr error
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeWorkflowScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func initializeWorkflowScenario(sc *godog.ScenarioContext) {
	ws := &workflowScenario{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		ws.machine = nil
		ws.lastErr = nil
		return ctx, nil
	})

	sc.Step(`^a new REMS workflow$`, ws.newWorkflow)
	sc.Step(`^steps 1 through (\d+) are completed$`, ws.completeThrough)
	sc.Step(`^step (\d+) is completed on "([^"]*)"$`, ws.completeStep)
	sc.Step(`^the current step is (\d+)$`, ws.currentStepIs)
	sc.Step(`^step (\d+) was completed on "([^"]*)"$`, ws.completedOn)
	sc.Step(`^(\d+) steps are completed$`, ws.completedCount)
	sc.Step(`^the completion is rejected as out of order$`, ws.rejectedWith(domain.ErrOutOfOrderCompletion))
	sc.Step(`^the completion is rejected because the workflow is complete$`, ws.rejectedWith(domain.ErrWorkflowComplete))
	sc.Step(`^the workflow is complete$`, ws.isComplete)
}

func (ws *workflowScenario) newWorkflow() error {
	def, err := DefaultDefinition()
	if err != nil {
		return err
	}
	ws.machine = NewMachine(def)
	return nil
}

func (ws *workflowScenario) completeThrough(n int) error {
	start := domain.NewDate(2024, 1, 1)
	for i := 1; i <= n; i++ {
		if _, err := ws.machine.CompleteStep(i, start.AddDays(i)); err != nil {
			return fmt.Errorf("complete step %d: %w", i, err)
		}
	}
	return nil
}

func (ws *workflowScenario) completeStep(ordinal int, date string) error {
	on, err := domain.ParseDate(date)
	if err != nil {
		return err
	}
	_, ws.lastErr = ws.machine.CompleteStep(ordinal, on)
	return nil
}

func (ws *workflowScenario) currentStepIs(want int) error {
	if got := ws.machine.CurrentStep(); got != want {
		return fmt.Errorf("current step is %d, want %d", got, want)
	}
	return nil
}

func (ws *workflowScenario) completedOn(ordinal int, date string) error {
	want, err := domain.ParseDate(date)
	if err != nil {
		return err
	}
	got, ok := ws.machine.Snapshot().CompletionDates[ordinal]
	if !ok {
		return fmt.Errorf("step %d is not completed", ordinal)
	}
	if !got.Equal(want) {
		return fmt.Errorf("step %d completed on %s, want %s", ordinal, got, want)
	}
	return nil
}

func (ws *workflowScenario) completedCount(want int) error {
	if got := len(ws.machine.Snapshot().CompletedSteps); got != want {
		return fmt.Errorf("%d steps completed, want %d", got, want)
	}
	return nil
}

func (ws *workflowScenario) rejectedWith(target error) func() error {
	return func() error {
		if !errors.Is(ws.lastErr, target) {
			return fmt.Errorf("expected %v, got %v", target, ws.lastErr)
		}
		return nil
	}
}

func (ws *workflowScenario) isComplete() error {
	if !ws.machine.IsComplete() {
		return fmt.Errorf("workflow is not complete, current step %d", ws.machine.CurrentStep())
	}
	return nil
}
