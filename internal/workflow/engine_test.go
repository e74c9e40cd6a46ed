package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/scmclt"
	"github.com/simplesurance/stagecoord/internal/store"
	"github.com/simplesurance/stagecoord/internal/workflow"
	"github.com/simplesurance/stagecoord/internal/workflow/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStep runs a test-provided function as step implementation.
type fakeStep struct {
	name    string
	applies atomic.Int32
	fn      func(ctx context.Context, ev *provider.Event) (*workflow.Outcome, error)
}

func (s *fakeStep) Apply(ctx context.Context, ev *provider.Event) (*workflow.Outcome, error) {
	s.applies.Add(1)
	return s.fn(ctx, ev)
}

func (s *fakeStep) Name() string           { return s.name }
func (s *fakeStep) DetailedString() string { return "Step: " + s.name }

func succeedingStep(name string) *fakeStep {
	return &fakeStep{
		name: name,
		fn: func(_ context.Context, _ *provider.Event) (*workflow.Outcome, error) {
			return &workflow.Outcome{
				Step:    name,
				Status:  workflow.OutcomeSuccess,
				Message: "done",
			}, nil
		},
	}
}

func failingStep(name string, err error) *fakeStep {
	return &fakeStep{
		name: name,
		fn: func(_ context.Context, _ *provider.Event) (*workflow.Outcome, error) {
			return nil, err
		},
	}
}

func engineEvent() *provider.Event {
	ev := prEvent(provider.ActionOpened)
	ev.JSON = []byte(`{"action": "opened"}`)

	return ev
}

func matchAllWorkflow(t *testing.T, steps ...workflow.Step) *workflow.Workflow {
	t.Helper()

	wf, err := workflow.New("test-workflow", "github", "true", steps)
	require.NoError(t, err)

	return wf
}

// startEngine runs the engine in a go-routine and registers its shutdown as
// cleanup.
func startEngine(t *testing.T, e *workflow.Engine) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		defer close(done)
		e.Start()
	}()

	t.Cleanup(func() {
		e.Stop()
		<-done
	})
}

func waitForFinalizedRun(t *testing.T, mem *store.Memory, deliveryID string) *workflow.AutomationRun {
	t.Helper()

	var run *workflow.AutomationRun

	require.Eventually(t, func() bool {
		runs, err := mem.RunsByDeliveryID(context.Background(), deliveryID)
		if err != nil || len(runs) != 1 {
			return false
		}

		if runs[0].FinalizedAt.IsZero() {
			return false
		}

		run = runs[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return run
}

func TestEngineExecutesMatchingWorkflow(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	step1 := succeedingStep("branch")
	step2 := succeedingStep("trigger_build")

	reporter.EXPECT().ReportStatus(
		gomock.Any(), "acme", "transmission", testSHA,
		scmclt.StatusPending, "stagecoord/automation", gomock.Any(),
	).Return(nil)
	reporter.EXPECT().ReportStatus(
		gomock.Any(), "acme", "transmission", testSHA,
		scmclt.StatusSuccess, "stagecoord/automation", gomock.Any(),
	).Return(nil)

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, step1, step2)},
		mem,
		reporter,
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	run := waitForFinalizedRun(t, mem, "delivery-1")

	assert.Equal(t, workflow.RunSuccess, run.Status)
	assert.Equal(t, "test-workflow", run.Workflow)
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, "branch", run.Outcomes[0].Step)
	assert.Equal(t, "trigger_build", run.Outcomes[1].Step)
	assert.Contains(t, run.ResponseBody, "branch: success")
}

func TestEngineContinuesAfterFailingStep(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	step1 := failingStep("branch", errors.New("backend exploded"))
	step2 := succeedingStep("trigger_build")

	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		scmclt.StatusPending, gomock.Any(), gomock.Any(),
	).Return(nil)
	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		scmclt.StatusFailure, gomock.Any(), gomock.Any(),
	).Return(nil)

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, step1, step2)},
		mem,
		reporter,
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	run := waitForFinalizedRun(t, mem, "delivery-1")

	// a failed step is recorded and the run continues with the next step
	assert.Equal(t, workflow.RunFail, run.Status)
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, workflow.OutcomeFail, run.Outcomes[0].Status)
	assert.Equal(t, "backend exploded", run.Outcomes[0].Message)
	assert.Equal(t, workflow.OutcomeSuccess, run.Outcomes[1].Status)
	assert.Equal(t, int32(1), step2.applies.Load())
}

func TestEngineTerminatesRunOnRejectedCredential(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	step1 := failingStep("branch", fmt.Errorf("posting status: %w", scmclt.ErrUnauthorized))
	step2 := succeedingStep("trigger_build")

	// only the initial pending status is posted, the finalization status
	// is skipped because the credential is known to be rejected
	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		scmclt.StatusPending, gomock.Any(), gomock.Any(),
	).Return(nil)

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, step1, step2)},
		mem,
		reporter,
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	run := waitForFinalizedRun(t, mem, "delivery-1")

	assert.Equal(t, workflow.RunFail, run.Status)
	assert.Contains(t, run.ResponseBody, "rotate the configured token")
	assert.Equal(t, int32(0), step2.applies.Load(), "remaining steps are skipped")
}

func TestEngineFailsRunWhenPendingStatusIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	step1 := succeedingStep("branch")

	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		scmclt.StatusPending, gomock.Any(), gomock.Any(),
	).Return(scmclt.ErrUnauthorized)

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, step1)},
		mem,
		reporter,
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	run := waitForFinalizedRun(t, mem, "delivery-1")

	assert.Equal(t, workflow.RunFail, run.Status)
	assert.Equal(t, int32(0), step1.applies.Load(), "no step runs without a valid credential")
}

func TestEngineDiscardsInvalidEnvelopes(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	step := succeedingStep("branch")

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, step)},
		mem,
		reporter,
	)

	done := make(chan struct{})

	go func() {
		defer close(done)
		e.Start()
	}()

	ev := engineEvent()
	ev.PullRequestNr = 0

	e.C() <- ev
	e.Stop()
	<-done

	runs, err := mem.RunsByDeliveryID(context.Background(), "delivery-1")
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, int32(0), step.applies.Load())
}

func TestEnginePublishesFinalizedRunsToAudit(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	audit := mocks.NewMockPublisher(ctrl)
	mem := store.NewMemory()

	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		gomock.Any(), gomock.Any(), gomock.Any(),
	).Return(nil).AnyTimes()

	published := make(chan *workflow.AutomationRun, 1)

	audit.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, run *workflow.AutomationRun) error {
			published <- run
			return nil
		})

	e := workflow.NewEngine(
		workflow.Workflows{matchAllWorkflow(t, succeedingStep("branch"))},
		mem,
		reporter,
		workflow.WithAuditPublisher(audit),
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	select {
	case run := <-published:
		assert.Equal(t, workflow.RunSuccess, run.Status)
		assert.Equal(t, "delivery-1", run.DeliveryID)
	case <-time.After(5 * time.Second):
		t.Fatal("no run was published to the audit stream")
	}
}

func TestEngineSkipsNonMatchingWorkflows(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockStatusReporter(ctrl)
	mem := store.NewMemory()

	matched := succeedingStep("matched")
	skippedFilter := succeedingStep("skipped-filter")
	skippedSource := succeedingStep("skipped-source")

	wfMatch := matchAllWorkflow(t, matched)

	wfFilter, err := workflow.New("filter-mismatch", "github", "false", []workflow.Step{skippedFilter})
	require.NoError(t, err)

	wfSource, err := workflow.New("source-mismatch", "gitlab", "true", []workflow.Step{skippedSource})
	require.NoError(t, err)

	reporter.EXPECT().ReportStatus(
		gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		gomock.Any(), gomock.Any(), gomock.Any(),
	).Return(nil).AnyTimes()

	e := workflow.NewEngine(
		workflow.Workflows{wfMatch, wfFilter, wfSource},
		mem,
		reporter,
	)
	startEngine(t, e)

	e.C() <- engineEvent()

	run := waitForFinalizedRun(t, mem, "delivery-1")

	assert.Equal(t, "test-workflow", run.Workflow)
	assert.Equal(t, int32(1), matched.applies.Load())
	assert.Equal(t, int32(0), skippedFilter.applies.Load())
	assert.Equal(t, int32(0), skippedSource.applies.Load())
}
