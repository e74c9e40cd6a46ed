package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/scmclt"
)

const DefEventChannelBufferSize = 512
const DefRetryTimeout = 2 * time.Hour

const loggerName = "workflow"

// runStatusContext is the status context of the run-level commit status
// posted at run start and finalization.
const runStatusContext = "stagecoord/automation"

// credentialRotationMsg is recorded on runs that were terminated because the
// provider rejected the configured credential.
const credentialRotationMsg = "scm rejected the api credential, rotate the configured token"

// Publisher publishes finalized runs to the audit stream.
type Publisher interface {
	Publish(ctx context.Context, run *AutomationRun) error
}

// Engine receives events and executes the steps of matching workflows.
// Runs are executed asynchronously in go-routines, one per matched workflow
// per delivery. Steps inside a run execute sequentially and commit their
// effects independently, a failing step does not roll back earlier ones.
type Engine struct {
	ch        chan *provider.Event
	logger    *zap.Logger
	workflows Workflows
	runs      RunStore
	reporter  StatusReporter

	audit           Publisher
	statusTargetURL string

	runWg      sync.WaitGroup
	runDeferFn func()
	retryer    *Retryer
}

// WithRunRoutineDeferFunc sets a function to be run when a go-routine that
// executes a run returns.
// It can be used to set a panic handler.
func WithRunRoutineDeferFunc(fn func()) func(*Engine) {
	return func(e *Engine) {
		e.runDeferFn = fn
	}
}

// WithAuditPublisher publishes every finalized run to the publisher.
func WithAuditPublisher(p Publisher) func(*Engine) {
	return func(e *Engine) {
		e.audit = p
	}
}

// WithStatusTargetURL sets the base url that posted commit statuses link to.
func WithStatusTargetURL(url string) func(*Engine) {
	return func(e *Engine) {
		e.statusTargetURL = strings.TrimSuffix(url, "/")
	}
}

func NewEngine(workflows Workflows, runs RunStore, reporter StatusReporter, opts ...func(*Engine)) *Engine {
	e := Engine{
		ch:        make(chan *provider.Event, DefEventChannelBufferSize),
		workflows: workflows,
		runs:      runs,
		reporter:  reporter,
		retryer:   NewRetryer(DefRetryTimeout),
	}

	for _, opt := range opts {
		opt(&e)
	}

	if e.logger == nil {
		e.logger = zap.L().Named(loggerName)
	}

	return &e
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *Engine) C() chan<- *provider.Event {
	return e.ch
}

func (e *Engine) Start() {
	ctx := context.Background()
	e.logger.Info("ready to process events", logfields.Event("engine_started"))

	for ev := range e.ch {
		logger := e.logger.With(ev.LogFields...)

		logger.Debug("event received", logfields.Event("event_received"))
		metrics.ProcessedDeliveriesInc()

		if err := ev.Validate(); err != nil {
			logger.Error(
				"discarding invalid envelope",
				logfields.Event("envelope_invalid"),
				zap.Error(err),
			)

			continue
		}

		for _, workflow := range e.workflows {
			logger := logger.With(logfields.Workflow(workflow.Name()))

			match, err := workflow.Match(ctx, ev)
			if err != nil {
				logger.Error(
					"matching workflow failed",
					logfields.Event("workflow_matching_failed"),
					zap.Error(err),
				)
				continue
			}

			logger.Debug(
				"evaluated result of matching event with workflow",
				logfields.Event("workflow_match_result_evaluated"),
				zap.String("match_result", match.String()),
			)

			switch match {
			case Match:
			case EventSourceMismatch, FilterMismatch:
				continue
			case MatchResultUndefined:
				logger.Error(
					"match returned invalid result",
					logfields.Event("workflow_match_invalid_result"),
					zap.String("match_result", match.String()),
				)
				continue
			default:
				logger.Panic(
					"match returned undefined MatchResult enum value",
					zap.Int("match_result_int", int(match)),
				)
			}

			e.scheduleRun(ctx, workflow, ev)
		}
	}

	e.logger.Info(
		"engine terminated, event channel was closed",
		logfields.Event("engine_terminated"),
	)
}

func (e *Engine) scheduleRun(ctx context.Context, workflow *Workflow, ev *provider.Event) {
	e.runWg.Add(1)

	go func() {
		if e.runDeferFn != nil {
			defer e.runDeferFn()
		}

		defer e.runWg.Done()

		e.processRun(ctx, workflow, ev)
	}()
}

// processRun records an AutomationRun for the delivery and executes the
// workflow steps sequentially.
// Every step outcome is appended to the ledger before the next step starts,
// a crash mid-run leaves an inspectable pending run behind.
func (e *Engine) processRun(ctx context.Context, workflow *Workflow, ev *provider.Event) {
	run := &AutomationRun{
		ID:         uuid.NewString(),
		Workflow:   workflow.Name(),
		DeliveryID: ev.DeliveryID,
		EventType:  ev.EventType,
		Action:     ev.Action,
		Envelope:   ev.JSON,
		Status:     RunPending,
		CreatedAt:  time.Now(),
	}

	logger := e.logger.With(ev.LogFields...).With(
		logfields.Workflow(workflow.Name()),
		logfields.Run(run.ID),
	)

	if err := e.runs.CreateRun(ctx, run); err != nil {
		logger.Error(
			"recording automation run failed, workflow is skipped",
			logfields.Event("run_recording_failed"),
			zap.Error(err),
		)

		return
	}

	if err := e.reportRunStatus(ctx, logger, ev, run, scmclt.StatusPending); err != nil {
		e.finalizeRun(ctx, logger, ev, run, RunFail, credentialRotationMsg)
		return
	}

	failed := false

	for _, step := range workflow.Steps() {
		outcome, err := e.applyStep(ctx, step, ev)
		if err != nil {
			outcome = &Outcome{
				Step:    step.Name(),
				Status:  OutcomeFail,
				Message: err.Error(),
			}
		}

		metrics.StepOutcomeInc(step.Name(), outcome.Status)
		run.Outcomes = append(run.Outcomes, *outcome)

		if appendErr := e.runs.AppendOutcome(ctx, run.ID, outcome); appendErr != nil {
			logger.Error(
				"recording step outcome failed",
				logfields.Event("run_outcome_recording_failed"),
				logfields.Step(step.Name()),
				zap.Error(appendErr),
			)
		}

		if outcome.Status == OutcomeFail {
			failed = true
		}

		if err != nil && errors.Is(err, scmclt.ErrUnauthorized) {
			e.finalizeRun(ctx, logger, ev, run, RunFail, credentialRotationMsg)
			return
		}
	}

	status := RunSuccess
	if failed {
		status = RunFail
	}

	e.finalizeRun(ctx, logger, ev, run, status, summarizeOutcomes(run.Outcomes))
}

// applyStep executes one step, retrying retryable failures until the retry
// timeout expires.
func (e *Engine) applyStep(ctx context.Context, step Step, ev *provider.Event) (*Outcome, error) {
	var outcome *Outcome

	err := e.retryer.Run(
		ctx,
		func(ctx context.Context) error {
			var err error

			outcome, err = step.Apply(ctx, ev)
			return err
		},
		append(ev.LogFields, logfields.Step(step.Name())),
	)

	return outcome, err
}

func (e *Engine) finalizeRun(ctx context.Context, logger *zap.Logger, ev *provider.Event, run *AutomationRun, status RunStatus, responseBody string) {
	run.Status = status
	run.ResponseBody = responseBody
	run.FinalizedAt = time.Now()

	if err := e.runs.FinalizeRun(ctx, run.ID, status, responseBody, run.FinalizedAt); err != nil {
		logger.Error(
			"finalizing automation run failed",
			logfields.Event("run_finalizing_failed"),
			zap.Error(err),
		)
	}

	scmState := scmclt.StatusSuccess
	if status != RunSuccess {
		scmState = scmclt.StatusFailure
	}

	// a rejected credential already terminated the run, posting another
	// status with it cannot succeed
	if responseBody != credentialRotationMsg {
		_ = e.reportRunStatus(ctx, logger, ev, run, scmState)
	}

	if e.audit != nil {
		if err := e.audit.Publish(ctx, run); err != nil {
			logger.Error(
				"publishing run to audit stream failed",
				logfields.Event("run_audit_publishing_failed"),
				zap.Error(err),
			)
		}
	}

	metrics.RunFinalizedInc(status)

	logger.Info(
		"automation run finalized",
		logfields.Event("run_finalized"),
		zap.String("run_status", string(status)),
	)
}

// reportRunStatus posts the run-level commit status.
// Transport failures are logged and swallowed, only a rejected credential is
// returned.
func (e *Engine) reportRunStatus(ctx context.Context, logger *zap.Logger, ev *provider.Event, run *AutomationRun, state string) error {
	owner, repo, err := splitRepoName(ev.TargetRepositoryFullName)
	if err != nil || ev.CommitSHA == "" {
		return nil
	}

	targetURL := ""
	if e.statusTargetURL != "" {
		targetURL = fmt.Sprintf("%s/runs/%s", e.statusTargetURL, run.ID)
	}

	err = e.reporter.ReportStatus(ctx, owner, repo, ev.CommitSHA, state, runStatusContext, targetURL)
	if err != nil {
		if errors.Is(err, scmclt.ErrUnauthorized) {
			logger.Error(
				"scm rejected the api credential",
				logfields.Event("scm_credential_rejected"),
				zap.Error(err),
			)

			return err
		}

		logger.Warn(
			"posting run status failed",
			logfields.Event("status_reporting_failed"),
			zap.Error(err),
		)
	}

	return nil
}

func summarizeOutcomes(outcomes []Outcome) string {
	var result strings.Builder

	for i, outcome := range outcomes {
		if i > 0 {
			result.WriteRune('\n')
		}

		fmt.Fprintf(&result, "%s: %s", outcome.Step, outcome.Status)

		if outcome.Message != "" {
			fmt.Fprintf(&result, " (%s)", outcome.Message)
		}
	}

	return result.String()
}

// Stop stops the engine and waits until all scheduled runs terminated.
// The event channel (Engine.C()) will be closed.
func (e *Engine) Stop() {
	e.logger.Debug("engine terminating", logfields.Event("engine_terminating"))
	close(e.ch)

	e.retryer.Stop()

	e.logger.Debug(
		"waiting for scheduled runs to terminate",
		logfields.Event("engine_terminating"),
	)
	e.runWg.Wait()

	e.logger.Info("engine terminated", logfields.Event("engine_terminated"))
}
