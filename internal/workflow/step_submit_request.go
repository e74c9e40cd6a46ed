package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/maputils"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/request"
)

const submitRequestStepName = "submit_request"

// SubmitRequestStep creates a submit change request when a pull request is
// merged, proposing the source package into the configured destination
// project.
// The merge state is verified against the provider instead of trusting the
// payload flag, closed-event deliveries can race with the merge itself.
type SubmitRequestStep struct {
	requests RequestCreator
	merges   MergeChecker
	logger   *zap.Logger

	actor         string
	sourceProject string
	sourcePackage string
	targetProject string
}

// NewSubmitRequestStepFromMap instantiates the step from a configuration map
// with the keys source_project, source_package, target_project and the
// optional key actor.
func NewSubmitRequestStepFromMap(requests RequestCreator, merges MergeChecker, m map[string]any) (*SubmitRequestStep, error) {
	sourceProject, err := maputils.StrVal(m, "source_project")
	if err != nil {
		return nil, err
	}

	sourcePackage, err := maputils.StrVal(m, "source_package")
	if err != nil {
		return nil, err
	}

	targetProject, err := maputils.StrVal(m, "target_project")
	if err != nil {
		return nil, err
	}

	actor, err := maputils.StrVal(m, "actor")
	if err != nil {
		return nil, err
	}

	if sourceProject == "" || sourcePackage == "" || targetProject == "" {
		return nil, NewValidationError("submit_request step requires source_project, source_package and target_project")
	}

	if actor == "" {
		actor = "automation"
	}

	return &SubmitRequestStep{
		requests:      requests,
		merges:        merges,
		logger:        zap.L().Named(loggerName).Named(submitRequestStepName),
		actor:         actor,
		sourceProject: sourceProject,
		sourcePackage: sourcePackage,
		targetProject: targetProject,
	}, nil
}

func (s *SubmitRequestStep) Name() string { return submitRequestStepName }

func (s *SubmitRequestStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	if ev.EventType != provider.EventTypePullRequest || ev.Action != provider.ActionClosed {
		return &Outcome{
			Step:    submitRequestStepName,
			Status:  OutcomeSuccess,
			Message: "only merged pull requests are submitted",
		}, nil
	}

	merged, err := s.prMerged(ctx, ev)
	if err != nil {
		return nil, err
	}

	if !merged {
		return &Outcome{
			Step:    submitRequestStepName,
			Status:  OutcomeSuccess,
			Message: "pull request closed without merge, nothing submitted",
		}, nil
	}

	req, err := s.requests.Create(ctx, s.actor, request.CreateInput{
		Actions: []request.Action{
			{
				Type:          request.ActionSubmit,
				SourceProject: s.sourceProject,
				SourcePackage: s.sourcePackage,
				TargetProject: s.targetProject,
				TargetPackage: s.sourcePackage,
			},
		},
		Description: fmt.Sprintf("automatic submission of %s (PR %d, commit %s)",
			ev.SourceRepositoryFullName, ev.PullRequestNr, ev.CommitSHA),
		SupersedeExisting: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating submit request failed: %w", err)
	}

	s.logger.Info("submit request created",
		logfields.Event("submit_request_created"),
		logfields.Request(req.Number),
		logfields.Project(s.targetProject),
		logfields.Package(s.sourcePackage),
	)

	return &Outcome{
		Step:    submitRequestStepName,
		Status:  OutcomeSuccess,
		Message: fmt.Sprintf("created submit request %d", req.Number),
		Target:  s.targetProject,
	}, nil
}

// prMerged verifies the merge state with the provider, falling back to the
// payload flag when the envelope identifies no repository to query.
func (s *SubmitRequestStep) prMerged(ctx context.Context, ev *provider.Event) (bool, error) {
	owner, repo, err := splitRepoName(ev.TargetRepositoryFullName)
	if err != nil {
		return ev.Merged, nil
	}

	merged, err := s.merges.PRMerged(ctx, owner, repo, ev.PullRequestNr)
	if err != nil {
		return false, fmt.Errorf("querying merge state of %s#%d failed: %w",
			ev.TargetRepositoryFullName, ev.PullRequestNr, err)
	}

	return merged, nil
}

func (s *SubmitRequestStep) String() string {
	return submitRequestStepName
}

func (s *SubmitRequestStep) DetailedString() string {
	return fmt.Sprintf("Step: %s\nSource: %s/%s\nTargetProject: %s\nActor: %s",
		submitRequestStepName, s.sourceProject, s.sourcePackage, s.targetProject, s.actor)
}
