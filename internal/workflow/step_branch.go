package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/maputils"
	"github.com/simplesurance/stagecoord/internal/provider"
)

const branchStepName = "branch"

// markerFilename is the file written into branched target packages, it
// records which delivery created the target.
const markerFilename = "_automation_origin"

// BranchStep branches a source package into a container project derived from
// the envelope and keeps the build-result subscriptions of the container in
// sync.
type BranchStep struct {
	clt      BuildClient
	subs     SubscriptionManager
	reporter StatusReporter
	logger   *zap.Logger

	sourceProject string
	sourcePackage string
	targetPrefix  string
}

// NewBranchStepFromMap instantiates the step from a configuration map with
// the keys source_project, source_package and target_prefix.
func NewBranchStepFromMap(clt BuildClient, subs SubscriptionManager, reporter StatusReporter, m map[string]any) (*BranchStep, error) {
	sourceProject, err := maputils.StrVal(m, "source_project")
	if err != nil {
		return nil, err
	}

	sourcePackage, err := maputils.StrVal(m, "source_package")
	if err != nil {
		return nil, err
	}

	targetPrefix, err := maputils.StrVal(m, "target_prefix")
	if err != nil {
		return nil, err
	}

	if sourceProject == "" || sourcePackage == "" || targetPrefix == "" {
		return nil, NewValidationError("branch step requires source_project, source_package and target_prefix")
	}

	return &BranchStep{
		clt:           clt,
		subs:          subs,
		reporter:      reporter,
		logger:        zap.L().Named(loggerName).Named(branchStepName),
		sourceProject: sourceProject,
		sourcePackage: sourcePackage,
		targetPrefix:  targetPrefix,
	}, nil
}

func (s *BranchStep) Name() string { return branchStepName }

func (s *BranchStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	target, err := TargetProject(s.targetPrefix, ev)
	if err != nil {
		return nil, err
	}

	switch {
	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionClosed:
		return s.teardown(ctx, target)

	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionReopened:
		return s.restore(ctx, ev, target)

	default:
		return s.ensure(ctx, ev, target)
	}
}

// ensure branches the source into the target, converging to the reuse path
// when the target already exists.
// Providers redeliver "synchronize" on every push to a PR branch, so the
// existing-target case is the common one, not an anomaly.
func (s *BranchStep) ensure(ctx context.Context, ev *provider.Event, target string) (*Outcome, error) {
	message := "branched " + s.sourceProject + "/" + s.sourcePackage

	existing, err := s.clt.GetPackage(ctx, target, s.sourcePackage)
	switch {
	case err == nil:
		if existing.BranchedFrom == nil ||
			existing.BranchedFrom.Project != s.sourceProject ||
			existing.BranchedFrom.Package != s.sourcePackage {
			return nil, fmt.Errorf("target %s/%s exists but is not branched from %s/%s",
				target, s.sourcePackage, s.sourceProject, s.sourcePackage)
		}

		message = "reused existing branch target"

	case errors.Is(err, buildclt.ErrNotFound):
		src := buildclt.PackageRef{Project: s.sourceProject, Package: s.sourcePackage}
		dst := buildclt.PackageRef{Project: target, Package: s.sourcePackage}

		err := s.clt.BranchPackage(ctx, src, dst)
		if err != nil {
			// a concurrent delivery for the same envelope won the
			// create, its target is ours too
			if errors.Is(err, buildclt.ErrAlreadyExists) {
				message = "reused existing branch target"
				break
			}

			if errors.Is(err, buildclt.ErrNotFound) {
				return nil, fmt.Errorf("branch source %s not found: %w", src, err)
			}

			return nil, err
		}

	default:
		return nil, err
	}

	if err := s.writeMarker(ctx, ev, target); err != nil {
		return nil, err
	}

	if err := subscribeBuildTargets(ctx, s.subs, s.clt, target); err != nil {
		return nil, err
	}

	if err := reportBuildTargetsPending(ctx, s.reporter, s.clt, s.logger, ev, target); err != nil {
		return nil, err
	}

	s.logger.Debug("branch target ensured",
		logfields.Event("branch_target_ensured"),
		logfields.Project(target),
		logfields.Package(s.sourcePackage),
	)

	return &Outcome{Step: branchStepName, Status: OutcomeSuccess, Message: message, Target: target}, nil
}

func (s *BranchStep) teardown(ctx context.Context, target string) (*Outcome, error) {
	err := s.clt.DeleteProject(ctx, target)
	if err != nil && !errors.Is(err, buildclt.ErrNotFound) {
		return nil, err
	}

	if err := s.subs.Unsubscribe(ctx, target); err != nil {
		return nil, err
	}

	return &Outcome{Step: branchStepName, Status: OutcomeSuccess, Message: "target soft-deleted", Target: target}, nil
}

func (s *BranchStep) restore(ctx context.Context, ev *provider.Event, target string) (*Outcome, error) {
	err := s.clt.RestoreProject(ctx, target)
	if err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			// nothing to restore, the reopened PR gets a fresh
			// branch instead
			return s.ensure(ctx, ev, target)
		}

		return nil, err
	}

	if err := subscribeBuildTargets(ctx, s.subs, s.clt, target); err != nil {
		return nil, err
	}

	return &Outcome{Step: branchStepName, Status: OutcomeSuccess, Message: "target restored", Target: target}, nil
}

// writeMarker records the originating delivery in the target package.
// The content is derived from the envelope only, refreshing it on duplicate
// deliveries is idempotent.
func (s *BranchStep) writeMarker(ctx context.Context, ev *provider.Event, target string) error {
	marker, err := json.Marshal(map[string]any{
		"scm":               ev.SCM,
		"event":             ev.EventType,
		"pull_request":      ev.PullRequestNr,
		"source_repository": ev.SourceRepositoryFullName,
		"commit":            ev.CommitSHA,
	})
	if err != nil {
		return err
	}

	return s.clt.WriteFile(ctx, target, s.sourcePackage, markerFilename, marker)
}

func (s *BranchStep) String() string {
	return branchStepName
}

func (s *BranchStep) DetailedString() string {
	return fmt.Sprintf("Step: %s\nSource: %s/%s\nTargetPrefix: %s",
		branchStepName, s.sourceProject, s.sourcePackage, s.targetPrefix)
}
