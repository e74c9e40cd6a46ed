package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/maputils"
	"github.com/simplesurance/stagecoord/internal/provider"
)

const linkStepName = "link"

// LinkStep creates a package in the envelope-derived container project that
// references the source package via a link file instead of copying its
// sources.
type LinkStep struct {
	clt      BuildClient
	subs     SubscriptionManager
	reporter StatusReporter
	logger   *zap.Logger

	sourceProject string
	sourcePackage string
	targetPrefix  string
}

func NewLinkStepFromMap(clt BuildClient, subs SubscriptionManager, reporter StatusReporter, m map[string]any) (*LinkStep, error) {
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
		return nil, NewValidationError("link step requires source_project, source_package and target_prefix")
	}

	return &LinkStep{
		clt:           clt,
		subs:          subs,
		reporter:      reporter,
		logger:        zap.L().Named(loggerName).Named(linkStepName),
		sourceProject: sourceProject,
		sourcePackage: sourcePackage,
		targetPrefix:  targetPrefix,
	}, nil
}

func (s *LinkStep) Name() string { return linkStepName }

func (s *LinkStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	target, err := TargetProject(s.targetPrefix, ev)
	if err != nil {
		return nil, err
	}

	switch {
	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionClosed:
		err := s.clt.DeleteProject(ctx, target)
		if err != nil && !errors.Is(err, buildclt.ErrNotFound) {
			return nil, err
		}

		if err := s.subs.Unsubscribe(ctx, target); err != nil {
			return nil, err
		}

		return &Outcome{Step: linkStepName, Status: OutcomeSuccess, Message: "target soft-deleted", Target: target}, nil

	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionReopened:
		err := s.clt.RestoreProject(ctx, target)
		if err != nil {
			if errors.Is(err, buildclt.ErrNotFound) {
				return s.ensure(ctx, ev, target)
			}

			return nil, err
		}

		if err := subscribeBuildTargets(ctx, s.subs, s.clt, target); err != nil {
			return nil, err
		}

		return &Outcome{Step: linkStepName, Status: OutcomeSuccess, Message: "target restored", Target: target}, nil

	default:
		return s.ensure(ctx, ev, target)
	}
}

func (s *LinkStep) ensure(ctx context.Context, ev *provider.Event, target string) (*Outcome, error) {
	message := "linked " + s.sourceProject + "/" + s.sourcePackage

	_, err := s.clt.GetPackage(ctx, target, s.sourcePackage)
	switch {
	case err == nil:
		message = "refreshed existing link target"

	case errors.Is(err, buildclt.ErrNotFound):
		err := s.clt.CreatePackage(ctx, target, s.sourcePackage)
		if err != nil && !errors.Is(err, buildclt.ErrAlreadyExists) {
			return nil, err
		}

	default:
		return nil, err
	}

	// the link file is derived from the configuration only, rewriting it
	// is idempotent
	src := buildclt.PackageRef{Project: s.sourceProject, Package: s.sourcePackage}
	if err := s.clt.WriteLink(ctx, target, s.sourcePackage, src); err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			return nil, fmt.Errorf("link source %s not found: %w", src, err)
		}

		return nil, err
	}

	if err := subscribeBuildTargets(ctx, s.subs, s.clt, target); err != nil {
		return nil, err
	}

	if err := reportBuildTargetsPending(ctx, s.reporter, s.clt, s.logger, ev, target); err != nil {
		return nil, err
	}

	s.logger.Debug("link target ensured",
		logfields.Event("link_target_ensured"),
		logfields.Project(target),
		logfields.Package(s.sourcePackage),
	)

	return &Outcome{Step: linkStepName, Status: OutcomeSuccess, Message: message, Target: target}, nil
}

func (s *LinkStep) String() string {
	return linkStepName
}

func (s *LinkStep) DetailedString() string {
	return fmt.Sprintf("Step: %s\nSource: %s/%s\nTargetPrefix: %s",
		linkStepName, s.sourceProject, s.sourcePackage, s.targetPrefix)
}
