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

const triggerBuildStepName = "trigger_build"

// TriggerBuildStep schedules a rebuild of a package in the envelope-derived
// container project.
// It is typically configured after a configure_repositories step so that
// newly associated repositories start building without waiting for the next
// source change.
type TriggerBuildStep struct {
	clt    BuildClient
	logger *zap.Logger

	targetPrefix string
	pkg          string
}

func NewTriggerBuildStepFromMap(clt BuildClient, m map[string]any) (*TriggerBuildStep, error) {
	targetPrefix, err := maputils.StrVal(m, "target_prefix")
	if err != nil {
		return nil, err
	}

	pkg, err := maputils.StrVal(m, "package")
	if err != nil {
		return nil, err
	}

	if targetPrefix == "" || pkg == "" {
		return nil, NewValidationError("trigger_build step requires target_prefix and package")
	}

	return &TriggerBuildStep{
		clt:          clt,
		logger:       zap.L().Named(loggerName).Named(triggerBuildStepName),
		targetPrefix: targetPrefix,
		pkg:          pkg,
	}, nil
}

func (s *TriggerBuildStep) Name() string { return triggerBuildStepName }

func (s *TriggerBuildStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	target, err := TargetProject(s.targetPrefix, ev)
	if err != nil {
		return nil, err
	}

	if ev.EventType == provider.EventTypePullRequest &&
		(ev.Action == provider.ActionClosed || ev.Action == provider.ActionReopened) {
		return &Outcome{
			Step:    triggerBuildStepName,
			Status:  OutcomeSuccess,
			Message: "no build triggered for " + ev.Action,
			Target:  target,
		}, nil
	}

	if err := s.clt.Rebuild(ctx, target, s.pkg); err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			return nil, fmt.Errorf("build target %s/%s not found: %w", target, s.pkg, err)
		}

		return nil, err
	}

	s.logger.Debug("rebuild triggered",
		logfields.Event("rebuild_triggered"),
		logfields.Project(target),
		logfields.Package(s.pkg),
	)

	return &Outcome{
		Step:    triggerBuildStepName,
		Status:  OutcomeSuccess,
		Message: "rebuild of " + s.pkg + " triggered",
		Target:  target,
	}, nil
}

func (s *TriggerBuildStep) String() string {
	return triggerBuildStepName
}

func (s *TriggerBuildStep) DetailedString() string {
	return fmt.Sprintf("Step: %s\nTargetPrefix: %s\nPackage: %s",
		triggerBuildStepName, s.targetPrefix, s.pkg)
}
