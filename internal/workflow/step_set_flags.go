package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/maputils"
	"github.com/simplesurance/stagecoord/internal/provider"
)

const setFlagsStepName = "set_flags"

// SetFlagsStep upserts build and publish flags on the envelope-derived
// container project, e.g. to disable publishing of pull-request builds.
type SetFlagsStep struct {
	clt    BuildClient
	logger *zap.Logger

	targetPrefix string
	repository   string
	architecture string
	// flags maps a flag name to the status it is set to.
	flags map[string]string
}

// NewSetFlagsStepFromMap instantiates the step from a configuration map with
// the keys target_prefix, flags and the optional keys repository and
// architecture.
func NewSetFlagsStepFromMap(clt BuildClient, m map[string]any) (*SetFlagsStep, error) {
	targetPrefix, err := maputils.StrVal(m, "target_prefix")
	if err != nil {
		return nil, err
	}

	repository, err := maputils.StrVal(m, "repository")
	if err != nil {
		return nil, err
	}

	architecture, err := maputils.StrVal(m, "architecture")
	if err != nil {
		return nil, err
	}

	flagsMap, err := maputils.MapSliceVal(m, "flags")
	if err != nil {
		return nil, err
	}

	flags, err := maputils.ToStrMap(flagsMap)
	if err != nil {
		return nil, err
	}

	if targetPrefix == "" || len(flags) == 0 {
		return nil, NewValidationError("set_flags step requires target_prefix and a non-empty flags table")
	}

	return &SetFlagsStep{
		clt:          clt,
		logger:       zap.L().Named(loggerName).Named(setFlagsStepName),
		targetPrefix: targetPrefix,
		repository:   repository,
		architecture: architecture,
		flags:        flags,
	}, nil
}

func (s *SetFlagsStep) Name() string { return setFlagsStepName }

func (s *SetFlagsStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	target, err := TargetProject(s.targetPrefix, ev)
	if err != nil {
		return nil, err
	}

	if ev.EventType == provider.EventTypePullRequest &&
		(ev.Action == provider.ActionClosed || ev.Action == provider.ActionReopened) {
		return &Outcome{
			Step:    setFlagsStepName,
			Status:  OutcomeSuccess,
			Message: "no flags changed for " + ev.Action,
			Target:  target,
		}, nil
	}

	for _, flag := range s.sortedFlagNames() {
		if err := s.clt.SetFlag(ctx, target, flag, s.flags[flag], s.repository, s.architecture); err != nil {
			return nil, fmt.Errorf("setting flag %q failed: %w", flag, err)
		}
	}

	s.logger.Debug("flags set",
		logfields.Event("project_flags_set"),
		logfields.Project(target),
		zap.Int("flag_count", len(s.flags)),
	)

	return &Outcome{
		Step:    setFlagsStepName,
		Status:  OutcomeSuccess,
		Message: fmt.Sprintf("set %d flags", len(s.flags)),
		Target:  target,
	}, nil
}

func (s *SetFlagsStep) sortedFlagNames() []string {
	names := make([]string, 0, len(s.flags))
	for name := range s.flags {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (s *SetFlagsStep) String() string {
	return setFlagsStepName
}

func (s *SetFlagsStep) DetailedString() string {
	var flags strings.Builder

	for _, name := range s.sortedFlagNames() {
		fmt.Fprintf(&flags, "\n  %s=%s", name, s.flags[name])
	}

	return fmt.Sprintf("Step: %s\nTargetPrefix: %s\nFlags:%s",
		setFlagsStepName, s.targetPrefix, flags.String())
}
