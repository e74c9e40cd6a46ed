package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/maputils"
	"github.com/simplesurance/stagecoord/internal/provider"
)

const configureRepositoriesStepName = "configure_repositories"

// ConfigureRepositoriesStep associates one build repository with the
// envelope-derived container project.
// Workflows that need multiple repositories configure one step per
// repository.
type ConfigureRepositoriesStep struct {
	clt    BuildClient
	subs   SubscriptionManager
	logger *zap.Logger

	targetPrefix   string
	repository     string
	architectures  []string
	pathProject    string
	pathRepository string
}

// NewConfigureRepositoriesStepFromMap instantiates the step from a
// configuration map with the keys target_prefix, repository, architectures,
// path_project and path_repository.
func NewConfigureRepositoriesStepFromMap(clt BuildClient, subs SubscriptionManager, m map[string]any) (*ConfigureRepositoriesStep, error) {
	targetPrefix, err := maputils.StrVal(m, "target_prefix")
	if err != nil {
		return nil, err
	}

	repository, err := maputils.StrVal(m, "repository")
	if err != nil {
		return nil, err
	}

	architectures, err := maputils.StrSliceVal(m, "architectures")
	if err != nil {
		return nil, err
	}

	pathProject, err := maputils.StrVal(m, "path_project")
	if err != nil {
		return nil, err
	}

	pathRepository, err := maputils.StrVal(m, "path_repository")
	if err != nil {
		return nil, err
	}

	if targetPrefix == "" || repository == "" || pathProject == "" || pathRepository == "" {
		return nil, NewValidationError(
			"configure_repositories step requires target_prefix, repository, path_project and path_repository")
	}

	return &ConfigureRepositoriesStep{
		clt:            clt,
		subs:           subs,
		logger:         zap.L().Named(loggerName).Named(configureRepositoriesStepName),
		targetPrefix:   targetPrefix,
		repository:     repository,
		architectures:  architectures,
		pathProject:    pathProject,
		pathRepository: pathRepository,
	}, nil
}

func (s *ConfigureRepositoriesStep) Name() string { return configureRepositoriesStepName }

func (s *ConfigureRepositoriesStep) Apply(ctx context.Context, ev *provider.Event) (*Outcome, error) {
	target, err := TargetProject(s.targetPrefix, ev)
	if err != nil {
		return nil, err
	}

	switch {
	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionClosed:
		return s.remove(ctx, target)

	case ev.EventType == provider.EventTypePullRequest && ev.Action == provider.ActionReopened:
		// the restore of the container brings its repository
		// configuration back, nothing to do here
		return &Outcome{
			Step:    configureRepositoriesStepName,
			Status:  OutcomeSuccess,
			Message: "nothing to configure on reopen",
			Target:  target,
		}, nil

	default:
		return s.ensure(ctx, target)
	}
}

// ensure inserts or replaces the configured repository association, existing
// associations for other repositories are kept untouched.
func (s *ConfigureRepositoriesStep) ensure(ctx context.Context, target string) (*Outcome, error) {
	existing, err := s.clt.Repositories(ctx, target)
	if err != nil && !errors.Is(err, buildclt.ErrNotFound) {
		return nil, err
	}

	repo := buildclt.Repository{
		Name:          s.repository,
		Architectures: s.architectures,
		Paths: []buildclt.RepositoryPath{
			{Project: s.pathProject, Repository: s.pathRepository},
		},
	}

	repos := make([]buildclt.Repository, 0, len(existing)+1)

	for _, r := range existing {
		if r.Name == s.repository {
			continue
		}

		repos = append(repos, r)
	}

	repos = append(repos, repo)

	if err := s.clt.SetRepositories(ctx, target, repos); err != nil {
		return nil, err
	}

	archs := s.architectures
	if len(archs) == 0 {
		archs = []string{""}
	}

	for _, arch := range archs {
		if err := s.subs.Subscribe(ctx, target, s.repository, arch); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("repository association configured",
		logfields.Event("repository_association_configured"),
		logfields.Project(target),
		zap.String("repository", s.repository),
	)

	return &Outcome{
		Step:    configureRepositoriesStepName,
		Status:  OutcomeSuccess,
		Message: "configured repository " + s.repository,
		Target:  target,
	}, nil
}

func (s *ConfigureRepositoriesStep) remove(ctx context.Context, target string) (*Outcome, error) {
	existing, err := s.clt.Repositories(ctx, target)
	if err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			return &Outcome{
				Step:    configureRepositoriesStepName,
				Status:  OutcomeSuccess,
				Message: "target is gone, nothing to remove",
				Target:  target,
			}, nil
		}

		return nil, err
	}

	repos := make([]buildclt.Repository, 0, len(existing))

	for _, r := range existing {
		if r.Name == s.repository {
			continue
		}

		repos = append(repos, r)
	}

	if len(repos) != len(existing) {
		if err := s.clt.SetRepositories(ctx, target, repos); err != nil {
			return nil, err
		}
	}

	return &Outcome{
		Step:    configureRepositoriesStepName,
		Status:  OutcomeSuccess,
		Message: "removed repository " + s.repository,
		Target:  target,
	}, nil
}

func (s *ConfigureRepositoriesStep) String() string {
	return configureRepositoriesStepName
}

func (s *ConfigureRepositoriesStep) DetailedString() string {
	return fmt.Sprintf("Step: %s\nTargetPrefix: %s\nRepository: %s\nArchitectures: %s\nPath: %s/%s",
		configureRepositoriesStepName, s.targetPrefix, s.repository,
		strings.Join(s.architectures, ", "), s.pathProject, s.pathRepository)
}
