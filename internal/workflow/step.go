package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/request"
	"github.com/simplesurance/stagecoord/internal/scmclt"
)

// OutcomeStatus is the status of one executed step.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFail    OutcomeStatus = "fail"
)

// Outcome records the result of one step execution on the AutomationRun.
type Outcome struct {
	Step    string
	Status  OutcomeStatus
	Message string
	// Target is the container project the step acted on, empty when the
	// step did not address one.
	Target string
}

// Step is one automation step of a workflow.
// Steps are idempotent, re-applying the same envelope must converge to the
// same target state.
type Step interface {
	// Apply executes the step for the envelope.
	// A returned error marks the step as failed; errors wrapping
	// retryerr.RetryableError are retried by the engine before the
	// failure becomes final.
	Apply(ctx context.Context, ev *provider.Event) (*Outcome, error)
	// Name returns the step type name used in configuration and
	// outcomes.
	Name() string
	// DetailedString returns a formatted multiline description.
	DetailedString() string
}

// BuildClient is the build backend interface the steps mutate targets
// through. buildclt.Client implements it.
type BuildClient interface {
	GetPackage(ctx context.Context, project, pkg string) (*buildclt.Package, error)
	BranchPackage(ctx context.Context, src, dst buildclt.PackageRef) error
	CreatePackage(ctx context.Context, project, pkg string) error
	WriteFile(ctx context.Context, project, pkg, filename string, content []byte) error
	WriteLink(ctx context.Context, project, pkg string, src buildclt.PackageRef) error
	Repositories(ctx context.Context, project string) ([]buildclt.Repository, error)
	SetRepositories(ctx context.Context, project string, repos []buildclt.Repository) error
	DeleteProject(ctx context.Context, project string) error
	RestoreProject(ctx context.Context, project string) error
	Rebuild(ctx context.Context, project, pkg string) error
	SetFlag(ctx context.Context, project, flag, status, repository, architecture string) error
}

// StatusReporter posts commit statuses to the source-control provider.
// scmclt.Client implements it.
type StatusReporter interface {
	ReportStatus(ctx context.Context, owner, repo, commitRef, state, statusContext, targetURL string) error
}

// MergeChecker answers whether a pull request was merged.
// scmclt.Client implements it.
type MergeChecker interface {
	PRMerged(ctx context.Context, owner, repo string, prNumber int) (bool, error)
}

// SubscriptionManager maintains the build-result subscriptions of target
// projects.
type SubscriptionManager interface {
	Subscribe(ctx context.Context, project, repository, architecture string) error
	// Unsubscribe removes all subscriptions of the project.
	Unsubscribe(ctx context.Context, project string) error
}

// RequestCreator creates change requests, request.Service implements it.
type RequestCreator interface {
	Create(ctx context.Context, actor string, in request.CreateInput) (*request.ChangeRequest, error)
}

// splitRepoName splits a repository full name ("owner/repo") into its owner
// and repository part.
func splitRepoName(fullName string) (owner, repo string, err error) {
	owner, repo, found := strings.Cut(fullName, "/")
	if !found || owner == "" || repo == "" {
		return "", "", fmt.Errorf("repository name %q does not have the format owner/name", fullName)
	}

	return owner, repo, nil
}

// reportBuildTargetsPending posts a pending status per repository and
// architecture of the target project.
// Status posting is best-effort, transport failures are logged and swallowed.
// Only an unauthorized credential is returned, it terminates the run.
func reportBuildTargetsPending(ctx context.Context, reporter StatusReporter, clt BuildClient, logger *zap.Logger, ev *provider.Event, target string) error {
	owner, repoName, err := splitRepoName(ev.TargetRepositoryFullName)
	if err != nil {
		return nil
	}

	repos, err := clt.Repositories(ctx, target)
	if err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			return nil
		}

		logger.Warn("listing repositories for status reporting failed",
			logfields.Event("status_reporting_failed"),
			logfields.Project(target),
			zap.Error(err),
		)

		return nil
	}

	for _, repo := range repos {
		archs := repo.Architectures
		if len(archs) == 0 {
			archs = []string{""}
		}

		for _, arch := range archs {
			statusContext := buildStatusContext(repo.Name, arch)

			err := reporter.ReportStatus(ctx, owner, repoName, ev.CommitSHA, scmclt.StatusPending, statusContext, "")
			if err != nil {
				if errors.Is(err, scmclt.ErrUnauthorized) {
					return err
				}

				logger.Warn("posting pending build status failed",
					logfields.Event("status_reporting_failed"),
					logfields.Project(target),
					zap.String("status_context", statusContext),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}

// subscribeBuildTargets creates a build-result subscription per repository
// and architecture of the target project. Re-subscribing is idempotent.
func subscribeBuildTargets(ctx context.Context, subs SubscriptionManager, clt BuildClient, target string) error {
	repos, err := clt.Repositories(ctx, target)
	if err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			return nil
		}

		return err
	}

	for _, repo := range repos {
		archs := repo.Architectures
		if len(archs) == 0 {
			archs = []string{""}
		}

		for _, arch := range archs {
			if err := subs.Subscribe(ctx, target, repo.Name, arch); err != nil {
				return err
			}
		}
	}

	return nil
}

func buildStatusContext(repository, architecture string) string {
	if architecture == "" {
		return "stagecoord/" + repository
	}

	return "stagecoord/" + repository + "/" + architecture
}
