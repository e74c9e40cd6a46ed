package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/request"
)

const loggerName = "staging"

// BatchStore persists batch membership.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, name string) (*Batch, error)
	DeleteBatch(ctx context.Context, name string) error
	// SetRequestBatch stages or unstages (batchName == "") a request.
	SetRequestBatch(ctx context.Context, requestNumber int64, batchName string) error
	// StagedRequests returns the change requests staged in the batch.
	StagedRequests(ctx context.Context, batchName string) ([]*request.ChangeRequest, error)
}

// CheckStore persists check results keyed by (report uuid, name).
type CheckStore interface {
	UpsertCheckResult(ctx context.Context, result *CheckResult) error
	// CheckResultsForTarget returns all stored results for the target,
	// including results of superseded builds. Staleness is decided by
	// the caller against the current report uuid.
	CheckResultsForTarget(ctx context.Context, project, repository, architecture string) ([]*CheckResult, error)
}

// ReportResolver returns the publish report of the latest build of a
// target. buildclt.Client implements it.
type ReportResolver interface {
	CurrentReport(ctx context.Context, project, repository, architecture string) (*buildclt.PublishReport, error)
	Repositories(ctx context.Context, project string) ([]buildclt.Repository, error)
}

type Service struct {
	batches BatchStore
	checks  CheckStore
	reports ReportResolver
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(batches BatchStore, checks CheckStore, reports ReportResolver) *Service {
	return &Service{
		batches: batches,
		checks:  checks,
		reports: reports,
		logger:  zap.L().Named(loggerName),
		now:     time.Now,
	}
}

// CreateBatch creates an empty batch wrapping the container project.
func (s *Service) CreateBatch(ctx context.Context, actor, name, project string) (*Batch, error) {
	batch := Batch{
		Name:      name,
		Project:   project,
		CreatedBy: actor,
		CreatedAt: s.now(),
	}

	if err := s.batches.CreateBatch(ctx, &batch); err != nil {
		return nil, err
	}

	s.logger.Info("staging batch created",
		logfields.Event("staging_batch_created"),
		logfields.Batch(name),
		logfields.Project(project),
	)

	return &batch, nil
}

// StageRequest attaches a request to the batch. A request is staged in at
// most one batch at a time.
func (s *Service) StageRequest(ctx context.Context, batchName string, req *request.ChangeRequest) error {
	if req.StagingBatch != "" && req.StagingBatch != batchName {
		return fmt.Errorf("request %d is staged in %q: %w", req.Number, req.StagingBatch, ErrAlreadyStaged)
	}

	if _, err := s.batches.GetBatch(ctx, batchName); err != nil {
		return err
	}

	return s.batches.SetRequestBatch(ctx, req.Number, batchName)
}

// UnstageRequest detaches a request from its batch.
func (s *Service) UnstageRequest(ctx context.Context, requestNumber int64) error {
	return s.batches.SetRequestBatch(ctx, requestNumber, "")
}

// DestroyBatch deletes an empty batch.
func (s *Service) DestroyBatch(ctx context.Context, name string) error {
	staged, err := s.batches.StagedRequests(ctx, name)
	if err != nil {
		return err
	}

	if len(staged) > 0 {
		return fmt.Errorf("batch %q has %d staged requests: %w", name, len(staged), ErrBatchNotEmpty)
	}

	return s.batches.DeleteBatch(ctx, name)
}

// RecordCheckResult upserts one check result.
// The report uuid is recorded with the result so that a result computed
// against a superseded build can never mark a newer build's check as
// passing: it simply stops being current.
func (s *Service) RecordCheckResult(ctx context.Context, result *CheckResult) error {
	switch result.State {
	case CheckPending, CheckSuccess, CheckFailure:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownState, result.State)
	}

	if result.ReportUUID == "" {
		return ErrMissingReportID
	}

	result.UpdatedAt = s.now()

	if err := s.checks.UpsertCheckResult(ctx, result); err != nil {
		return err
	}

	s.logger.Debug("check result recorded",
		logfields.Event("check_result_recorded"),
		logfields.Project(result.Project),
		logfields.CheckName(result.Name),
		zap.String("check.state", string(result.State)),
		zap.String("check.report_uuid", result.ReportUUID),
	)

	return nil
}

// OverallState derives the batch state. Precedence, first match wins:
// empty, unacceptable, testing, failed, acceptable.
func (s *Service) OverallState(ctx context.Context, batchName string) (BatchState, error) {
	state, _, err := s.evaluate(ctx, batchName)
	return state, err
}

// Checks returns the explained per-check state of the batch: every
// required check of every current publish report in scope, each either
// missing or carrying its current result, plus every current result
// recorded under a name the report does not require. Stale results are
// excluded.
func (s *Service) Checks(ctx context.Context, batchName string) ([]Check, error) {
	_, checks, err := s.evaluate(ctx, batchName)
	return checks, err
}

// MissingChecks returns the names of required checks without a current
// result.
func (s *Service) MissingChecks(ctx context.Context, batchName string) ([]string, error) {
	_, checks, err := s.evaluate(ctx, batchName)
	if err != nil {
		return nil, err
	}

	var result []string

	for i := range checks {
		if checks[i].Missing() {
			result = append(result, checks[i].Name)
		}
	}

	return result, nil
}

// MissingReviews returns the still-open review assignments of all staged
// requests. It informs reviewers, it does not gate OverallState.
func (s *Service) MissingReviews(ctx context.Context, batchName string) ([]MissingReview, error) {
	staged, err := s.batches.StagedRequests(ctx, batchName)
	if err != nil {
		return nil, err
	}

	var result []MissingReview

	for _, req := range staged {
		for _, review := range req.OpenReviews() {
			result = append(result, MissingReview{
				Request:  req.Number,
				ReviewID: review.ID,
				By:       review.Reviewer.String(),
			})
		}
	}

	return result, nil
}

// evaluate computes the batch state and the explained check list in one
// pass. Both are pure functions of current membership and check results,
// nothing is cached.
func (s *Service) evaluate(ctx context.Context, batchName string) (BatchState, []Check, error) {
	batch, err := s.batches.GetBatch(ctx, batchName)
	if err != nil {
		return "", nil, err
	}

	staged, err := s.batches.StagedRequests(ctx, batchName)
	if err != nil {
		return "", nil, err
	}

	if len(staged) == 0 {
		return BatchEmpty, nil, nil
	}

	for _, req := range staged {
		if req.State == request.StateRevoked {
			return BatchUnacceptable, nil, nil
		}
	}

	checks, err := s.collectChecks(ctx, batch)
	if err != nil {
		return "", nil, err
	}

	state := BatchAcceptable

	for i := range checks {
		switch {
		case checks[i].Missing(), checks[i].State == CheckPending:
			// missing or pending wins over failed, the failure
			// might belong to a build that is being replaced
			return BatchTesting, checks, nil

		case checks[i].State == CheckFailure:
			state = BatchFailed
		}
	}

	return state, checks, nil
}

// collectChecks lists, for every repository/architecture of the batch
// container, the required checks of the current publish report joined with
// all stored current results, including results recorded under names the
// report does not require. Results whose report uuid does not match the
// current build are stale: they are dropped and a required check without a
// current result is reported as missing.
func (s *Service) collectChecks(ctx context.Context, batch *Batch) ([]Check, error) {
	repos, err := s.reports.Repositories(ctx, batch.Project)
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %q failed: %w", batch.Project, err)
	}

	var result []Check

	for _, repo := range repos {
		archs := repo.Architectures
		if len(archs) == 0 {
			archs = []string{""}
		}

		for _, arch := range archs {
			checks, err := s.targetChecks(ctx, batch.Project, repo.Name, arch)
			if err != nil {
				return nil, err
			}

			result = append(result, checks...)
		}
	}

	return result, nil
}

func (s *Service) targetChecks(ctx context.Context, project, repository, arch string) ([]Check, error) {
	report, err := s.reports.CurrentReport(ctx, project, repository, arch)
	if err != nil {
		if errors.Is(err, buildclt.ErrNotFound) {
			// target was never published, nothing is required yet
			return nil, nil
		}

		return nil, fmt.Errorf("resolving publish report of %s/%s/%s failed: %w", project, repository, arch, err)
	}

	stored, err := s.checks.CheckResultsForTarget(ctx, project, repository, arch)
	if err != nil {
		return nil, err
	}

	current := map[string]*CheckResult{}

	for _, res := range stored {
		if res.ReportUUID != report.UUID {
			continue
		}

		current[res.Name] = res
	}

	required := make(map[string]struct{}, len(report.RequiredChecks))

	result := make([]Check, 0, len(report.RequiredChecks))

	for _, name := range report.RequiredChecks {
		required[name] = struct{}{}

		check := Check{
			Project:      project,
			Repository:   repository,
			Architecture: arch,
			ReportUUID:   report.UUID,
			Name:         name,
		}

		if res, exist := current[name]; exist {
			check.State = res.State
			check.Details = res.Details
		}

		result = append(result, check)
	}

	// current results for names outside required_checks gate the batch
	// too, only the missing computation is restricted to required names
	for _, res := range stored {
		if res.ReportUUID != report.UUID {
			continue
		}

		if _, exist := required[res.Name]; exist {
			continue
		}

		result = append(result, Check{
			Project:      project,
			Repository:   repository,
			Architecture: arch,
			ReportUUID:   report.UUID,
			Name:         res.Name,
			State:        res.State,
			Details:      res.Details,
		})
	}

	return result, nil
}
