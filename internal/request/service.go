package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
)

const loggerName = "request"

// maxUpdateRetries bounds the optimistic-concurrency retry loop.
// Conflicts are expected when two reviewers resolve different assignments
// of the same request concurrently.
const maxUpdateRetries = 5

// ErrReviewsOpen is returned by Accept when the request still has open
// reviews and the caller did not pass force.
// It is a confirmation requirement, not a state-machine violation.
var ErrReviewsOpen = errors.New("request has open reviews, accepting requires force")

// Store is the persistence interface of the state machine.
// UpdateRequest must compare the request version against the stored row and
// return ErrVersionConflict on mismatch.
type Store interface {
	CreateRequest(ctx context.Context, req *ChangeRequest) error
	GetRequest(ctx context.Context, number int64) (*ChangeRequest, error)
	UpdateRequest(ctx context.Context, req *ChangeRequest) error
	// RequestsByTarget returns non-terminal requests that contain an
	// action addressing the target package.
	RequestsByTarget(ctx context.Context, project, pkg string) ([]*ChangeRequest, error)
}

// Authorizer decides whether an actor may perform an action on a resource.
// Policy evaluation is outside of this package, implementations are opaque.
type Authorizer interface {
	Authorize(ctx context.Context, actor, resource, action string) error
}

type Service struct {
	store  Store
	auth   Authorizer
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, auth Authorizer) *Service {
	return &Service{
		store:  store,
		auth:   auth,
		logger: zap.L().Named(loggerName),
		now:    time.Now,
	}
}

// CreateInput are the caller-supplied fields of a new ChangeRequest.
type CreateInput struct {
	Actions     []Action
	Reviewers   []Reviewer
	Priority    Priority
	Description string
	// SupersedeExisting supersedes older non-terminal requests that
	// address the same targets as the new request.
	SupersedeExisting bool
}

// Create creates a request in state new, or review when reviewers are
// given.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, "request", "create"); err != nil {
		return nil, err
	}

	if err := validActions(in.Actions); err != nil {
		return nil, err
	}

	for _, reviewer := range in.Reviewers {
		if err := reviewer.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.now()

	req := ChangeRequest{
		State:       StateNew,
		Actions:     in.Actions,
		Creator:     actor,
		Priority:    in.Priority,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Priority == "" {
		req.Priority = PriorityModerate
	}

	for _, reviewer := range in.Reviewers {
		req.Reviews = append(req.Reviews, Review{
			Reviewer:  reviewer,
			State:     ReviewStateNew,
			CreatedBy: actor,
			CreatedAt: now,
		})
	}

	req.recomputeState()

	if err := s.store.CreateRequest(ctx, &req); err != nil {
		return nil, fmt.Errorf("storing request failed: %w", err)
	}

	s.logger.Info("request created",
		logfields.Event("request_created"),
		logfields.Request(req.Number),
		zap.String("request.state", string(req.State)),
	)

	if in.SupersedeExisting {
		if err := s.supersedeOlder(ctx, &req); err != nil {
			// the new request exists, superseding older ones is
			// best-effort cleanup
			s.logger.Warn("superseding older requests failed",
				logfields.Event("request_supersede_failed"),
				logfields.Request(req.Number),
				zap.Error(err),
			)
		}
	}

	return &req, nil
}

// Get returns the request or ErrNotFound.
func (s *Service) Get(ctx context.Context, number int64) (*ChangeRequest, error) {
	return s.store.GetRequest(ctx, number)
}

// AddReview appends an open review assignment and moves the request into
// state review. It fails with a StateError on terminal requests.
func (s *Service) AddReview(ctx context.Context, actor string, number int64, reviewer Reviewer, reason string) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "add_review"); err != nil {
		return nil, err
	}

	if err := reviewer.Validate(); err != nil {
		return nil, err
	}

	return s.update(ctx, number, func(req *ChangeRequest) error {
		if req.State.Terminal() {
			return newStateError(req, "add_review")
		}

		req.Reviews = append(req.Reviews, Review{
			Reviewer:  reviewer,
			State:     ReviewStateNew,
			Reason:    reason,
			CreatedBy: actor,
			CreatedAt: s.now(),
		})

		return nil
	})
}

// ResolveReview resolves one open review assignment to accepted or
// declined. When the last open review is resolved the request returns to
// state new, ready for the explicit final accept or decline; it is never
// auto-accepted.
// A declined review does not decline the request, that decision is left to
// the policy layer.
func (s *Service) ResolveReview(ctx context.Context, actor string, number, reviewID int64, outcome ReviewState, reason string) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "review"); err != nil {
		return nil, err
	}

	if outcome != ReviewStateAccepted && outcome != ReviewStateDeclined {
		return nil, fmt.Errorf("unsupported review outcome: %q", outcome)
	}

	return s.update(ctx, number, func(req *ChangeRequest) error {
		if req.State.Terminal() {
			return newStateError(req, "resolve_review")
		}

		review := findReview(req, reviewID)
		if review == nil {
			return fmt.Errorf("request %d: review %d: %w", number, reviewID, ErrReviewNotFound)
		}

		if !review.Open() {
			return fmt.Errorf("request %d: review %d is already resolved (%s)", number, reviewID, review.State)
		}

		review.State = outcome
		review.Reason = reason
		review.ResolvedBy = actor
		review.ResolvedAt = s.now()

		return nil
	})
}

// Accept transitions the request to accepted.
// It is legal from state new; from state review only with force, callers
// surface that as a confirmation requirement. Executing the request
// actions is the job of external collaborators.
func (s *Service) Accept(ctx context.Context, actor string, number int64, force bool) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "accept"); err != nil {
		return nil, err
	}

	return s.update(ctx, number, func(req *ChangeRequest) error {
		switch req.State {
		case StateNew:
		case StateReview:
			if !force {
				return ErrReviewsOpen
			}
		default:
			return newStateError(req, "accept")
		}

		req.State = StateAccepted
		return nil
	})
}

// Decline transitions the request to declined.
// Open reviews are intentionally left untouched, they remain visible as
// review history.
func (s *Service) Decline(ctx context.Context, actor string, number int64, reason string) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "decline"); err != nil {
		return nil, err
	}

	return s.terminate(ctx, number, StateDeclined, "decline", reason)
}

// Revoke transitions the request to revoked. Like Decline it keeps the
// review history untouched.
func (s *Service) Revoke(ctx context.Context, actor string, number int64, reason string) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "revoke"); err != nil {
		return nil, err
	}

	return s.terminate(ctx, number, StateRevoked, "revoke", reason)
}

func (s *Service) terminate(ctx context.Context, number int64, to State, op, reason string) (*ChangeRequest, error) {
	return s.update(ctx, number, func(req *ChangeRequest) error {
		if req.State.Terminal() {
			return newStateError(req, op)
		}

		req.State = to
		req.Description = appendReason(req.Description, reason)

		return nil
	})
}

// Reopen transitions a declined request back to new.
func (s *Service) Reopen(ctx context.Context, actor string, number int64) (*ChangeRequest, error) {
	if err := s.auth.Authorize(ctx, actor, requestResource(number), "reopen"); err != nil {
		return nil, err
	}

	return s.update(ctx, number, func(req *ChangeRequest) error {
		if req.State != StateDeclined {
			return newStateError(req, "reopen")
		}

		req.State = StateNew

		return nil
	})
}

// Supersede marks the request as replaced by the newer request.
// It is a system transition triggered when a newer request addresses the
// same destination, not an actor command.
func (s *Service) Supersede(ctx context.Context, number, supersededBy int64) (*ChangeRequest, error) {
	return s.update(ctx, number, func(req *ChangeRequest) error {
		if req.State.Terminal() {
			return newStateError(req, "supersede")
		}

		req.State = StateSuperseded
		req.SupersededBy = &supersededBy

		for i := range req.Reviews {
			if req.Reviews[i].Open() {
				req.Reviews[i].State = ReviewStateSuperseded
				req.Reviews[i].ResolvedAt = s.now()
			}
		}

		return nil
	})
}

// ObsoleteReviewsForTarget transitions open by-project and by-package
// review assignments whose review target disappeared to obsoleted and
// recomputes the owning requests' states.
// It is a system transition triggered by project/package deletion events.
func (s *Service) ObsoleteReviewsForTarget(ctx context.Context, project, pkg string) error {
	requests, err := s.store.RequestsByTarget(ctx, project, pkg)
	if err != nil {
		return fmt.Errorf("listing requests for target failed: %w", err)
	}

	for _, req := range requests {
		_, err := s.update(ctx, req.Number, func(req *ChangeRequest) error {
			for i := range req.Reviews {
				review := &req.Reviews[i]
				if !review.Open() {
					continue
				}

				if !reviewerMatchesTarget(review.Reviewer, project, pkg) {
					continue
				}

				review.State = ReviewStateObsoleted
				review.ResolvedAt = s.now()
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) supersedeOlder(ctx context.Context, newReq *ChangeRequest) error {
	for _, action := range newReq.Actions {
		older, err := s.store.RequestsByTarget(ctx, action.TargetProject, action.TargetPackage)
		if err != nil {
			return err
		}

		for _, req := range older {
			if req.Number == newReq.Number {
				continue
			}

			if _, err := s.Supersede(ctx, req.Number, newReq.Number); err != nil {
				return err
			}
		}
	}

	return nil
}

// update runs fn on the current stored request, recomputes the request
// state and writes the result back, retrying on version conflicts.
// The recomputation always sees the full current set of review states, two
// concurrent resolutions of different assignments both survive.
func (s *Service) update(ctx context.Context, number int64, fn func(*ChangeRequest) error) (*ChangeRequest, error) {
	for i := 0; i < maxUpdateRetries; i++ {
		req, err := s.store.GetRequest(ctx, number)
		if err != nil {
			return nil, err
		}

		if err := fn(req); err != nil {
			return nil, err
		}

		req.recomputeState()
		req.UpdatedAt = s.now()

		err = s.store.UpdateRequest(ctx, req)
		if err == nil {
			return req, nil
		}

		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}

		s.logger.Debug("request update conflicted, retrying",
			logfields.Event("request_update_conflict"),
			logfields.Request(number),
			zap.Int("try_count", i+1),
		)
	}

	return nil, fmt.Errorf("request %d: %w", number, ErrVersionConflict)
}

func findReview(req *ChangeRequest, reviewID int64) *Review {
	for i := range req.Reviews {
		if req.Reviews[i].ID == reviewID {
			return &req.Reviews[i]
		}
	}

	return nil
}

func reviewerMatchesTarget(r Reviewer, project, pkg string) bool {
	if r.Project == "" {
		return false
	}

	if r.Project != project {
		return false
	}

	// a project reviewer is obsoleted when the whole project disappears
	if pkg == "" {
		return true
	}

	return r.Package == pkg
}

func requestResource(number int64) string {
	return fmt.Sprintf("request/%d", number)
}

func appendReason(description, reason string) string {
	if reason == "" {
		return description
	}

	if description == "" {
		return reason
	}

	return description + "\n" + reason
}
