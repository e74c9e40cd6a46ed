// Package request implements the change-request and review state machine.
//
// A ChangeRequest carries a list of actions against target packages and a
// list of review assignments. The request state is never set directly by
// callers, it is recomputed from the review states after every mutation:
// a request is in StateReview exactly when at least one review is open.
package request

import (
	"errors"
	"fmt"
	"time"
)

// State of a ChangeRequest.
type State string

const (
	StateNew        State = "new"
	StateReview     State = "review"
	StateAccepted   State = "accepted"
	StateDeclined   State = "declined"
	StateRevoked    State = "revoked"
	StateSuperseded State = "superseded"
)

// Terminal reports whether no actor command can transition the request
// anymore, except reopen on a declined request.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateDeclined, StateRevoked, StateSuperseded:
		return true
	default:
		return false
	}
}

// ReviewState of a single ReviewAssignment.
type ReviewState string

const (
	ReviewStateNew        ReviewState = "new"
	ReviewStateAccepted   ReviewState = "accepted"
	ReviewStateDeclined   ReviewState = "declined"
	ReviewStateObsoleted  ReviewState = "obsoleted"
	ReviewStateSuperseded ReviewState = "superseded"
)

// ActionType of one RequestAction.
type ActionType string

const (
	ActionSubmit              ActionType = "submit"
	ActionDelete              ActionType = "delete"
	ActionAddRole             ActionType = "add_role"
	ActionSetBugowner         ActionType = "set_bugowner"
	ActionChangeDevel         ActionType = "change_devel"
	ActionMaintenanceIncident ActionType = "maintenance_incident"
	ActionMaintenanceRelease  ActionType = "maintenance_release"
)

// Priority of a ChangeRequest.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityModerate  Priority = "moderate"
	PriorityImportant Priority = "important"
	PriorityCritical  Priority = "critical"
)

// Action is one proposed change of a request.
type Action struct {
	Type          ActionType
	SourceProject string
	SourcePackage string
	TargetProject string
	TargetPackage string
}

// Reviewer identifies who owns a review assignment.
// Exactly one of User, Group or Project must be set; Package may only be
// set together with Project.
type Reviewer struct {
	User    string
	Group   string
	Project string
	Package string
}

func (r Reviewer) Validate() error {
	set := 0
	if r.User != "" {
		set++
	}
	if r.Group != "" {
		set++
	}
	if r.Project != "" {
		set++
	}

	if set != 1 {
		return fmt.Errorf("exactly one of user, group or project must be set, got %d", set)
	}

	if r.Package != "" && r.Project == "" {
		return errors.New("package reviewer requires a project")
	}

	return nil
}

func (r Reviewer) String() string {
	switch {
	case r.User != "":
		return "user:" + r.User
	case r.Group != "":
		return "group:" + r.Group
	case r.Package != "":
		return "package:" + r.Project + "/" + r.Package
	default:
		return "project:" + r.Project
	}
}

// Review is one approval gate on a ChangeRequest.
// Reviews are never deleted, only transitioned.
type Review struct {
	ID         int64
	Reviewer   Reviewer
	State      ReviewState
	Reason     string
	CreatedBy  string
	CreatedAt  time.Time
	ResolvedBy string
	ResolvedAt time.Time
}

// Open reports whether the review still blocks the request.
func (r *Review) Open() bool {
	return r.State == ReviewStateNew
}

// ChangeRequest is a proposed set of actions routed through reviews.
type ChangeRequest struct {
	// Number is globally unique and immutable.
	Number   int64
	State    State
	Actions  []Action
	Creator  string
	Priority Priority
	// Description is free text shown to reviewers.
	Description string
	// SupersededBy references the newer request that replaced this one,
	// it is only set in StateSuperseded.
	SupersededBy *int64
	// StagingBatch names the batch the request is staged in, empty when
	// unstaged. A request is staged in at most one batch.
	StagingBatch string
	Reviews      []Review

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version guards concurrent read-modify-write cycles, the store
	// rejects updates whose version does not match the stored row.
	Version int64
}

// OpenReviews returns the reviews that still block the request.
func (r *ChangeRequest) OpenReviews() []Review {
	var result []Review

	for _, rev := range r.Reviews {
		if rev.Open() {
			result = append(result, rev)
		}
	}

	return result
}

// recomputeState derives the request state from the current review states.
// It is a pure function of the assignment states, independent of the order
// in which reviews were resolved, and never touches terminal states.
func (r *ChangeRequest) recomputeState() {
	if r.State.Terminal() {
		return
	}

	for i := range r.Reviews {
		if r.Reviews[i].Open() {
			r.State = StateReview
			return
		}
	}

	r.State = StateNew
}

func validActions(actions []Action) error {
	if len(actions) == 0 {
		return errors.New("a request needs at least one action")
	}

	for i, a := range actions {
		switch a.Type {
		case ActionSubmit, ActionDelete, ActionAddRole, ActionSetBugowner,
			ActionChangeDevel, ActionMaintenanceIncident, ActionMaintenanceRelease:
		default:
			return fmt.Errorf("action %d has unsupported type: %q", i, a.Type)
		}

		if a.TargetProject == "" {
			return fmt.Errorf("action %d has no target project", i)
		}
	}

	return nil
}
