package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// RunStatus is the overall status of an AutomationRun.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunFail    RunStatus = "fail"
)

// AutomationRun is the ledger record of one workflow execution for one
// webhook delivery.
// It is created in status pending before the first step runs, step outcomes
// are appended as each step commits, and it is finalized exactly once.
// Runs are never mutated afterwards; a run that never finalizes stays
// pending and is surfaced for operator inspection instead of being
// auto-resolved.
type AutomationRun struct {
	ID         string
	Workflow   string
	DeliveryID string
	EventType  string
	Action     string
	// Envelope is the raw provider payload of the delivery.
	Envelope json.RawMessage

	Status   RunStatus
	Outcomes []Outcome
	// ResponseBody is the free-text summary mirrored to the SCM status.
	ResponseBody string

	CreatedAt   time.Time
	FinalizedAt time.Time
}

// RunStore persists AutomationRuns.
// The ledger is append-only: runs are created, outcomes appended and the run
// finalized, nothing is ever updated in place beyond that.
type RunStore interface {
	CreateRun(ctx context.Context, run *AutomationRun) error
	AppendOutcome(ctx context.Context, runID string, outcome *Outcome) error
	FinalizeRun(ctx context.Context, runID string, status RunStatus, responseBody string, finalizedAt time.Time) error
	GetRun(ctx context.Context, id string) (*AutomationRun, error)
	// RunsByDeliveryID returns the runs recorded for a webhook delivery,
	// used for idempotency inspection.
	RunsByDeliveryID(ctx context.Context, deliveryID string) ([]*AutomationRun, error)
}
