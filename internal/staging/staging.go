// Package staging computes the aggregate readiness of staging batches.
//
// A batch groups change requests that are tested together in one container
// project. The batch itself stores only membership; its overall state is
// derived on every read from the staged requests and the check results of
// the container's current builds, it is never persisted.
package staging

import (
	"errors"
	"time"
)

// BatchState is the derived overall state of a batch.
type BatchState string

const (
	// BatchEmpty: the batch has no staged requests.
	BatchEmpty BatchState = "empty"
	// BatchUnacceptable: a staged request was revoked.
	BatchUnacceptable BatchState = "unacceptable"
	// BatchTesting: a required check is missing or a current result is
	// still pending.
	BatchTesting BatchState = "testing"
	// BatchFailed: a current check result failed.
	BatchFailed BatchState = "failed"
	// BatchAcceptable: all required checks passed.
	BatchAcceptable BatchState = "acceptable"
)

// CheckState of a single check result.
type CheckState string

const (
	CheckPending CheckState = "pending"
	CheckSuccess CheckState = "success"
	CheckFailure CheckState = "failure"
)

var (
	ErrBatchNotFound   = errors.New("staging batch not found")
	ErrAlreadyStaged   = errors.New("request is already staged in a batch")
	ErrBatchNotEmpty   = errors.New("staging batch still has staged requests")
	ErrUnknownState    = errors.New("unsupported check state")
	ErrMissingReportID = errors.New("check result carries no report uuid")
)

// Batch is one staging batch. Requests holds the numbers of the staged
// change requests.
type Batch struct {
	Name string
	// Project is the container project owning the build repositories
	// whose checks gate the batch.
	Project  string
	Requests []int64

	CreatedBy string
	CreatedAt time.Time
}

// CheckResult is one named signal posted by a build system against a
// publish report. (ReportUUID, Name) is unique; the result is only current
// while its report uuid matches the latest build of the target.
type CheckResult struct {
	Project      string
	Repository   string
	Architecture string
	ReportUUID   string
	Name         string
	State        CheckState
	Details      string
	UpdatedAt    time.Time
}

// Check is one entry of the explained batch state: a required check name
// together with its current result, if any, or a current result recorded
// under a name the publish report does not require.
type Check struct {
	Project      string
	Repository   string
	Architecture string
	ReportUUID   string
	Name         string
	// State is empty when the check is missing.
	State   CheckState
	Details string
}

// Missing reports whether no current result exists for the check.
func (c Check) Missing() bool {
	return c.State == ""
}

// MissingReview is one still-open review assignment of a staged request,
// reported to drive reviewer attention.
type MissingReview struct {
	Request  int64
	ReviewID int64
	By       string
}
