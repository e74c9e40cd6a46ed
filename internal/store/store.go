// Package store implements the persistence interfaces of the request,
// staging and workflow packages on PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/request"
	"github.com/simplesurance/stagecoord/internal/staging"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

const loggerName = "store"

// schema is applied by Migrate, all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS requests (
	number        BIGSERIAL PRIMARY KEY,
	state         TEXT NOT NULL,
	actions       JSONB NOT NULL,
	creator       TEXT NOT NULL,
	priority      TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	superseded_by BIGINT,
	staging_batch TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	version       BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reviews (
	id               BIGSERIAL PRIMARY KEY,
	request_number   BIGINT NOT NULL REFERENCES requests (number),
	reviewer_user    TEXT NOT NULL DEFAULT '',
	reviewer_group   TEXT NOT NULL DEFAULT '',
	reviewer_project TEXT NOT NULL DEFAULT '',
	reviewer_package TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	created_by       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolved_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS reviews_request_number_idx ON reviews (request_number);

CREATE TABLE IF NOT EXISTS staging_batches (
	name       TEXT PRIMARY KEY,
	project    TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS check_results (
	project      TEXT NOT NULL,
	repository   TEXT NOT NULL,
	architecture TEXT NOT NULL DEFAULT '',
	report_uuid  TEXT NOT NULL,
	name         TEXT NOT NULL,
	state        TEXT NOT NULL,
	details      TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (report_uuid, name)
);

CREATE INDEX IF NOT EXISTS check_results_target_idx
	ON check_results (project, repository, architecture);

CREATE TABLE IF NOT EXISTS automation_runs (
	id            UUID PRIMARY KEY,
	workflow      TEXT NOT NULL,
	delivery_id   TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	envelope      JSONB,
	status        TEXT NOT NULL,
	response_body TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	finalized_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS automation_runs_delivery_idx ON automation_runs (delivery_id);

CREATE TABLE IF NOT EXISTS run_outcomes (
	seq     BIGSERIAL PRIMARY KEY,
	run_id  UUID NOT NULL REFERENCES automation_runs (id),
	step    TEXT NOT NULL,
	status  TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	target  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS run_outcomes_run_idx ON run_outcomes (run_id);
`

// DB is the PostgreSQL-backed store.
// It implements request.Store, staging.BatchStore, staging.CheckStore and
// workflow.RunStore.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB) *DB {
	return &DB{
		db:     db,
		logger: zap.L().Named(loggerName),
	}
}

// Open connects to the database addressed by the lib/pq connection string.
func Open(url string) (*DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	return New(db), nil
}

// Migrate applies the schema.
func (s *DB) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema failed: %w", err)
	}

	return nil
}

func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) Close() error {
	return s.db.Close()
}

// CreateRequest inserts the request and its reviews, assigning the request
// number and the review ids.
func (s *DB) CreateRequest(ctx context.Context, req *request.ChangeRequest) error {
	actions, err := json.Marshal(req.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions failed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	err = tx.QueryRowContext(ctx,
		`INSERT INTO requests
		 (state, actions, creator, priority, description, superseded_by, staging_batch, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, 0)
		 RETURNING number`,
		string(req.State), actions, req.Creator, string(req.Priority),
		req.Description, req.SupersededBy, req.StagingBatch,
		req.CreatedAt, req.UpdatedAt,
	).Scan(&req.Number)
	if err != nil {
		return fmt.Errorf("inserting request failed: %w", err)
	}

	for i := range req.Reviews {
		if err := insertReview(ctx, tx, req.Number, &req.Reviews[i]); err != nil {
			return err
		}
	}

	req.Version = 0

	return tx.Commit()
}

func (s *DB) GetRequest(ctx context.Context, number int64) (*request.ChangeRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT number, state, actions, creator, priority, description,
		        superseded_by, COALESCE(staging_batch, ''), created_at, updated_at, version
		 FROM requests WHERE number = $1`, number))
	if err != nil {
		return nil, err
	}

	if err := s.loadReviews(ctx, req); err != nil {
		return nil, err
	}

	return req, nil
}

// UpdateRequest writes the request back, guarded by the version column.
// The row version must match req.Version, otherwise
// request.ErrVersionConflict is returned and no change is applied.
func (s *DB) UpdateRequest(ctx context.Context, req *request.ChangeRequest) error {
	actions, err := json.Marshal(req.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions failed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE requests
		 SET state = $1, actions = $2, priority = $3, description = $4,
		     superseded_by = $5, staging_batch = NULLIF($6, ''),
		     updated_at = $7, version = version + 1
		 WHERE number = $8 AND version = $9`,
		string(req.State), actions, string(req.Priority), req.Description,
		req.SupersededBy, req.StagingBatch, req.UpdatedAt,
		req.Number, req.Version,
	)
	if err != nil {
		return fmt.Errorf("updating request failed: %w", err)
	}

	cnt, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if cnt == 0 {
		var exists bool

		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM requests WHERE number = $1)`, req.Number,
		).Scan(&exists)
		if err != nil {
			return err
		}

		if !exists {
			return fmt.Errorf("request %d: %w", req.Number, request.ErrNotFound)
		}

		return fmt.Errorf("request %d: %w", req.Number, request.ErrVersionConflict)
	}

	// reviews are never deleted, rows are updated in place and new ones
	// appended
	for i := range req.Reviews {
		review := &req.Reviews[i]

		if review.ID == 0 {
			if err := insertReview(ctx, tx, req.Number, review); err != nil {
				return err
			}

			continue
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE reviews
			 SET state = $1, reason = $2, resolved_by = $3, resolved_at = $4
			 WHERE id = $5 AND request_number = $6`,
			string(review.State), review.Reason, review.ResolvedBy,
			nullTime(review.ResolvedAt), review.ID, req.Number,
		)
		if err != nil {
			return fmt.Errorf("updating review %d failed: %w", review.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	req.Version++

	return nil
}

// RequestsByTarget returns non-terminal requests with an action addressing
// the target. An empty pkg matches any package of the project.
func (s *DB) RequestsByTarget(ctx context.Context, project, pkg string) ([]*request.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, state, actions, creator, priority, description,
		        superseded_by, COALESCE(staging_batch, ''), created_at, updated_at, version
		 FROM requests
		 WHERE state NOT IN ('accepted', 'declined', 'revoked', 'superseded')
		   AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(actions) AS action
			WHERE action->>'TargetProject' = $1
			  AND ($2 = '' OR action->>'TargetPackage' = $2)
		 )
		 ORDER BY number`,
		project, pkg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectRequests(ctx, rows)
}

func insertReview(ctx context.Context, tx *sql.Tx, requestNumber int64, review *request.Review) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO reviews
		 (request_number, reviewer_user, reviewer_group, reviewer_project, reviewer_package,
		  state, reason, created_by, created_at, resolved_by, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		requestNumber,
		review.Reviewer.User, review.Reviewer.Group,
		review.Reviewer.Project, review.Reviewer.Package,
		string(review.State), review.Reason, review.CreatedBy, review.CreatedAt,
		review.ResolvedBy, nullTime(review.ResolvedAt),
	).Scan(&review.ID)
	if err != nil {
		return fmt.Errorf("inserting review failed: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*request.ChangeRequest, error) {
	var req request.ChangeRequest
	var actions []byte
	var state, priority string

	err := row.Scan(
		&req.Number, &state, &actions, &req.Creator, &priority,
		&req.Description, &req.SupersededBy, &req.StagingBatch,
		&req.CreatedAt, &req.UpdatedAt, &req.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, request.ErrNotFound
		}

		return nil, err
	}

	req.State = request.State(state)
	req.Priority = request.Priority(priority)

	if err := json.Unmarshal(actions, &req.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions of request %d failed: %w", req.Number, err)
	}

	return &req, nil
}

func (s *DB) collectRequests(ctx context.Context, rows *sql.Rows) ([]*request.ChangeRequest, error) {
	var result []*request.ChangeRequest

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, req := range result {
		if err := s.loadReviews(ctx, req); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *DB) loadReviews(ctx context.Context, req *request.ChangeRequest) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reviewer_user, reviewer_group, reviewer_project, reviewer_package,
		        state, reason, created_by, created_at, COALESCE(resolved_by, ''), resolved_at
		 FROM reviews WHERE request_number = $1 ORDER BY id`,
		req.Number,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var review request.Review
		var state string
		var resolvedAt sql.NullTime

		err := rows.Scan(
			&review.ID,
			&review.Reviewer.User, &review.Reviewer.Group,
			&review.Reviewer.Project, &review.Reviewer.Package,
			&state, &review.Reason, &review.CreatedBy, &review.CreatedAt,
			&review.ResolvedBy, &resolvedAt,
		)
		if err != nil {
			return err
		}

		review.State = request.ReviewState(state)

		if resolvedAt.Valid {
			review.ResolvedAt = resolvedAt.Time
		}

		req.Reviews = append(req.Reviews, review)
	}

	return rows.Err()
}

// CreateBatch inserts the staging batch.
func (s *DB) CreateBatch(ctx context.Context, batch *staging.Batch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staging_batches (name, project, created_by, created_at)
		 VALUES ($1, $2, $3, $4)`,
		batch.Name, batch.Project, batch.CreatedBy, batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting staging batch failed: %w", err)
	}

	return nil
}

func (s *DB) GetBatch(ctx context.Context, name string) (*staging.Batch, error) {
	var batch staging.Batch

	err := s.db.QueryRowContext(ctx,
		`SELECT name, project, created_by, created_at FROM staging_batches WHERE name = $1`,
		name,
	).Scan(&batch.Name, &batch.Project, &batch.CreatedBy, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %q: %w", name, staging.ErrBatchNotFound)
		}

		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number FROM requests WHERE staging_batch = $1 ORDER BY number`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var number int64

		if err := rows.Scan(&number); err != nil {
			return nil, err
		}

		batch.Requests = append(batch.Requests, number)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &batch, nil
}

func (s *DB) DeleteBatch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM staging_batches WHERE name = $1`, name)
	if err != nil {
		return err
	}

	cnt, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if cnt == 0 {
		return fmt.Errorf("batch %q: %w", name, staging.ErrBatchNotFound)
	}

	return nil
}

// SetRequestBatch stages (batchName != "") or unstages the request.
func (s *DB) SetRequestBatch(ctx context.Context, requestNumber int64, batchName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET staging_batch = NULLIF($1, '') WHERE number = $2`,
		batchName, requestNumber,
	)
	if err != nil {
		return err
	}

	cnt, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if cnt == 0 {
		return fmt.Errorf("request %d: %w", requestNumber, request.ErrNotFound)
	}

	return nil
}

func (s *DB) StagedRequests(ctx context.Context, batchName string) ([]*request.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, state, actions, creator, priority, description,
		        superseded_by, COALESCE(staging_batch, ''), created_at, updated_at, version
		 FROM requests WHERE staging_batch = $1 ORDER BY number`,
		batchName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectRequests(ctx, rows)
}

// UpsertCheckResult inserts or replaces the result keyed by
// (report uuid, name).
func (s *DB) UpsertCheckResult(ctx context.Context, result *staging.CheckResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_results
		 (project, repository, architecture, report_uuid, name, state, details, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (report_uuid, name) DO UPDATE
		 SET state = EXCLUDED.state, details = EXCLUDED.details, updated_at = EXCLUDED.updated_at`,
		result.Project, result.Repository, result.Architecture,
		result.ReportUUID, result.Name, string(result.State), result.Details,
		result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting check result failed: %w", err)
	}

	return nil
}

func (s *DB) CheckResultsForTarget(ctx context.Context, project, repository, architecture string) ([]*staging.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project, repository, architecture, report_uuid, name, state, details, updated_at
		 FROM check_results
		 WHERE project = $1 AND repository = $2 AND architecture = $3
		 ORDER BY name`,
		project, repository, architecture,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*staging.CheckResult

	for rows.Next() {
		var res staging.CheckResult
		var state string

		err := rows.Scan(
			&res.Project, &res.Repository, &res.Architecture,
			&res.ReportUUID, &res.Name, &state, &res.Details, &res.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		res.State = staging.CheckState(state)
		result = append(result, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateRun inserts the automation run ledger row.
func (s *DB) CreateRun(ctx context.Context, run *workflow.AutomationRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automation_runs
		 (id, workflow, delivery_id, event_type, action, envelope, status, response_body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Workflow, run.DeliveryID, run.EventType, run.Action,
		nullBytes(run.Envelope), string(run.Status), run.ResponseBody, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting automation run failed: %w", err)
	}

	return nil
}

func (s *DB) AppendOutcome(ctx context.Context, runID string, outcome *workflow.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_outcomes (run_id, step, status, message, target)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, outcome.Step, string(outcome.Status), outcome.Message, outcome.Target,
	)
	if err != nil {
		return fmt.Errorf("inserting step outcome failed: %w", err)
	}

	return nil
}

func (s *DB) FinalizeRun(ctx context.Context, runID string, status workflow.RunStatus, responseBody string, finalizedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_runs
		 SET status = $1, response_body = $2, finalized_at = $3
		 WHERE id = $4`,
		string(status), responseBody, finalizedAt, runID,
	)
	if err != nil {
		return fmt.Errorf("finalizing automation run failed: %w", err)
	}

	cnt, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if cnt == 0 {
		return fmt.Errorf("automation run %s not found", runID)
	}

	return nil
}

func (s *DB) GetRun(ctx context.Context, id string) (*workflow.AutomationRun, error) {
	var run workflow.AutomationRun
	var status string
	var envelope []byte
	var finalizedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow, delivery_id, event_type, action, envelope,
		        status, response_body, created_at, finalized_at
		 FROM automation_runs WHERE id = $1`, id,
	).Scan(
		&run.ID, &run.Workflow, &run.DeliveryID, &run.EventType, &run.Action,
		&envelope, &status, &run.ResponseBody, &run.CreatedAt, &finalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("automation run %s not found", id)
		}

		return nil, err
	}

	run.Status = workflow.RunStatus(status)
	run.Envelope = envelope

	if finalizedAt.Valid {
		run.FinalizedAt = finalizedAt.Time
	}

	if err := s.loadOutcomes(ctx, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *DB) RunsByDeliveryID(ctx context.Context, deliveryID string) ([]*workflow.AutomationRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM automation_runs WHERE delivery_id = $1 ORDER BY created_at`,
		deliveryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*workflow.AutomationRun, 0, len(ids))

	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}

		result = append(result, run)
	}

	return result, nil
}

func (s *DB) loadOutcomes(ctx context.Context, run *workflow.AutomationRun) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, status, message, target FROM run_outcomes
		 WHERE run_id = $1 ORDER BY seq`,
		run.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome workflow.Outcome
		var status string

		if err := rows.Scan(&outcome.Step, &status, &outcome.Message, &outcome.Target); err != nil {
			return err
		}

		outcome.Status = workflow.OutcomeStatus(status)
		run.Outcomes = append(run.Outcomes, outcome)
	}

	return rows.Err()
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}
