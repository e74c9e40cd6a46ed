package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/simplesurance/stagecoord/internal/request"
	"github.com/simplesurance/stagecoord/internal/staging"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

// Memory is an in-memory implementation of the same interfaces DB
// implements. It is used in tests and for running without a database.
type Memory struct {
	mu sync.Mutex

	nextRequestNumber int64
	nextReviewID      int64
	requests          map[int64]*request.ChangeRequest

	batches map[string]*staging.Batch
	// checks is keyed by report uuid + "\x00" + check name
	checks map[string]*staging.CheckResult

	runs     map[string]*workflow.AutomationRun
	runOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		nextRequestNumber: 1,
		nextReviewID:      1,
		requests:          map[int64]*request.ChangeRequest{},
		batches:           map[string]*staging.Batch{},
		checks:            map[string]*staging.CheckResult{},
		runs:              map[string]*workflow.AutomationRun{},
	}
}

func cloneRequest(req *request.ChangeRequest) *request.ChangeRequest {
	clone := *req
	clone.Actions = append([]request.Action(nil), req.Actions...)
	clone.Reviews = append([]request.Review(nil), req.Reviews...)

	if req.SupersededBy != nil {
		supersededBy := *req.SupersededBy
		clone.SupersededBy = &supersededBy
	}

	return &clone
}

func (s *Memory) CreateRequest(_ context.Context, req *request.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.Number = s.nextRequestNumber
	s.nextRequestNumber++

	for i := range req.Reviews {
		req.Reviews[i].ID = s.nextReviewID
		s.nextReviewID++
	}

	req.Version = 0
	s.requests[req.Number] = cloneRequest(req)

	return nil
}

func (s *Memory) GetRequest(_ context.Context, number int64) (*request.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exist := s.requests[number]
	if !exist {
		return nil, request.ErrNotFound
	}

	return cloneRequest(req), nil
}

func (s *Memory) UpdateRequest(_ context.Context, req *request.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exist := s.requests[req.Number]
	if !exist {
		return fmt.Errorf("request %d: %w", req.Number, request.ErrNotFound)
	}

	if stored.Version != req.Version {
		return fmt.Errorf("request %d: %w", req.Number, request.ErrVersionConflict)
	}

	for i := range req.Reviews {
		if req.Reviews[i].ID == 0 {
			req.Reviews[i].ID = s.nextReviewID
			s.nextReviewID++
		}
	}

	req.Version++
	s.requests[req.Number] = cloneRequest(req)

	return nil
}

func (s *Memory) RequestsByTarget(_ context.Context, project, pkg string) ([]*request.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*request.ChangeRequest

	for _, req := range s.requests {
		if req.State.Terminal() {
			continue
		}

		for _, action := range req.Actions {
			if action.TargetProject != project {
				continue
			}

			if pkg != "" && action.TargetPackage != pkg {
				continue
			}

			result = append(result, cloneRequest(req))
			break
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })

	return result, nil
}

func (s *Memory) CreateBatch(_ context.Context, batch *staging.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exist := s.batches[batch.Name]; exist {
		return fmt.Errorf("batch %q exists already", batch.Name)
	}

	clone := *batch
	s.batches[batch.Name] = &clone

	return nil
}

func (s *Memory) GetBatch(_ context.Context, name string) (*staging.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exist := s.batches[name]
	if !exist {
		return nil, fmt.Errorf("batch %q: %w", name, staging.ErrBatchNotFound)
	}

	clone := *batch
	clone.Requests = nil

	for _, req := range s.requests {
		if req.StagingBatch == name {
			clone.Requests = append(clone.Requests, req.Number)
		}
	}

	sort.Slice(clone.Requests, func(i, j int) bool { return clone.Requests[i] < clone.Requests[j] })

	return &clone, nil
}

func (s *Memory) DeleteBatch(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exist := s.batches[name]; !exist {
		return fmt.Errorf("batch %q: %w", name, staging.ErrBatchNotFound)
	}

	delete(s.batches, name)

	return nil
}

func (s *Memory) SetRequestBatch(_ context.Context, requestNumber int64, batchName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exist := s.requests[requestNumber]
	if !exist {
		return fmt.Errorf("request %d: %w", requestNumber, request.ErrNotFound)
	}

	req.StagingBatch = batchName

	return nil
}

func (s *Memory) StagedRequests(_ context.Context, batchName string) ([]*request.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*request.ChangeRequest

	for _, req := range s.requests {
		if req.StagingBatch == batchName {
			result = append(result, cloneRequest(req))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })

	return result, nil
}

func checkKey(reportUUID, name string) string {
	return reportUUID + "\x00" + name
}

func (s *Memory) UpsertCheckResult(_ context.Context, result *staging.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *result
	s.checks[checkKey(result.ReportUUID, result.Name)] = &clone

	return nil
}

func (s *Memory) CheckResultsForTarget(_ context.Context, project, repository, architecture string) ([]*staging.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*staging.CheckResult

	for _, res := range s.checks {
		if res.Project != project || res.Repository != repository || res.Architecture != architecture {
			continue
		}

		clone := *res
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

func cloneRun(run *workflow.AutomationRun) *workflow.AutomationRun {
	clone := *run
	clone.Outcomes = append([]workflow.Outcome(nil), run.Outcomes...)
	clone.Envelope = append([]byte(nil), run.Envelope...)

	return &clone
}

func (s *Memory) CreateRun(_ context.Context, run *workflow.AutomationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exist := s.runs[run.ID]; exist {
		return fmt.Errorf("automation run %s exists already", run.ID)
	}

	s.runs[run.ID] = cloneRun(run)
	s.runOrder = append(s.runOrder, run.ID)

	return nil
}

func (s *Memory) AppendOutcome(_ context.Context, runID string, outcome *workflow.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exist := s.runs[runID]
	if !exist {
		return fmt.Errorf("automation run %s not found", runID)
	}

	run.Outcomes = append(run.Outcomes, *outcome)

	return nil
}

func (s *Memory) FinalizeRun(_ context.Context, runID string, status workflow.RunStatus, responseBody string, finalizedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exist := s.runs[runID]
	if !exist {
		return fmt.Errorf("automation run %s not found", runID)
	}

	run.Status = status
	run.ResponseBody = responseBody
	run.FinalizedAt = finalizedAt

	return nil
}

func (s *Memory) GetRun(_ context.Context, id string) (*workflow.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exist := s.runs[id]
	if !exist {
		return nil, fmt.Errorf("automation run %s not found", id)
	}

	return cloneRun(run), nil
}

func (s *Memory) RunsByDeliveryID(_ context.Context, deliveryID string) ([]*workflow.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*workflow.AutomationRun

	for _, id := range s.runOrder {
		run := s.runs[id]

		if run.DeliveryID == deliveryID {
			result = append(result, cloneRun(run))
		}
	}

	return result, nil
}
