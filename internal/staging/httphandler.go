package staging

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
)

// checkResultRequest is the JSON body build systems post to report a check
// result.
type checkResultRequest struct {
	Project      string `json:"project"`
	Repository   string `json:"repository"`
	Architecture string `json:"architecture,omitempty"`
	ReportUUID   string `json:"report_uuid"`
	Name         string `json:"name"`
	State        string `json:"state"`
	Details      string `json:"details,omitempty"`
}

// CheckResultHandler returns the http handler for check-result ingestion.
// Authentication happens in front of this handler.
func (s *Service) CheckResultHandler() http.HandlerFunc {
	logger := s.logger.Named("http")

	return func(resp http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(resp, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body checkResultRequest

		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(resp, err.Error(), http.StatusBadRequest)
			return
		}

		if body.Project == "" || body.Repository == "" || body.Name == "" {
			http.Error(resp, "project, repository and name are required", http.StatusBadRequest)
			return
		}

		result := CheckResult{
			Project:      body.Project,
			Repository:   body.Repository,
			Architecture: body.Architecture,
			ReportUUID:   body.ReportUUID,
			Name:         body.Name,
			State:        CheckState(body.State),
			Details:      body.Details,
		}

		err := s.RecordCheckResult(req.Context(), &result)
		if err != nil {
			if errors.Is(err, ErrUnknownState) || errors.Is(err, ErrMissingReportID) {
				http.Error(resp, err.Error(), http.StatusBadRequest)
				return
			}

			logger.Error("storing check result failed",
				logfields.Event("check_result_storing_failed"),
				logfields.Project(body.Project),
				logfields.CheckName(body.Name),
				zap.Error(err),
			)

			http.Error(resp, "storing check result failed", http.StatusInternalServerError)
			return
		}

		resp.WriteHeader(http.StatusNoContent)
	}
}
