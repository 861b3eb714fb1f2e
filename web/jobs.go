// ABOUTME: Job-facing HTTP handlers
// ABOUTME: Serves per-account job lists, bulk lists, job detail, geometry, and persisted history
package web

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	jobs, err := s.cache.Refresh(r.Context(), accountID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeData(w, http.StatusOK, jobs)
}

type bulkJobsRequest struct {
	AccountIDs []string `json:"account_ids"`
}

type bulkJobsResult struct {
	Jobs   map[string][]models.JobSummary `json:"jobs"`
	Errors map[string]string              `json:"errors,omitempty"`
}

func (s *Server) handleBulkJobs(w http.ResponseWriter, r *http.Request) {
	var req bulkJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request body"))
		return
	}
	if len(req.AccountIDs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("account_ids is required"))
		return
	}
	if len(req.AccountIDs) > bulkAccountLimit {
		writeError(w, http.StatusBadRequest,
			errors.Newf("too many account ids: %d (limit %d)", len(req.AccountIDs), bulkAccountLimit))
		return
	}

	// Per-account failures are reported alongside successes, never aborting
	// the batch.
	result := bulkJobsResult{Jobs: make(map[string][]models.JobSummary)}
	for _, accountID := range req.AccountIDs {
		jobs, err := s.cache.Refresh(r.Context(), accountID)
		if err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[accountID] = err.Error()
			s.log.Warn("bulk refresh failed for account",
				zap.String("account_id", accountID),
				zap.Error(err))
			continue
		}
		result.Jobs[accountID] = jobs
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	jobID := r.PathValue("jobID")

	detail, err := s.cache.JobDetail(r.Context(), accountID, jobID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	jobID := r.PathValue("jobID")

	geometryType := r.URL.Query().Get("type")
	if geometryType == "" {
		geometryType = "requested"
	}

	switch geometryType {
	case "requested":
		fc, err := s.client.GetRequestedGeometry(r.Context(), accountID, jobID)
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeData(w, http.StatusOK, fc)
	case "worked", "worked-detailed":
		fc, err := s.client.GetWorkedGeometry(r.Context(), accountID, jobID, geometryType == "worked-detailed")
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeData(w, http.StatusOK, fc)
	default:
		writeError(w, http.StatusBadRequest,
			errors.Newf("unknown geometry type %q (want requested, worked, or worked-detailed)", geometryType))
	}
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("job history store not configured"))
		return
	}

	jobID := r.PathValue("jobID")
	record, err := s.store.GetJobRecord(jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, errors.Newf("no record for job %s", jobID))
		return
	}
	writeData(w, http.StatusOK, record)
}
