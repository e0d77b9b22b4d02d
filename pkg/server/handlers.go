package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/benchmark"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/server/middleware"
	"aegis-hq/firewall/pkg/server/types"
	"aegis-hq/firewall/pkg/service"
)

// DefaultRecordLimit is the page size for audit record queries without a limit.
const DefaultRecordLimit = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// decodeBody decodes a JSON body and writes the error response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	if middleware.IsBodyTooLarge(err) {
		middleware.TooLarge().Write(w)
		return false
	}
	types.NewInvalidRequestError("Invalid JSON in request body: "+err.Error(), "", types.CodeInvalidJSON).Write(w)
	return false
}

// writeServiceError maps service errors to API errors.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *firewall.ValidationError
	var cerr *policy.ConfigurationError
	switch {
	case errors.As(err, &verr):
		types.NewValidationError(verr.Error(), verr.Field).Write(w)
	case errors.As(err, &cerr):
		types.NewInvalidRequestError(cerr.Error(), "mode", types.CodeUnknownMode).Write(w)
	case errors.Is(err, service.ErrLearningDisabled):
		types.NewServiceUnavailableError(err.Error(), types.CodeLearningDisabled).Write(w)
	default:
		s.logger.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		types.NewServerError("internal error").Write(w)
	}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body types.EvaluateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	eval, err := s.opts.Service.Evaluate(r.Context(), body.Firewall())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Service.GetPolicyMode())
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body types.SetModeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Mode) == "" {
		types.NewInvalidRequestError("mode is required", "mode", types.CodeInvalidValue).Write(w)
		return
	}
	cfg, err := s.opts.Service.SetPolicyMode(body.Mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Policy mode changed", "mode", cfg.Mode)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active": s.opts.Service.GetPolicyMode().Mode,
		"modes":  s.opts.Service.ListModes(),
	})
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var body types.OutcomeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.opts.Service.ReportOutcome(r.Context(), body.EvaluationID, body.HumanDecision); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.OutcomeAccepted{
		Status:       "accepted",
		EvaluationID: body.EvaluationID,
	})
}

func (s *Server) auditEnabled(w http.ResponseWriter) bool {
	if s.opts.Audit == nil {
		types.NewServiceUnavailableError("audit trail is not configured", types.CodeAuditDisabled).Write(w)
		return false
	}
	return true
}

func (s *Server) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	if !s.auditEnabled(w) {
		return
	}
	q, err := parseQuery(r.URL.Query())
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}

	records, err := s.opts.Audit.Query(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	countQ := *q
	countQ.Limit, countQ.Offset = 0, 0
	total, err := s.opts.Audit.Count(r.Context(), &countQ)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, http.StatusOK, types.RecordsResponse{
		Records: records,
		Count:   len(records),
		Total:   total,
	})
}

func (s *Server) handleAuditRecord(w http.ResponseWriter, r *http.Request) {
	if !s.auditEnabled(w) {
		return
	}
	id := r.PathValue("id")
	rec, err := s.opts.Audit.Get(r.Context(), id)
	if errors.Is(err, audit.ErrRecordNotFound) {
		types.NewErrorResponse("no audit record for evaluation "+id, types.ErrorTypeNotFound, "id", "").Write(w)
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if !s.auditEnabled(w) {
		return
	}
	q, err := parseQuery(r.URL.Query())
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}
	q.Limit, q.Offset = 0, 0
	st, err := s.opts.Audit.Stats(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if s.opts.Verify == nil {
		types.NewServiceUnavailableError("audit trail is not configured", types.CodeAuditDisabled).Write(w)
		return
	}
	report, err := s.opts.Verify(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.opts.Metrics.RecordChainVerification(report.Valid, report.Checked)
	if !report.Valid {
		s.logger.WarnContext(r.Context(), "Audit chain verification failed",
			"broken_at", report.BrokenAt,
			"reason", report.Reason,
		)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	st, ok := s.opts.Service.LearningStats()
	if !ok {
		types.NewServiceUnavailableError(service.ErrLearningDisabled.Error(), types.CodeLearningDisabled).Write(w)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResetThresholds(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.opts.Service.ResetThresholds(r.Context(), r.PathValue("mode"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Learned thresholds reset", "mode", cfg.Mode)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Service.Stats())
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	report, err := benchmark.Run(r.Context(), s.opts.Service.DryRun, benchmark.Suite(), nil)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeQueryError(w http.ResponseWriter, err error) {
	var qerr *audit.QueryError
	if errors.As(err, &qerr) {
		types.NewInvalidRequestError(qerr.Message, qerr.Field, types.CodeInvalidQuery).Write(w)
		return
	}
	types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidQuery).Write(w)
}

// parseQuery builds an audit query from URL parameters. Values are checked
// for syntax only; Query.Validate checks ranges.
func parseQuery(v url.Values) (*audit.Query, error) {
	q := &audit.Query{
		EvaluationID: v.Get("evaluation_id"),
		Verdict:      v.Get("verdict"),
		Action:       v.Get("action"),
		Mode:         v.Get("mode"),
		Order:        v.Get("order"),
		Limit:        DefaultRecordLimit,
	}
	if q.Mode != "" {
		q.Mode = string(policy.ParseMode(q.Mode))
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_time", &q.StartTime},
		{"end_time", &q.EndTime},
	} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &audit.QueryError{Field: p.name, Message: "must be an RFC 3339 timestamp"}
		}
		*p.dst = &t
	}

	if raw := v.Get("min_risk"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &audit.QueryError{Field: "min_risk", Message: "must be a number"}
		}
		q.MinRisk = &f
	}
	if raw := v.Get("after_sequence"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &audit.QueryError{Field: "after_sequence", Message: "must be an integer"}
		}
		q.AfterSequence = n
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &audit.QueryError{Field: p.name, Message: fmt.Sprintf("must be an integer, got %q", raw)}
		}
		*p.dst = n
	}
	return q, nil
}
