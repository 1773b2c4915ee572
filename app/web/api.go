package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/fracas"
	"github.com/umputun/fracas/app/fracas/request"
	"github.com/umputun/fracas/app/persistence"
)

// APIStatusResponse is the JSON response for /api/v1/status
type APIStatusResponse struct {
	Version           string                 `json:"version"`
	Status            analytics.StatusCounts `json:"status"`
	PreventiveOverdue int                    `json:"preventive_overdue"`
	Timestamp         time.Time              `json:"timestamp"`
}

// APIWorkOrdersResponse is a page of work orders
type APIWorkOrdersResponse struct {
	WorkOrders []persistence.WorkOrder `json:"work_orders"`
	Page       int                     `json:"page"`
	HasNext    bool                    `json:"has_next"`
}

// APIWorkOrderResponse is a work order with its status history
type APIWorkOrderResponse struct {
	WorkOrder persistence.WorkOrder        `json:"work_order"`
	History   []persistence.WorkOrderEvent `json:"history"`
}

// APIFailuresResponse is a page of failure reports
type APIFailuresResponse struct {
	Failures []persistence.FailureReport `json:"failures"`
	Page     int                         `json:"page"`
	HasNext  bool                        `json:"has_next"`
}

// APIFailureResponse is a failure report with its corrective actions and work orders
type APIFailureResponse struct {
	Failure    persistence.FailureReport      `json:"failure"`
	Actions    []persistence.CorrectiveAction `json:"actions"`
	WorkOrders []persistence.WorkOrder        `json:"work_orders"`
}

// APIValidationError is the JSON response for invalid requests
type APIValidationError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// handleAPIStatus returns status counts for CLI/jq consumption
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.analytics.StatusCounts(r.Context(), analytics.Filter{})
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	pm, err := s.svc.PreventiveDue(r.Context())
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	resp := APIStatusResponse{Version: s.version, Status: counts, Timestamp: time.Now()}
	for _, st := range pm {
		if st.Overdue {
			resp.PreventiveOverdue++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIHealth returns host and database health report
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.health.Report(r.Context()))
}

func (s *Server) handleAPIWorkOrders(w http.ResponseWriter, r *http.Request) {
	wq, page, err := s.workOrderQuery(r)
	if err != nil {
		s.writeAPIError(w, r, badRequest(err))
		return
	}
	wos, err := s.svc.ListWorkOrders(r.Context(), wq)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	resp := APIWorkOrdersResponse{WorkOrders: wos, Page: page, HasNext: len(wos) > s.pageSize}
	if resp.HasNext {
		resp.WorkOrders = wos[:s.pageSize]
	}
	if resp.WorkOrders == nil {
		resp.WorkOrders = []persistence.WorkOrder{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wo, err := s.svc.GetWorkOrder(r.Context(), id)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	history, err := s.svc.WorkOrderHistory(r.Context(), id)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, APIWorkOrderResponse{WorkOrder: wo, History: history})
}

func (s *Server) handleAPICreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req request.OpenWorkOrder
	if err := decodeJSON(r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	wo, err := s.svc.OpenWorkOrder(r.Context(), req)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wo)
}

// handleAPITransitionWorkOrder moves work order to the status in the body, id is taken from the path
func (s *Server) handleAPITransitionWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req request.TransitionWorkOrder
	if err := decodeJSON(r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	req.ID = r.PathValue("id")
	wo, err := s.svc.TransitionWorkOrder(r.Context(), req)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wo)
}

func (s *Server) handleAPIFailures(w http.ResponseWriter, r *http.Request) {
	fq, page, err := s.failureQuery(r)
	if err != nil {
		s.writeAPIError(w, r, badRequest(err))
		return
	}
	failures, err := s.svc.ListFailures(r.Context(), fq)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	resp := APIFailuresResponse{Failures: failures, Page: page, HasNext: len(failures) > s.pageSize}
	if resp.HasNext {
		resp.Failures = failures[:s.pageSize]
	}
	if resp.Failures == nil {
		resp.Failures = []persistence.FailureReport{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIFailure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := s.svc.GetFailure(r.Context(), id)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	resp := APIFailureResponse{Failure: f}
	if resp.Actions, err = s.svc.ListActions(r.Context(), persistence.ActionQuery{FailureID: id}); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	if resp.WorkOrders, err = s.svc.ListWorkOrders(r.Context(), persistence.WorkOrderQuery{FailureID: id}); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIPreventive returns preventive maintenance state of scheduled assets, earliest due first
func (s *Server) handleAPIPreventive(w http.ResponseWriter, r *http.Request) {
	pm, err := s.svc.PreventiveDue(r.Context())
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	if pm == nil {
		pm = []fracas.PMStatus{}
	}
	s.writeJSON(w, http.StatusOK, pm)
}

// handleAPIAnalytics returns one aggregation (status, mttr, mtbf, pareto, trend) or all of them (summary)
// for the filter in query params
func (s *Server) handleAPIAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := s.parseFilter(q)
	if err != nil {
		s.writeAPIError(w, r, badRequest(err))
		return
	}
	interval, err := parseInterval(q.Get("interval"))
	if err != nil {
		s.writeAPIError(w, r, badRequest(err))
		return
	}
	metric, err := parseMetric(q.Get("metric"))
	if err != nil {
		s.writeAPIError(w, r, badRequest(err))
		return
	}

	ctx := r.Context()
	var resp any
	switch r.PathValue("name") {
	case "status":
		resp, err = s.analytics.StatusCounts(ctx, f)
	case "mttr":
		resp, err = s.analytics.MTTR(ctx, f)
	case "mtbf":
		resp, err = s.analytics.MTBF(ctx, f)
	case "pareto":
		resp, err = s.analytics.Pareto(ctx, f, metric)
	case "trend":
		resp, err = s.analytics.Trend(ctx, f, interval)
		if errors.Is(err, analytics.ErrTooManyPoints) {
			err = badRequest(err)
		}
	case "summary":
		var sum analytics.Summary
		sum, err = s.analytics.Summary(ctx, f, interval, metric)
		if terr := sum.Err(analytics.PartTrend); errors.Is(terr, analytics.ErrTooManyPoints) {
			err = badRequest(terr) // bad range, not a partial failure
		}
		resp = sum
	default:
		s.writeJSONError(w, http.StatusNotFound, "unknown analytics "+r.PathValue("name"))
		return
	}
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decodeJSON reads request body into v, unknown fields are rejected
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(err)
	}
	return nil
}

// writeAPIError maps service error to status code and writes it as JSON, validation errors include fields
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	var verr fracas.ValidationErrors
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, status, APIValidationError{Error: verr.Error(), Fields: verr.ByField()})
	case status == http.StatusInternalServerError:
		log.Printf("[ERROR] %s %s: %v", r.Method, r.URL.Path, err)
		s.writeJSONError(w, status, "internal error")
	case status == http.StatusNotFound:
		s.writeJSONError(w, status, "not found")
	default:
		s.writeJSONError(w, status, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
