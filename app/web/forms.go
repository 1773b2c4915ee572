package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas"
	"github.com/umputun/fracas/app/fracas/request"
)

// formParser converts form values to request fields, collecting conversion errors as validation errors
type formParser struct {
	s    *Server
	r    *http.Request
	errs fracas.ValidationErrors
}

func (p *formParser) str(field string) string { return strings.TrimSpace(p.r.PostFormValue(field)) }

func (p *formParser) fail(field, tag, msg string) {
	p.errs = append(p.errs, fracas.ValidationError{Field: field, Tag: tag, Message: msg})
}

// date parses a date input as the end of that day, so due dates are inclusive
func (p *formParser) date(field string) time.Time {
	v := p.str(field)
	if v == "" {
		return time.Time{}
	}
	t, dateOnly, err := p.s.parseTime(v)
	if err != nil {
		p.fail(field, "date", field+" must be a date, YYYY-MM-DD")
		return time.Time{}
	}
	if dateOnly {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t
}

// moment parses a date or datetime-local input as is
func (p *formParser) moment(field string) time.Time {
	v := p.str(field)
	if v == "" {
		return time.Time{}
	}
	t, _, err := p.s.parseTime(v)
	if err != nil {
		p.fail(field, "datetime", field+" must be a date and time")
		return time.Time{}
	}
	return t
}

func (p *formParser) float(field string) float64 {
	v := p.str(field)
	if v == "" {
		return 0
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(field, "number", field+" must be a number")
	}
	return res
}

// intPtr parses optional integer, nil for empty input
func (p *formParser) intPtr(field string) *int {
	v := p.str(field)
	if v == "" {
		return nil
	}
	res, err := strconv.Atoi(v)
	if err != nil {
		p.fail(field, "number", field+" must be a whole number")
		return nil
	}
	return &res
}

func (p *formParser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs
}

// parseForm parses the posted form, responding with 400 if it can't be parsed
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) (*formParser, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return nil, false
	}
	return &formParser{s: s, r: r}, true
}

// redirect sends the browser to the page at path after a successful post
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, s.url(path), http.StatusSeeOther)
}

// formFailed re-renders the page with submitted values and the error. Validation errors are shown next to
// their fields with 422, violated rules as a form message with 409. Missing records and internal errors
// get a plain error response.
func (s *Server) formFailed(w http.ResponseWriter, r *http.Request, err error, page string, build func() (TemplateData, error)) {
	status := errorStatus(err)
	if status == http.StatusNotFound || status == http.StatusInternalServerError {
		s.pageError(w, r, err)
		return
	}
	data, berr := build()
	if berr != nil {
		s.pageError(w, r, berr)
		return
	}
	data.Form = make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			data.Form[k] = v[0]
		}
	}
	data.Error = err.Error()
	var verr fracas.ValidationErrors
	if errors.As(err, &verr) {
		data.Errors = verr.ByField()
	}
	s.renderStatus(w, status, page, "base", data)
}

// work orders

func (s *Server) handleCreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "workorders.html", func() (TemplateData, error) { return s.workOrdersData(r) })
	}
	req := request.OpenWorkOrder{
		Title: p.str("title"), Description: p.str("description"), Type: enums.WorkOrderType(p.str("type")),
		Priority: enums.Priority(p.str("priority")), AssetID: p.str("asset_id"), FailureID: p.str("failure_id"),
		AssigneeID: p.str("assignee_id"), RequestedBy: p.str("requested_by"), DueAt: p.date("due_at"),
	}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	wo, err := s.svc.OpenWorkOrder(r.Context(), req)
	if err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/workorders/"+wo.ID)
}

func (s *Server) handleTransitionWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "workorder.html", func() (TemplateData, error) { return s.workOrderData(r, id) })
	}
	req := request.TransitionWorkOrder{ID: id, To: enums.WorkOrderStatus(p.str("to")), ActorID: p.str("actor_id"),
		Note: p.str("note"), Resolution: p.str("resolution"), LaborHours: p.float("labor_hours")}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	if _, err := s.svc.TransitionWorkOrder(r.Context(), req); err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/workorders/"+id)
}

func (s *Server) handleAssignWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	req := request.AssignWorkOrder{ID: id, AssigneeID: p.str("assignee_id"), ActorID: p.str("actor_id")}
	if _, err := s.svc.AssignWorkOrder(r.Context(), req); err != nil {
		s.formFailed(w, r, err, "workorder.html", func() (TemplateData, error) { return s.workOrderData(r, id) })
		return
	}
	s.redirect(w, r, "/workorders/"+id)
}

// failures

func (s *Server) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "failures.html", func() (TemplateData, error) { return s.failuresData(r) })
	}
	req := request.ReportFailure{
		AssetID: p.str("asset_id"), ReportedBy: p.str("reported_by"), Title: p.str("title"),
		Description: p.str("description"), Severity: enums.Severity(p.str("severity")), OccurredAt: p.moment("occurred_at"),
		OpenWorkOrder: p.str("open_work_order") != "", AssigneeID: p.str("assignee_id"),
	}
	if downtime := p.intPtr("downtime_minutes"); downtime != nil {
		req.DowntimeMinutes = *downtime
	}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	f, err := s.svc.ReportFailure(r.Context(), req)
	if err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/failures/"+f.ID)
}

func (s *Server) handleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "failure.html", func() (TemplateData, error) { return s.failureData(r, id) })
	}
	req := request.RecordAnalysis{ID: id, FailureMode: p.str("failure_mode"), FailureCause: p.str("failure_cause"),
		RootCause: p.str("root_cause"), DowntimeMinutes: p.intPtr("downtime_minutes")}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	if _, err := s.svc.RecordAnalysis(r.Context(), req); err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/failures/"+id)
}

func (s *Server) handleCloseFailure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.svc.CloseFailure(r.Context(), id); err != nil {
		s.formFailed(w, r, err, "failure.html", func() (TemplateData, error) { return s.failureData(r, id) })
		return
	}
	s.redirect(w, r, "/failures/"+id)
}

func (s *Server) handleReopenFailure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.svc.ReopenFailure(r.Context(), id); err != nil {
		s.formFailed(w, r, err, "failure.html", func() (TemplateData, error) { return s.failureData(r, id) })
		return
	}
	s.redirect(w, r, "/failures/"+id)
}

// corrective actions

func (s *Server) handleAddAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "failure.html", func() (TemplateData, error) { return s.failureData(r, id) })
	}
	req := request.AddAction{FailureID: id, Description: p.str("description"), OwnerID: p.str("owner_id"),
		DueAt: p.date("due_at")}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	if _, err := s.svc.AddCorrectiveAction(r.Context(), req); err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/failures/"+id)
}

// handleTransitionAction moves a corrective action, posted either from the actions list (back=actions)
// or from the page of its failure
func (s *Server) handleTransitionAction(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	toList, failureID := p.str("back") == "actions", p.str("failure_id")
	req := request.TransitionAction{ID: r.PathValue("id"), To: enums.ActionStatus(p.str("to")), Note: p.str("note")}
	a, err := s.svc.TransitionAction(r.Context(), req)
	if err != nil {
		if toList || failureID == "" {
			s.formFailed(w, r, err, "actions.html", func() (TemplateData, error) { return s.actionsData(r) })
			return
		}
		s.formFailed(w, r, err, "failure.html", func() (TemplateData, error) { return s.failureData(r, failureID) })
		return
	}
	if toList {
		s.redirect(w, r, "/actions")
		return
	}
	s.redirect(w, r, "/failures/"+a.FailureID)
}

// assets

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	failed := func(err error) {
		s.formFailed(w, r, err, "assets.html", func() (TemplateData, error) { return s.assetsData(r) })
	}
	req := request.CreateAsset{
		Tag: p.str("tag"), Name: p.str("name"), Category: p.str("category"), Location: p.str("location"),
		Criticality: enums.Criticality(p.str("criticality")), PMSchedule: p.str("pm_schedule"),
		InServiceAt: p.moment("in_service_at"),
	}
	if err := p.err(); err != nil {
		failed(err)
		return
	}
	a, err := s.svc.CreateAsset(r.Context(), req)
	if err != nil {
		failed(err)
		return
	}
	s.redirect(w, r, "/assets/"+a.ID)
}

func (s *Server) handleGeneratePM(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	wo, err := s.svc.GeneratePreventiveWorkOrder(r.Context(), id, p.str("actor_id"))
	if err != nil {
		s.formFailed(w, r, err, "asset.html", func() (TemplateData, error) { return s.assetData(r, id) })
		return
	}
	s.redirect(w, r, "/workorders/"+wo.ID)
}

// users

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	req := request.CreateUser{Name: p.str("name"), Email: p.str("email"), Role: enums.Role(p.str("role"))}
	if _, err := s.svc.CreateUser(r.Context(), req); err != nil {
		s.formFailed(w, r, err, "users.html", func() (TemplateData, error) { return s.usersData(r) })
		return
	}
	s.redirect(w, r, "/users")
}
