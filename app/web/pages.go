package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/fracas"
	"github.com/umputun/fracas/app/persistence"
)

// errBadRequest marks invalid query params or form input which can't be parsed
var errBadRequest = errors.New("bad request")

func badRequest(err error) error { return fmt.Errorf("%w: %v", errBadRequest, err) }

// errorStatus maps service errors to http status codes
func errorStatus(err error) int {
	var verr fracas.ValidationErrors
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, persistence.ErrConflict), errors.Is(err, persistence.ErrDuplicate),
		errors.Is(err, fracas.ErrInvalidTransition), errors.Is(err, fracas.ErrFailureClosed),
		errors.Is(err, fracas.ErrAnalysisIncomplete), errors.Is(err, fracas.ErrOpenActions),
		errors.Is(err, fracas.ErrPMNotScheduled), errors.Is(err, fracas.ErrPMAlreadyOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// pageError responds with plain error page for errors which can't be shown inside a page
func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	switch status := errorStatus(err); status {
	case http.StatusInternalServerError:
		log.Printf("[ERROR] %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	case http.StatusNotFound:
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), status)
	}
}

// handleDashboard renders status, reliability and trend charts with overdue work and preventive maintenance
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := s.dashboardData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "dashboard.html", "base", data)
}

func (s *Server) dashboardData(r *http.Request) (TemplateData, error) {
	ctx := r.Context()
	q := r.URL.Query()
	f, err := s.parseFilter(q)
	if err != nil {
		return TemplateData{}, badRequest(err)
	}
	interval, err := parseInterval(q.Get("interval"))
	if err != nil {
		return TemplateData{}, badRequest(err)
	}
	metric, err := parseMetric(q.Get("metric"))
	if err != nil {
		return TemplateData{}, badRequest(err)
	}

	data := s.newTemplateData(r, "dashboard", "Dashboard")
	data.Query = queryValues(q)
	data.Query["interval"], data.Query["metric"] = interval.String(), metric.String()

	sum, sumErr := s.analytics.Summary(ctx, f, interval, metric)
	if sumErr != nil {
		log.Printf("[WARN] can't build dashboard summary: %v", sumErr)
		data.Error = "analytics unavailable: " + sumErr.Error()
	}
	data.Summary = sum
	data.Charts = make([]ChartView, 0, len(chartNames))
	for _, name := range chartNames {
		partErr := sum.Err(chartPart(name))
		if partErr == nil {
			partErr = sumErr
		}
		buf := new(bytes.Buffer)
		s.writeChart(buf, name, sum, partErr, chartOptions(name, 0, 0))
		svg := template.HTML(buf.String()) //nolint:gosec // svg built by chart package, text escaped
		data.Charts = append(data.Charts, ChartView{Name: name, SVG: svg})
	}

	if data.WorkOrders, err = s.svc.ListWorkOrders(ctx, persistence.WorkOrderQuery{OverdueAt: time.Now(),
		Sort: persistence.SortDue, Limit: 10}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list overdue work orders: %w", err)
	}
	if data.Actions, err = s.svc.ListActions(ctx, persistence.ActionQuery{OverdueAt: time.Now(), Limit: 10}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list overdue actions: %w", err)
	}
	if data.PM, err = s.svc.PreventiveDue(ctx); err != nil {
		return TemplateData{}, fmt.Errorf("failed to evaluate preventive maintenance: %w", err)
	}
	if len(data.PM) > 10 {
		data.PM = data.PM[:10]
	}
	if data.Assets, err = s.svc.ListAssets(ctx, persistence.AssetQuery{}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list assets: %w", err)
	}
	if data.Categories, err = s.svc.AssetCategories(ctx); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list categories: %w", err)
	}
	return data, nil
}

// loadLookups loads active users, assets, failure modes and causes for form selects
func (s *Server) loadLookups(ctx context.Context, data *TemplateData) (err error) {
	if data.Users, err = s.svc.ListUsers(ctx, true); err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if data.Assets, err = s.svc.ListAssets(ctx, persistence.AssetQuery{}); err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	if data.Modes, err = s.svc.ListFailureModes(ctx); err != nil {
		return fmt.Errorf("failed to list failure modes: %w", err)
	}
	if data.Causes, err = s.svc.ListFailureCauses(ctx); err != nil {
		return fmt.Errorf("failed to list failure causes: %w", err)
	}
	return nil
}

// work orders

func (s *Server) handleWorkOrders(w http.ResponseWriter, r *http.Request) {
	data, err := s.workOrdersData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "workorders.html", "base", data)
}

// handleWorkOrdersPartial returns filtered work order rows for htmx
func (s *Server) handleWorkOrdersPartial(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "workorders", "")
	if err := s.loadWorkOrders(r, &data); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "partials", "workorder-rows", data)
}

func (s *Server) workOrdersData(r *http.Request) (TemplateData, error) {
	data := s.newTemplateData(r, "workorders", "Work orders")
	if err := s.loadWorkOrders(r, &data); err != nil {
		return TemplateData{}, err
	}
	if err := s.loadLookups(r.Context(), &data); err != nil {
		return TemplateData{}, err
	}
	return data, nil
}

func (s *Server) loadWorkOrders(r *http.Request, data *TemplateData) error {
	wq, page, err := s.workOrderQuery(r)
	if err != nil {
		return badRequest(err)
	}
	wos, err := s.svc.ListWorkOrders(r.Context(), wq)
	if err != nil {
		return fmt.Errorf("failed to list work orders: %w", err)
	}
	hasNext := len(wos) > s.pageSize
	if hasNext {
		wos = wos[:s.pageSize]
	}
	data.WorkOrders = wos
	data.Query = queryValues(r.URL.Query())
	s.setPager(data, "/workorders", r.URL.Query(), page, hasNext)
	return nil
}

func (s *Server) handleWorkOrder(w http.ResponseWriter, r *http.Request) {
	data, err := s.workOrderData(r, r.PathValue("id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "workorder.html", "base", data)
}

func (s *Server) workOrderData(r *http.Request, id string) (data TemplateData, err error) {
	ctx := r.Context()
	wo, err := s.svc.GetWorkOrder(ctx, id)
	if err != nil {
		return TemplateData{}, err
	}
	data = s.newTemplateData(r, "workorders", wo.Ref()+" "+wo.Title)
	data.WorkOrder = wo
	if data.History, err = s.svc.WorkOrderHistory(ctx, id); err != nil {
		return TemplateData{}, fmt.Errorf("failed to get history of %s: %w", wo.Ref(), err)
	}
	if wo.FailureID != "" {
		if data.Failure, err = s.svc.GetFailure(ctx, wo.FailureID); err != nil {
			return TemplateData{}, fmt.Errorf("failed to get failure of %s: %w", wo.Ref(), err)
		}
	}
	if data.Users, err = s.svc.ListUsers(ctx, true); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list users: %w", err)
	}
	return data, nil
}

// failures

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	data, err := s.failuresData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "failures.html", "base", data)
}

// handleFailuresPartial returns filtered failure rows for htmx
func (s *Server) handleFailuresPartial(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "failures", "")
	if err := s.loadFailures(r, &data); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "partials", "failure-rows", data)
}

func (s *Server) failuresData(r *http.Request) (TemplateData, error) {
	data := s.newTemplateData(r, "failures", "Failures")
	if err := s.loadFailures(r, &data); err != nil {
		return TemplateData{}, err
	}
	if err := s.loadLookups(r.Context(), &data); err != nil {
		return TemplateData{}, err
	}
	return data, nil
}

func (s *Server) loadFailures(r *http.Request, data *TemplateData) error {
	fq, page, err := s.failureQuery(r)
	if err != nil {
		return badRequest(err)
	}
	failures, err := s.svc.ListFailures(r.Context(), fq)
	if err != nil {
		return fmt.Errorf("failed to list failures: %w", err)
	}
	hasNext := len(failures) > s.pageSize
	if hasNext {
		failures = failures[:s.pageSize]
	}
	data.Failures = failures
	data.Query = queryValues(r.URL.Query())
	s.setPager(data, "/failures", r.URL.Query(), page, hasNext)
	return nil
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	data, err := s.failureData(r, r.PathValue("id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "failure.html", "base", data)
}

func (s *Server) failureData(r *http.Request, id string) (data TemplateData, err error) {
	ctx := r.Context()
	f, err := s.svc.GetFailure(ctx, id)
	if err != nil {
		return TemplateData{}, err
	}
	data = s.newTemplateData(r, "failures", f.Ref()+" "+f.Title)
	data.Failure = f
	if data.Actions, err = s.svc.ListActions(ctx, persistence.ActionQuery{FailureID: id}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list actions of %s: %w", f.Ref(), err)
	}
	if data.WorkOrders, err = s.svc.ListWorkOrders(ctx, persistence.WorkOrderQuery{FailureID: id}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list work orders of %s: %w", f.Ref(), err)
	}
	if err := s.loadLookups(ctx, &data); err != nil {
		return TemplateData{}, err
	}
	return data, nil
}

// corrective actions

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	data, err := s.actionsData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "actions.html", "base", data)
}

// handleActionsPartial returns filtered corrective action rows for htmx
func (s *Server) handleActionsPartial(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "actions", "")
	if err := s.loadActions(r, &data); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "partials", "action-rows", data)
}

func (s *Server) actionsData(r *http.Request) (TemplateData, error) {
	data := s.newTemplateData(r, "actions", "Corrective actions")
	if err := s.loadActions(r, &data); err != nil {
		return TemplateData{}, err
	}
	users, err := s.svc.ListUsers(r.Context(), false)
	if err != nil {
		return TemplateData{}, fmt.Errorf("failed to list users: %w", err)
	}
	data.Users = users
	return data, nil
}

func (s *Server) loadActions(r *http.Request, data *TemplateData) error {
	aq, err := s.actionQuery(r)
	if err != nil {
		return badRequest(err)
	}
	if data.Actions, err = s.svc.ListActions(r.Context(), aq); err != nil {
		return fmt.Errorf("failed to list actions: %w", err)
	}
	data.Query = queryValues(r.URL.Query())
	return nil
}

// assets

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	data, err := s.assetsData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "assets.html", "base", data)
}

// handleAssetsPartial returns filtered asset rows for htmx
func (s *Server) handleAssetsPartial(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "assets", "")
	if err := s.loadAssets(r, &data); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "partials", "asset-rows", data)
}

func (s *Server) assetsData(r *http.Request) (data TemplateData, err error) {
	ctx := r.Context()
	data = s.newTemplateData(r, "assets", "Assets")
	if err := s.loadAssets(r, &data); err != nil {
		return TemplateData{}, err
	}
	if data.Categories, err = s.svc.AssetCategories(ctx); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list categories: %w", err)
	}
	if data.PM, err = s.svc.PreventiveDue(ctx); err != nil {
		return TemplateData{}, fmt.Errorf("failed to evaluate preventive maintenance: %w", err)
	}
	return data, nil
}

func (s *Server) loadAssets(r *http.Request, data *TemplateData) (err error) {
	if data.Assets, err = s.svc.ListAssets(r.Context(), assetQuery(r)); err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	data.Query = queryValues(r.URL.Query())
	return nil
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	data, err := s.assetData(r, r.PathValue("id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "asset.html", "base", data)
}

// assetData loads asset with its recent work orders and failures, reliability numbers and preventive status
func (s *Server) assetData(r *http.Request, id string) (data TemplateData, err error) {
	ctx := r.Context()
	a, err := s.svc.GetAsset(ctx, id)
	if err != nil {
		return TemplateData{}, err
	}
	data = s.newTemplateData(r, "assets", a.Tag+" "+a.Name)
	data.Asset = a
	if data.WorkOrders, err = s.svc.ListWorkOrders(ctx, persistence.WorkOrderQuery{AssetID: id, Limit: s.pageSize}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list work orders of %s: %w", a.Tag, err)
	}
	if data.Failures, err = s.svc.ListFailures(ctx, persistence.FailureQuery{AssetID: id, Limit: s.pageSize}); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list failures of %s: %w", a.Tag, err)
	}
	if data.Users, err = s.svc.ListUsers(ctx, true); err != nil {
		return TemplateData{}, fmt.Errorf("failed to list users: %w", err)
	}

	f := analytics.Filter{AssetID: id}
	if data.Summary.MTTR, err = s.analytics.MTTR(ctx, f); err != nil {
		log.Printf("[WARN] can't get MTTR of %s: %v", a.Tag, err)
	}
	if data.Summary.MTBF, err = s.analytics.MTBF(ctx, f); err != nil {
		log.Printf("[WARN] can't get MTBF of %s: %v", a.Tag, err)
	}

	if a.PMSchedule != "" {
		pm, err := s.svc.PreventiveDue(ctx)
		if err != nil {
			return TemplateData{}, fmt.Errorf("failed to evaluate preventive maintenance: %w", err)
		}
		for _, st := range pm {
			if st.Asset.ID == id {
				data.PM = []fracas.PMStatus{st}
				break
			}
		}
	}
	return data, nil
}

// users

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	data, err := s.usersData(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "users.html", "base", data)
}

// handleUsersPartial returns filtered user rows for htmx
func (s *Server) handleUsersPartial(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r, "users", "")
	if err := s.loadUsers(r, &data); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render(w, "partials", "user-rows", data)
}

func (s *Server) usersData(r *http.Request) (data TemplateData, err error) {
	data = s.newTemplateData(r, "users", "Users")
	if err := s.loadUsers(r, &data); err != nil {
		return TemplateData{}, err
	}
	return data, nil
}

func (s *Server) loadUsers(r *http.Request, data *TemplateData) error {
	f, err := parseUserFilter(r)
	if err != nil {
		return badRequest(err)
	}
	users, err := s.svc.ListUsers(r.Context(), false)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	data.Users = slices.DeleteFunc(users, func(u persistence.User) bool { return !f.match(u) })
	data.Query = queryValues(r.URL.Query())
	return nil
}
