// Package web implements the dashboard web server: pages with forms and tables, htmx partials, on-the-fly
// SVG charts, settings modal and JSON API
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/fracas"
	"github.com/umputun/fracas/app/fracas/request"
	"github.com/umputun/fracas/app/health"
	"github.com/umputun/fracas/app/persistence"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// pages rendered with the base layout, each defines its own "content"
var pages = []string{"dashboard.html", "workorders.html", "workorder.html", "failures.html", "failure.html",
	"actions.html", "assets.html", "asset.html", "users.html"}

// Server represents the web server
type Server struct {
	svc            Service
	analytics      Analytics
	health         HealthReporter
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /fracas), empty for root
	hostname       string // hostname to display in UI
	version        string
	pageSize       int
	loc            *time.Location              // time zone of date inputs
	csrfProtection *http.CrossOriginProtection // csrf protection for POST endpoints
	writeLimiter   *limiter.Limiter            // rate limit of POST endpoints
	settingsInfo   SettingsInfo                // runtime configuration for settings/about modal
}

// Service defines fracas operations the web layer dispatches to
type Service interface {
	CreateUser(ctx context.Context, req request.CreateUser) (persistence.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]persistence.User, error)
	ListFailureModes(ctx context.Context) ([]persistence.FailureMode, error)
	ListFailureCauses(ctx context.Context) ([]persistence.FailureCause, error)

	CreateAsset(ctx context.Context, req request.CreateAsset) (persistence.Asset, error)
	GetAsset(ctx context.Context, id string) (persistence.Asset, error)
	ListAssets(ctx context.Context, q persistence.AssetQuery) ([]persistence.Asset, error)
	AssetCategories(ctx context.Context) ([]string, error)

	OpenWorkOrder(ctx context.Context, req request.OpenWorkOrder) (persistence.WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (persistence.WorkOrder, error)
	ListWorkOrders(ctx context.Context, q persistence.WorkOrderQuery) ([]persistence.WorkOrder, error)
	WorkOrderHistory(ctx context.Context, id string) ([]persistence.WorkOrderEvent, error)
	TransitionWorkOrder(ctx context.Context, req request.TransitionWorkOrder) (persistence.WorkOrder, error)
	AssignWorkOrder(ctx context.Context, req request.AssignWorkOrder) (persistence.WorkOrder, error)

	ReportFailure(ctx context.Context, req request.ReportFailure) (persistence.FailureReport, error)
	GetFailure(ctx context.Context, id string) (persistence.FailureReport, error)
	ListFailures(ctx context.Context, q persistence.FailureQuery) ([]persistence.FailureReport, error)
	RecordAnalysis(ctx context.Context, req request.RecordAnalysis) (persistence.FailureReport, error)
	CloseFailure(ctx context.Context, id string) (persistence.FailureReport, error)
	ReopenFailure(ctx context.Context, id string) (persistence.FailureReport, error)

	AddCorrectiveAction(ctx context.Context, req request.AddAction) (persistence.CorrectiveAction, error)
	ListActions(ctx context.Context, q persistence.ActionQuery) ([]persistence.CorrectiveAction, error)
	TransitionAction(ctx context.Context, req request.TransitionAction) (persistence.CorrectiveAction, error)

	PreventiveDue(ctx context.Context) ([]fracas.PMStatus, error)
	GeneratePreventiveWorkOrder(ctx context.Context, assetID, actorID string) (persistence.WorkOrder, error)
}

// Analytics defines aggregations behind the dashboard and charts
type Analytics interface {
	Summary(ctx context.Context, f analytics.Filter, interval enums.TrendInterval, metric enums.ParetoMetric) (analytics.Summary, error)
	StatusCounts(ctx context.Context, f analytics.Filter) (analytics.StatusCounts, error)
	MTTR(ctx context.Context, f analytics.Filter) (analytics.MTTR, error)
	MTBF(ctx context.Context, f analytics.Filter) (analytics.MTBF, error)
	Pareto(ctx context.Context, f analytics.Filter, metric enums.ParetoMetric) (analytics.Pareto, error)
	Trend(ctx context.Context, f analytics.Filter, interval enums.TrendInterval) (analytics.Trend, error)
}

// HealthReporter reports host and database state
type HealthReporter interface {
	Report(ctx context.Context) health.Report
}

// TemplateData holds data for templates
type TemplateData struct {
	Title       string
	Page        string // active navigation item
	CurrentYear int
	Now         time.Time
	BaseURL     string // base URL path for reverse proxy (e.g., /fracas)
	Hostname    string // hostname to display in UI
	Theme       enums.Theme
	Version     string // application version (short form)
	FullVersion string // full application version

	Query   map[string]string // current filter values
	Form    map[string]string // submitted form values, set when a form is re-rendered
	Errors  map[string]string // field -> validation message of the submitted form
	Error   string            // form-level error, e.g. invalid transition
	PageNum int
	PrevURL string // previous page of a list, empty on the first one
	NextURL string // next page of a list, empty on the last one

	// lookups for forms and filters
	Users      []persistence.User
	Assets     []persistence.Asset
	Modes      []persistence.FailureMode
	Causes     []persistence.FailureCause
	Categories []string

	WorkOrders []persistence.WorkOrder
	WorkOrder  persistence.WorkOrder
	History    []persistence.WorkOrderEvent
	Failures   []persistence.FailureReport
	Failure    persistence.FailureReport
	Actions    []persistence.CorrectiveAction
	Asset      persistence.Asset
	PM         []fracas.PMStatus
	Summary    analytics.Summary
	Charts     []ChartView
}

// ChartView is a chart rendered inline into a page
type ChartView struct {
	Name string
	SVG  template.HTML
}

// newTemplateData creates a TemplateData with common fields populated from request
func (s *Server) newTemplateData(r *http.Request, page, title string) TemplateData {
	now := time.Now()
	return TemplateData{
		Title:       title,
		Page:        page,
		CurrentYear: now.Year(),
		Now:         now,
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		Theme:       s.getTheme(r),
		Version:     shortVersion(s.version),
		FullVersion: s.version,
		Query:       map[string]string{},
		PageNum:     1,
	}
}

// Config holds server configuration
type Config struct {
	Service    Service
	Analytics  Analytics
	Health     HealthReporter
	BaseURL    string // base URL path for reverse proxy (e.g., /fracas), empty for root
	Hostname   string // hostname to display in UI
	Version    string
	PageSize   int            // rows per list page, 50 if not set
	WriteLimit float64        // max POST requests per second per client, 10 if not set
	Location   *time.Location // time zone of date inputs, local if not set
	Settings   SettingsInfo   // runtime configuration for settings/about modal
}

// SettingsInfo holds safe-to-display runtime configuration for settings/about modal
type SettingsInfo struct {
	// version & build info
	Version   string
	StartTime time.Time

	// web settings
	WebAddress  string
	WebHostname string
	BaseURL     string
	PageSize    int
	WriteLimit  float64

	// storage
	DBPath      string
	CatalogPath string

	// retry of busy database writes
	RetryAttempts int
	RetryDuration time.Duration
	RetryFactor   float64
	RetryJitter   bool

	// logging settings
	DebugMode     bool
	LogFilePath   string
	LogMaxSize    int
	LogMaxAge     int
	LogMaxBackups int
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	// validate required dependencies
	if cfg.Service == nil || cfg.Analytics == nil || cfg.Health == nil {
		return nil, fmt.Errorf("web server initialization failed: service, analytics and health are required")
	}

	s := &Server{
		svc:            cfg.Service,
		analytics:      cfg.Analytics,
		health:         cfg.Health,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		pageSize:       cfg.PageSize,
		loc:            cfg.Location,
		csrfProtection: http.NewCrossOriginProtection(),
		settingsInfo:   cfg.Settings,
	}
	if s.pageSize <= 0 {
		s.pageSize = 50
	}
	if s.loc == nil {
		s.loc = time.Local
	}

	writeLimit := cfg.WriteLimit
	if writeLimit <= 0 {
		writeLimit = 10
	}
	s.writeLimiter = tollbooth.NewLimiter(writeLimit, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	s.writeLimiter.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr", IndexFromRight: 0})
	s.writeLimiter.SetMessage("too many requests, slow down")

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates

	return s, nil
}

// Run starts the web server
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	// handle base URL without trailing slash - redirect to with trailing slash
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("fracas", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// writes go through csrf check and rate limit
	writeLimit := tollbooth.HTTPMiddleware(s.writeLimiter)

	// pages
	router.HandleFunc("GET /{$}", s.handleDashboard)
	router.HandleFunc("GET /workorders", s.handleWorkOrders)
	router.HandleFunc("GET /workorders/{id}", s.handleWorkOrder)
	router.HandleFunc("GET /failures", s.handleFailures)
	router.HandleFunc("GET /failures/{id}", s.handleFailure)
	router.HandleFunc("GET /actions", s.handleActions)
	router.HandleFunc("GET /assets", s.handleAssets)
	router.HandleFunc("GET /assets/{id}", s.handleAsset)
	router.HandleFunc("GET /users", s.handleUsers)
	router.HandleFunc("GET /charts/{name}", s.handleChart)

	// form posts
	router.Group().Route(func(forms *routegroup.Bundle) {
		forms.Use(s.csrfProtection.Handler, writeLimit)
		forms.HandleFunc("POST /workorders", s.handleCreateWorkOrder)
		forms.HandleFunc("POST /workorders/{id}/transition", s.handleTransitionWorkOrder)
		forms.HandleFunc("POST /workorders/{id}/assign", s.handleAssignWorkOrder)
		forms.HandleFunc("POST /failures", s.handleReportFailure)
		forms.HandleFunc("POST /failures/{id}/analysis", s.handleRecordAnalysis)
		forms.HandleFunc("POST /failures/{id}/close", s.handleCloseFailure)
		forms.HandleFunc("POST /failures/{id}/reopen", s.handleReopenFailure)
		forms.HandleFunc("POST /failures/{id}/actions", s.handleAddAction)
		forms.HandleFunc("POST /actions/{id}/transition", s.handleTransitionAction)
		forms.HandleFunc("POST /assets", s.handleCreateAsset)
		forms.HandleFunc("POST /assets/{id}/pm", s.handleGeneratePM)
		forms.HandleFunc("POST /users", s.handleCreateUser)
	})

	// htmx endpoints
	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)             // prevent caching of partials
		api.Use(s.csrfProtection.Handler) // CSRF protection for POST endpoints

		api.HandleFunc("GET /workorders", s.handleWorkOrdersPartial)
		api.HandleFunc("GET /failures", s.handleFailuresPartial)
		api.HandleFunc("GET /actions", s.handleActionsPartial)
		api.HandleFunc("GET /assets", s.handleAssetsPartial)
		api.HandleFunc("GET /users", s.handleUsersPartial)
		api.HandleFunc("GET /settings/modal", s.handleSettingsModal)
		api.HandleFunc("POST /theme", s.handleThemeToggle)
	})

	// JSON API for CLI/programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /status", s.handleAPIStatus)
		api.HandleFunc("GET /health", s.handleAPIHealth)
		api.HandleFunc("GET /workorders", s.handleAPIWorkOrders)
		api.HandleFunc("GET /workorders/{id}", s.handleAPIWorkOrder)
		api.HandleFunc("GET /failures", s.handleAPIFailures)
		api.HandleFunc("GET /failures/{id}", s.handleAPIFailure)
		api.HandleFunc("GET /pm", s.handleAPIPreventive)
		api.HandleFunc("GET /analytics/{name}", s.handleAPIAnalytics)
		api.With(s.csrfProtection.Handler, writeLimit).HandleFunc("POST /workorders", s.handleAPICreateWorkOrder)
		api.With(s.csrfProtection.Handler, writeLimit).HandleFunc("POST /workorders/{id}/transition", s.handleAPITransitionWorkOrder)
	})

	// static files with proper error handling
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a template with 200 status
func (s *Server) render(w http.ResponseWriter, page, tmplName string, data any) {
	s.renderStatus(w, http.StatusOK, page, tmplName, data)
}

// renderStatus renders a template into a buffer first, so template errors don't produce partial pages
func (s *Server) renderStatus(w http.ResponseWriter, status int, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template %s/%s: %v", page, tmplName, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses every page with the base layout and all partials, and the partials alone for htmx
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	funcMap := s.funcMap()

	for _, page := range pages {
		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html", "templates/"+page, "templates/partials/*.html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", page, err)
		}
		templates[page] = tmpl
	}

	partials, err := template.New("partials").Funcs(funcMap).ParseFS(templatesFS, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse partials: %w", err)
	}
	templates["partials"] = partials

	return templates, nil
}

func (s *Server) getTheme(r *http.Request) enums.Theme {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return enums.ThemeDark // default to dark when no cookie
	}
	theme, err := enums.ParseTheme(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid theme %q: %v", cookie.Value, err)
		return enums.ThemeDark
	}
	return theme
}

// handleThemeToggle toggles the theme
func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	nextTheme := enums.ThemeLight
	if s.getTheme(r) == enums.ThemeLight {
		nextTheme = enums.ThemeDark
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "theme",
		Value:    nextTheme.String(),
		Path:     s.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60, // 1 year
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// trigger full page refresh for theme change
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

// handleSettingsModal renders runtime configuration together with a fresh health report
func (s *Server) handleSettingsModal(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Settings SettingsInfo
		Health   health.Report
		BaseURL  string
	}{Settings: s.settingsInfo, Health: s.health.Report(r.Context()), BaseURL: s.baseURL}
	s.render(w, "partials", "settings-modal", data)
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// shortVersion extracts a short version string from full version
// for version like "v1.2.0-abc1234-20251225", returns "v1.2.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
