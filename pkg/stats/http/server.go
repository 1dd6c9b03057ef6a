// Package http implements the HTTP server of the dashboard: the HTML page, the
// JSON API, health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/marzstat/marzstat/pkg/stats/aggregate"
	"github.com/marzstat/marzstat/pkg/stats/base"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/models"
	"github.com/marzstat/marzstat/pkg/stats/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
)

// Loader builds dashboards.
type Loader interface {
	Build(ctx context.Context) (*dashboard.Dashboard, error)
	TopN() int
}

// Config makes a server config.
type Config struct {
	Logger   *slog.Logger
	Web      base.WebConfig
	Loader   Loader
	Labels   render.Labels
	Gatherer prometheus.Gatherer
}

// Response defines the response model of the API.
type Response[T any] struct {
	Status    string    `json:"status"`
	Data      T         `json:"data"`
	ErrorType errorType `json:"errorType,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// hourlyResponse is the payload of hourly endpoints.
type hourlyResponse[T any] struct {
	Buckets []T     `json:"buckets"`
	Mean    float64 `json:"mean"`
}

// queriers can be swapped in tests.
type queriers struct {
	loader Loader
}

// DashboardServer implements HTTP server of the dashboard.
type DashboardServer struct {
	logger    *slog.Logger
	server    *http.Server
	webConfig *web.FlagConfig
	labels    render.Labels
	page      *render.Page
	queriers  queriers
}

// New creates new DashboardServer struct instance.
func New(c *Config) (*DashboardServer, error) {
	page, err := render.NewPage()
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	server := &DashboardServer{
		logger: c.Logger,
		server: &http.Server{
			Addr:              c.Web.Addresses[0],
			Handler:           router,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      2 * time.Minute, // Cold loads wait for tunnel and queries
			ReadHeaderTimeout: 2 * time.Second,
		},
		webConfig: &web.FlagConfig{
			WebListenAddresses: &c.Web.Addresses,
			WebSystemdSocket:   &c.Web.WebSystemdSocket,
			WebConfigFile:      &c.Web.WebConfigFile,
		},
		labels:   c.Labels,
		page:     page,
		queriers: queriers{loader: c.Loader},
	}

	// pprof debug end points. Expose them only on localhost
	if c.Web.EnableDebugServer {
		router.PathPrefix("/debug/").Handler(http.DefaultServeMux).Methods(http.MethodGet).Host("localhost")
	}

	// Rate limit per client IP
	if c.Web.RequestsLimit > 0 {
		router.Use(httprate.Limit(
			c.Web.RequestsLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				errorResponse(w, &apiError{errorTooManyRequests, errRateLimited}, c.Logger)
			}),
		))
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, &apiError{errorNotFound, fmt.Errorf("%w: %s", errUnknownEndpoint, r.URL.Path)}, c.Logger)
	})

	// Allow only GET methods
	router.HandleFunc("/", server.index).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health", server.health).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/dashboard", server.dashboard).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/charts", server.charts).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/hourly/{kind:(?:connections|traffic)}", server.hourly).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/users/{window:(?:today|last_hour)}", server.users).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/users/{window:(?:today|last_hour)}/top/{ranking:(?:traffic|connections)}", server.usersTop).
		Methods(http.MethodGet)
	router.HandleFunc("/api/v1/lifetime/{direction:(?:top|bottom)}/{ranking:(?:traffic|connections|lifetime)}", server.lifetime).
		Methods(http.MethodGet)

	if c.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return server, nil
}

// Start launches dashboard HTTP server.
func (s *DashboardServer) Start() error {
	s.logger.Info("Starting " + base.ServerAppName)

	if err := web.ListenAndServe(s.server, s.webConfig, s.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Failed to Listen and Serve HTTP server", "err", err)

		return err
	}

	return nil
}

// Shutdown stops dashboard HTTP server.
func (s *DashboardServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping " + base.ServerAppName)

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", "err", err)

		return err
	}

	return nil
}

// Set response headers.
func (s *DashboardServer) setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// writeResponse writes data in a success envelope.
func writeResponse[T any](w http.ResponseWriter, data T, logger *slog.Logger) {
	w.WriteHeader(http.StatusOK)

	response := Response[T]{
		Status: "success",
		Data:   data,
	}
	if err := json.NewEncoder(w).Encode(&response); err != nil {
		logger.Error("Failed to encode response", "err", err)
		w.Write([]byte("KO"))
	}
}

// load builds a dashboard and writes an error response on failure.
func (s *DashboardServer) load(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, bool) {
	d, err := s.queriers.loader.Build(r.Context())
	if err != nil {
		errorResponse(w, loadError(err), s.logger)

		return nil, false
	}

	return d, true
}

// labelsFor returns labels of the locale query parameter or server labels.
func (s *DashboardServer) labelsFor(r *http.Request) (render.Labels, error) {
	if locale := r.URL.Query().Get("locale"); locale != "" {
		return render.LabelsFor(locale)
	}

	return s.labels, nil
}

// rankingSize parses query parameter key as a ranking size. A missing
// parameter returns def.
func rankingSize(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%s", errInvalidN, key, v)
	}

	return n, nil
}

// health reports the health status of server.
func (s *DashboardServer) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// index renders the HTML dashboard.
func (s *DashboardServer) index(w http.ResponseWriter, r *http.Request) {
	labels, err := s.labelsFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	d, err := s.queriers.loader.Build(r.Context())
	if err != nil {
		apiErr := loadError(err)
		http.Error(w, apiErr.err.Error(), statusCode(apiErr.typ))

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if err := s.page.Render(w, d, labels); err != nil {
		s.logger.Error("Failed to render dashboard page", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// dashboard returns the full dashboard.
func (s *DashboardServer) dashboard(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	writeResponse(w, d, s.logger)
}

// charts returns chart specs of the dashboard.
func (s *DashboardServer) charts(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	labels, err := s.labelsFor(r)
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	writeResponse(w, render.Charts(d, labels), s.logger)
}

// hourly returns hourly connections or traffic with their mean.
func (s *DashboardServer) hourly(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	if mux.Vars(r)["kind"] == "traffic" {
		writeResponse(w, hourlyResponse[models.HourlyTraffic]{d.Today.HourlyTraffic, d.Today.MeanTraffic}, s.logger)

		return
	}

	writeResponse(w, hourlyResponse[models.HourlyConnections]{d.Today.HourlyConnections, d.Today.MeanConnections}, s.logger)
}

// windowRollups returns per user rollups of today or the last hour.
func windowRollups(d *dashboard.Dashboard, window string) []models.UserRollup {
	if window == "last_hour" {
		return d.Today.LastHourUsers
	}

	return d.Today.Users
}

// users returns per user rollups, optionally only the top ones by traffic.
func (s *DashboardServer) users(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	top, err := rankingSize(r, "top", -1)
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	rows := windowRollups(d, mux.Vars(r)["window"])
	if top >= 0 {
		rows = aggregate.Top(rows, top, aggregate.RollupTraffic)
	}

	writeResponse(w, rows, s.logger)
}

// usersTop returns the top N user rollups by traffic or connections.
func (s *DashboardServer) usersTop(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	vars := mux.Vars(r)

	key, err := aggregate.RollupKey(vars["ranking"])
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	n, err := rankingSize(r, "n", s.queriers.loader.TopN())
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	writeResponse(w, aggregate.Top(windowRollups(d, vars["window"]), n, key), s.logger)
}

// lifetime returns the top or bottom N users of all time.
func (s *DashboardServer) lifetime(w http.ResponseWriter, r *http.Request) {
	s.setHeaders(w)

	vars := mux.Vars(r)

	key, err := aggregate.SummaryKey(vars["ranking"])
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	n, err := rankingSize(r, "n", s.queriers.loader.TopN())
	if err != nil {
		errorResponse(w, &apiError{errorBadData, err}, s.logger)

		return
	}

	d, ok := s.load(w, r)
	if !ok {
		return
	}

	if vars["direction"] == "bottom" {
		writeResponse(w, aggregate.Bottom(d.Summary.Users, n, key), s.logger)

		return
	}

	writeResponse(w, aggregate.Top(d.Summary.Users, n, key), s.logger)
}
