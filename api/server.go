// Package api provides the HTTP REST API server for y9cdash.
//
// It exposes the reconciled filings table, reporting periods, bucket
// summaries, a CSV projection, and the analyst endpoint, for any
// rendering layer to consume.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openy9c/y9cdash/internal/config"
	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/insight"
	"github.com/openy9c/y9cdash/internal/pipeline"
	"github.com/openy9c/y9cdash/internal/postgrest"
)

// RowCounter reports a table's exact upstream row count.
type RowCounter interface {
	Count(ctx context.Context, table string) (int, error)
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	counter RowCounter       // nil when no upstream client is wired
	analyst *insight.Analyst // nil when no completion key is configured
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Source.URL == "" || cfg.Source.APIKey == "" {
		return nil, fmt.Errorf("source URL and API key must be configured")
	}

	client := postgrest.New(cfg.Source.URL, cfg.Source.APIKey,
		postgrest.WithMaxRetries(cfg.Source.MaxRetries),
		postgrest.WithRateLimit(cfg.Source.RateLimit, time.Second),
	)

	cache := infra.NewCache(time.Duration(cfg.Pipeline.CacheTTL) * time.Second)
	pipe := pipeline.New(client, pipeline.Options{
		FilingsTable:   cfg.Source.FilingsTable,
		DirectoryTable: cfg.Source.DirectoryTable,
		ReportingForms: cfg.Pipeline.ReportingForms,
		PageSize:       cfg.Source.PageSize,
		MaxRows:        cfg.Source.MaxRows,
	}, cache)

	srv := &Server{cfg: cfg, pipe: pipe, counter: client}

	if cfg.Insight.OpenAIKey != "" {
		opts := []insight.ClientOption{insight.WithModel(cfg.Insight.Model)}
		if cfg.Insight.BaseURL != "" {
			opts = append(opts, insight.WithBaseURL(cfg.Insight.BaseURL))
		}
		ic, err := insight.NewClient(cfg.Insight.OpenAIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("insight setup failed: %w", err)
		}
		srv.analyst = insight.NewAnalyst(ic,
			insight.WithTemperature(cfg.Insight.Temperature),
			insight.WithMaxTokens(cfg.Insight.MaxTokens),
		)
	} else {
		log.Printf("no completion key configured; /api/v1/insight will return empty analyses")
	}

	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-done
		log.Println("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	log.Printf("y9cdash API listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/periods", s.handlePeriods)
		r.Get("/filings", s.handleFilings)
		r.Get("/filings.csv", s.handleFilingsCSV)
		r.Get("/summary", s.handleSummary)

		r.Post("/insight", s.handleInsight)
		r.Post("/reload", s.handleReload)

		r.Get("/config/keys", s.handleKeys)
	})

	return r
}

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, APIResponse{Success: false, Error: fmt.Sprintf(format, args...)})
}

// statusForPipelineError maps the fetch error taxonomy to HTTP: a
// misbehaving upstream is a bad gateway, everything else is internal.
func statusForPipelineError(err error) int {
	var pe *postgrest.Error
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.pipe.Periods(r.Context())
	if err != nil {
		writeError(w, statusForPipelineError(err), "load periods: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: periods})
}

// periodParam extracts and validates the optional period filter,
// writing a 400 and returning false when it is unusable.
func periodParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	period := r.URL.Query().Get("period")
	if err := pipeline.CheckPeriod(period); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return "", false
	}
	return period, true
}

func (s *Server) handleFilings(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	result, err := s.pipe.Run(r.Context(), period)
	if err != nil {
		writeError(w, statusForPipelineError(err), "reconcile filings: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleFilingsCSV(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	result, err := s.pipe.Run(r.Context(), period)
	if err != nil {
		writeError(w, statusForPipelineError(err), "reconcile filings: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="filings.csv"`)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(result.Table.CSV()); err != nil {
		log.Printf("write csv: %v", err)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	result, err := s.pipe.Run(r.Context(), period)
	if err != nil {
		writeError(w, statusForPipelineError(err), "reconcile filings: %v", err)
		return
	}
	data := map[string]any{
		"summaries":   result.Summaries,
		"pivot":       result.Pivot,
		"diagnostics": len(result.Diagnostics),
	}
	// The advertised total is display-only: pagination never trusts it,
	// but comparing it against the reconciled row count is useful.
	if s.counter != nil {
		if total, err := s.counter.Count(r.Context(), s.filingsTable()); err == nil {
			data["source_rows"] = total
		} else {
			log.Printf("count source rows: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) filingsTable() string {
	if s.cfg.Source.FilingsTable != "" {
		return s.cfg.Source.FilingsTable
	}
	return pipeline.DefaultFilingsTable
}

// insightRequest is the analyst request body.
type insightRequest struct {
	Query  string   `json:"query"`
	Period string   `json:"period,omitempty"`
	Codes  []string `json:"codes,omitempty"`
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if err := pipeline.CheckPeriod(req.Period); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	// No analyst configured: the feature degrades, the endpoint stays up.
	if s.analyst == nil {
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: insight.Insight{}})
		return
	}

	result, err := s.pipe.Run(r.Context(), req.Period)
	if err != nil {
		writeError(w, statusForPipelineError(err), "reconcile filings: %v", err)
		return
	}

	ictx := insight.BuildContext(result.Table.Rows, req.Codes)
	ins, err := s.analyst.Analyze(r.Context(), req.Query, ictx)
	if err != nil {
		// Collaborator failure is never fatal to the dashboard.
		log.Printf("insight analyze: %v", err)
		ins = insight.Insight{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ins})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.pipe.Reload()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "cache flushed"}})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: config.CheckAPIKeys(s.cfg)})
}
