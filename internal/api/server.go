// Package api serves the coach over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/mcptools"
	"github.com/marcandre22/ready-mix-coach/internal/metrics"
	"github.com/marcandre22/ready-mix-coach/internal/processor"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

const maxBodyBytes = 1 << 20

// DefaultSuggestions is how many prompts /suggestions returns without n.
const DefaultSuggestions = 5

type Server struct {
	coach   *processor.Coach
	store   *dataset.Holder
	tools   *mcptools.Toolbox
	log     *logger.Logger
	metrics *metrics.Metrics
}

func New(coach *processor.Coach, store *dataset.Holder, log *logger.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logger.New()
	}
	return &Server{
		coach:   coach,
		store:   store,
		tools:   mcptools.NewToolbox(coach),
		log:     log.Component("api"),
		metrics: m,
	}
}

// Handler returns the routed mux wrapped in request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /kpis", s.handleKPIs)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /suggestions", s.handleSuggestions)
	mux.HandleFunc("GET /tools", s.handleToolList)
	mux.HandleFunc("GET /tools/{name}", s.handleTool)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.middleware(mux)
}

// NewHTTPServer wraps the handler with the service timeouts. WriteTimeout
// leaves room for a slow assistant.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logger.RequestID(r)
		r.Header.Set("X-Request-ID", id)
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(route, rec.code)
		s.log.WithRequest(r).WithFields(map[string]interface{}{
			"status":      rec.code,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.store.Current()
	body := map[string]interface{}{
		"status":          "ok",
		"dataset_version": st.Version,
		"tickets":         len(st.Tickets),
		"source":          st.Source,
		"loaded_at":       st.LoadedAt.Format(time.RFC3339),
	}
	if stats, ok := s.coach.CacheStats(); ok {
		body["cache"] = stats
	}
	writeJSON(w, http.StatusOK, body)
}

type kpiResponse struct {
	Window    window.Window     `json:"window"`
	Now       time.Time         `json:"now"`
	Filter    dataset.Filter    `json:"filter"`
	Totals    aggregator.Totals `json:"totals"`
	Benchmark float64           `json:"utilization_benchmark_pct"`
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win, err := window.Parse(q.Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	now := s.coach.Now()
	f, err := filterFrom(filterBody{
		Plant:   q.Get("plant"),
		Site:    q.Get("site"),
		Driver:  q.Get("driver"),
		Project: q.Get("project"),
		From:    q.Get("from"),
		To:      q.Get("to"),
	}, now.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap := s.coach.Snapshot(f, now)
	writeJSON(w, http.StatusOK, kpiResponse{
		Window:    win,
		Now:       snap.Now,
		Filter:    f,
		Totals:    snap.For(win),
		Benchmark: s.coach.BenchmarkPct(),
	})
}

type filterBody struct {
	Plant   string `json:"plant"`
	Site    string `json:"site"`
	Driver  string `json:"driver"`
	Project string `json:"project"`
	From    string `json:"from"`
	To      string `json:"to"`
}

func filterFrom(b filterBody, loc *time.Location) (dataset.Filter, error) {
	from, to, err := dataset.ParseDateRange(b.From, b.To, loc)
	if err != nil {
		return dataset.Filter{}, err
	}
	return dataset.Filter{
		Plant:   b.Plant,
		Site:    b.Site,
		Driver:  b.Driver,
		Project: b.Project,
		From:    from,
		To:      to,
	}, nil
}

type askRequest struct {
	Question string                    `json:"question"`
	History  types.ConversationHistory `json:"history"`
	Filter   filterBody                `json:"filter"`
}

type askResponse struct {
	processor.Result
	Retry bool `json:"retry,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "ask")

	var body askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		reqLog.WithError(err).Warn("bad ask body")
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	f, err := filterFrom(body.Filter, s.coach.Now().Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res := s.coach.Ask(r.Context(), processor.Request{
		Question: body.Question,
		History:  body.History,
		Filter:   f,
	})
	status := http.StatusOK
	out := askResponse{Result: res}
	if res.Source == processor.SourceUnavailable {
		status = http.StatusServiceUnavailable
		out.Retry = true
	}
	writeJSON(w, status, out)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := DefaultSuggestions
	if v := q.Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", v))
			return
		}
		n = parsed
	}
	seed := time.Now().UnixNano()
	if v := q.Get("seed"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid seed %q", v))
			return
		}
		seed = parsed
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.coach.Guidelines().Suggestions(n, seed),
	})
}

type toolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	var out []toolInfo
	for _, t := range s.tools.Tools() {
		info := toolInfo{Name: t.Name, Description: t.Description, Params: []string{}}
		for _, p := range t.Params {
			info.Params = append(info.Params, p.Name)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	out, err := s.tools.Call(name, mcptools.QueryArgs(r.URL.Query()))
	var argErr *mcptools.ArgError
	switch {
	case errors.Is(err, mcptools.ErrUnknownTool):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &argErr):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.log.WithRequest(r).WithField("tool", name).WithError(err).Error("tool failed")
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"tool": name, "result": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
