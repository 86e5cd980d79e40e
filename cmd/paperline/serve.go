package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/paperline/paperline/internal/config"
	"github.com/paperline/paperline/internal/pipeline"
	"github.com/paperline/paperline/internal/search"
	"github.com/spf13/cobra"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search over HTTP",
	Long: `Serve exposes the indexed corpus over HTTP:

  GET  /health                    liveness probe
  GET  /stats                     corpus and index statistics
  GET  /search?q=...&top_k=...    semantic search; optional title_weight
                                  and abstract_weight override the config
  POST /search                    same, with a JSON body
                                  {"query", "top_k", "title_weight", "abstract_weight"}

Responses are JSON.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	idx := mustOpenIndex(cfg)
	defer idx.Close()

	provider := newProvider(cfg)
	bridge := newBridge(cfg, provider)
	srv := &server{
		cfg:      cfg,
		searcher: newSearcher(cfg, idx, bridge),
		builder:  newBuilder(cfg, idx, bridge),
		logger:   slog.Default(),
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /stats", srv.handleStats)
	mux.HandleFunc("GET /search", srv.handleSearchGet)
	mux.HandleFunc("POST /search", srv.handleSearchPost)

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.logRequests(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			exitWithError(ExitError, "serving: %v", err)
		}
	case <-ctx.Done():
		srv.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			exitWithError(ExitError, "shutdown: %v", err)
		}
	}
	return nil
}

type server struct {
	cfg      *config.Config
	searcher *search.Searcher
	builder  *pipeline.Builder
	logger   *slog.Logger
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.builder.Stats()
	if err != nil {
		s.logger.Error("collecting stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// searchRequest is the POST /search body. Omitted fields fall back to the
// configured defaults.
type searchRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
	TitleWeight    *float32 `json:"title_weight"`
	AbstractWeight *float32 `json:"abstract_weight"`
}

func (s *server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	topK := s.cfg.Search.DefaultTopK
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "top_k must be a positive integer"})
			return
		}
		topK = n
	}

	titleWeight, ok := weightParam(q.Get("title_weight"), s.cfg.Search.TitleWeight)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "title_weight must be a non-negative number"})
		return
	}
	abstractWeight, ok := weightParam(q.Get("abstract_weight"), s.cfg.Search.AbstractWeight)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "abstract_weight must be a non-negative number"})
		return
	}

	s.runSearch(w, r, q.Get("q"), topK, titleWeight, abstractWeight)
}

func (s *server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.Search.DefaultTopK
	}
	if topK < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "top_k must be a positive integer"})
		return
	}

	titleWeight := s.cfg.Search.TitleWeight
	if req.TitleWeight != nil {
		titleWeight = *req.TitleWeight
	}
	abstractWeight := s.cfg.Search.AbstractWeight
	if req.AbstractWeight != nil {
		abstractWeight = *req.AbstractWeight
	}
	if titleWeight < 0 || abstractWeight < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "weights must be non-negative"})
		return
	}

	s.runSearch(w, r, req.Query, topK, titleWeight, abstractWeight)
}

func (s *server) runSearch(w http.ResponseWriter, r *http.Request, query string, topK int, titleWeight, abstractWeight float32) {
	results, err := s.searcher.Search(r.Context(), query, topK, titleWeight, abstractWeight)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "query must not be empty"})
			return
		}
		s.logger.Error("searching", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// weightParam parses an optional weight query parameter, falling back to
// the configured default when absent.
func weightParam(raw string, fallback float32) (float32, bool) {
	if raw == "" {
		return fallback, true
	}
	f, err := strconv.ParseFloat(raw, 32)
	if err != nil || f < 0 {
		return 0, false
	}
	return float32(f), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
