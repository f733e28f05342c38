// Package httpserver serves the book store as JSON over HTTP, next to the
// prometheus exposition and a health check.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tvitch/api/view"
	"tvitch/infra/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server holds the router and the store it reads from.
type Server struct {
	store     view.Store
	router    *mux.Router
	logger    *zap.Logger
	startTime time.Time
}

func NewServer(s view.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:     s,
		router:    mux.NewRouter(),
		logger:    logger,
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/books", s.handleTickers).Methods(http.MethodGet)
	api.HandleFunc("/books/{ticker}", s.handleBooks).Methods(http.MethodGet)
	api.HandleFunc("/books/{ticker}/{job}", s.handleBook).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatuses).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// handleTickers handles GET /api/v1/books
func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.Tickers()
	if err != nil {
		s.fail(w, err)
		return
	}
	if ts == nil {
		ts = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tickers": ts})
}

// handleBooks handles GET /api/v1/books/{ticker}
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	es, err := s.store.Books(mux.Vars(r)["ticker"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"books": view.FromEntries(es)})
}

// handleBook handles GET /api/v1/books/{ticker}/{job}
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := s.store.Book(vars["ticker"], vars["job"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view.FromBook(vars["job"], b))
}

// handleStatuses handles GET /api/v1/status
func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Statuses()
	if err != nil {
		s.fail(w, err)
		return
	}
	if st == nil {
		st = []store.StatusEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"statuses": st})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("http: query failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.router)
}
