package httpx

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/sagerenn/acrodict/internal/observability"
	"github.com/sagerenn/acrodict/internal/refresh"
	"github.com/sagerenn/acrodict/internal/service"
)

type Router struct {
	svc      *service.Service
	mgr      *refresh.Manager
	log      *observability.Logger
	basePath string
}

type healthResponse struct {
	Status string    `json:"status"`
	Loaded bool      `json:"loaded"`
	Time   time.Time `json:"time"`
}

type lookupResponse struct {
	Query       string   `json:"query"`
	Acronym     string   `json:"acronym"`
	Definitions []string `json:"definitions"`
	Count       int      `json:"count"`
	Found       bool     `json:"found"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewRouter(svc *service.Service, mgr *refresh.Manager, log *observability.Logger, basePath string) http.Handler {
	r := &Router{svc: svc, mgr: mgr, log: log, basePath: normalizeBasePath(basePath)}
	mux := http.NewServeMux()
	r.handleRoute(mux, "/health", r.handleHealth)
	r.handleRoute(mux, "/lookup", r.handleLookup)
	r.handleRoute(mux, "/entry", r.handleEntry)
	r.handleRoute(mux, "/stats", r.handleStats)
	r.handleRoute(mux, "/refresh", r.handleRefresh)
	r.handle(mux, "/debug/vars", expvar.Handler())

	h := observability.LoggingMiddleware(log)(mux)
	h = observability.RecoveryMiddleware(log)(h)
	h = observability.RequestIDMiddleware(h)
	return h
}

func (r *Router) handleRoute(mux *http.ServeMux, path string, handler http.HandlerFunc) {
	mux.HandleFunc(path, handler)
	if r.basePath != "" {
		mux.HandleFunc(r.basePath+path, handler)
	}
}

func (r *Router) handle(mux *http.ServeMux, path string, handler http.Handler) {
	mux.Handle(path, handler)
	if r.basePath != "" {
		mux.Handle(r.basePath+path, handler)
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Loaded: r.svc.Loaded(), Time: time.Now().UTC()})
}

func (r *Router) handleLookup(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing q"})
		return
	}
	res, err := r.svc.Lookup(query)
	if err != nil {
		r.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{
		Query:       res.Query,
		Acronym:     res.Acronym,
		Definitions: res.Definitions,
		Count:       len(res.Definitions),
		Found:       res.Found(),
	})
}

// handleEntry renders definitions as plain text, one per line.
func (r *Router) handleEntry(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}
	res, err := r.svc.Lookup(query)
	if errors.Is(err, service.ErrNotLoaded) {
		http.Error(w, "dictionary not loaded, POST /refresh to download it", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !res.Found() {
		http.Error(w, "Gee... I don't know what "+res.Acronym+" means...", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(res.Definitions, "\n") + "\n"))
}

func (r *Router) handleStats(w http.ResponseWriter, _ *http.Request) {
	st, err := r.svc.Stats()
	if err != nil {
		r.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		job := r.mgr.Refresh(refresh.LogSink(r.log))
		writeJSON(w, http.StatusAccepted, job.Status())
	case http.MethodGet:
		job, ok := r.mgr.Current()
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no refresh started"})
			return
		}
		writeJSON(w, http.StatusOK, job.Status())
	case http.MethodDelete:
		job, ok := r.mgr.Current()
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no refresh started"})
			return
		}
		job.Cancel()
		writeJSON(w, http.StatusAccepted, job.Status())
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

func (r *Router) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNotLoaded) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "dictionary not loaded, POST /refresh to download it"})
		return
	}
	r.log.Error("lookup failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
