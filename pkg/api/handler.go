// Package api exposes the normalization engine over HTTP and MCP. Both
// transports dispatch to the same kit.Endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/kit"
	"github.com/hazyhaar/combine-registry/pkg/match"
	"github.com/hazyhaar/combine-registry/pkg/metrics"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	Logger *slog.Logger
	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool
}

// NewRouter returns an http.Handler with all registry API routes.
func NewRouter(eng *engine.Engine, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &handler{
		endpoints: newEndpoints(eng, opts.Logger),
		eng:       eng,
	}

	mux.HandleFunc("GET /v1/normalize/batch", methodNotAllowed) // prevent GET on batch
	mux.HandleFunc("POST /v1/normalize/batch", h.handleBatch)
	mux.HandleFunc("GET /v1/normalize/{input}", h.handleNormalize)
	mux.HandleFunc("POST /v1/corrections", h.handleCorrection)
	mux.HandleFunc("GET /v1/reference", h.handleReference)
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	if opts.Metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return cors(requestID(mux))
}

type handler struct {
	endpoints
	eng *engine.Engine
}

// --- normalize single input ---

func (h *handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	input := r.PathValue("input")
	c, err := parseContext(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.normalize(r.Context(), &normalizeReq{Input: input, Context: c})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- normalize batch ---

type httpBatchRequest struct {
	Inputs []string `json:"inputs"`
	Year   int      `json:"year,omitempty"`
	Region string   `json:"region,omitempty"`
}

func (h *handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024) // 64 KiB max
	var req httpBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := h.batch(r.Context(), &batchReq{
		Inputs:  req.Inputs,
		Context: contextOf(req.Year, req.Region),
	})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- corrections ---

func (h *handler) handleCorrection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var req correctionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := h.correction(r.Context(), &req)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// --- reference ---

func (h *handler) handleReference(w http.ResponseWriter, r *http.Request) {
	resp, err := h.reference(r.Context(), nil)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Models  int    `json:"models"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.eng.Snapshot().Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: st.Version,
		Models:  st.Models,
	})
}

// --- helpers ---

func parseContext(r *http.Request) (*match.Context, error) {
	q := r.URL.Query()
	year := 0
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("year must be an integer")
		}
		year = y
	}
	return contextOf(year, q.Get("region")), nil
}

func contextOf(year int, region string) *match.Context {
	if year == 0 && region == "" {
		return nil
	}
	return &match.Context{Year: year, Region: region}
}

// statusOf maps endpoint errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, match.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrNormalizationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeEndpointError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), toErrorBody(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// requestID propagates X-Request-ID into the context and echoes it back. A
// missing id is generated by the endpoint middleware.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(kit.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
