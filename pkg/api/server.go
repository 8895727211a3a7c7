package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/chainbridge-labs/spine/pkg/contracts"
	"github.com/chainbridge-labs/spine/pkg/event"
	"github.com/chainbridge-labs/spine/pkg/spine"
)

// Server exposes the pipeline over HTTP.
type Server struct {
	pipeline *spine.Pipeline
}

// NewServer wraps a pipeline.
func NewServer(p *spine.Pipeline) *Server {
	return &Server{pipeline: p}
}

// Handler assembles the route table with request-id, rate-limit and auth
// middleware applied.
func (s *Server) Handler(limiter *RateLimiter, jwtSecret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", s.HandleSubmit)
	mux.HandleFunc("/v1/chain/verify", s.HandleVerify)
	mux.HandleFunc("/v1/chain/export", s.HandleExport)
	mux.HandleFunc("/health", s.HandleHealth)

	var h http.Handler = mux
	h = AuthMiddleware(jwtSecret)(h)
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return RequestIDMiddleware(h)
}

// HandleSubmit handles POST /v1/events.
func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "Unable to read request body")
		return
	}

	raw, err := event.ParseAndValidate(body)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	receipt, err := s.pipeline.Submit(r.Context(), raw)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(receipt)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var verr *contracts.ValidationError
	if errors.As(err, &verr) {
		WriteBadRequest(w, verr.Error())
		return
	}
	var rerr *contracts.ReplayAttackError
	if errors.As(err, &rerr) {
		WriteConflict(w, rerr.Error())
		return
	}
	WriteInternal(w, err)
}

// HandleVerify handles GET /v1/chain/verify with optional from and to
// sequence bounds. The report is returned with 200 whether or not the
// chain verified; callers check the valid field.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	from, ok := parseSeqParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseSeqParam(w, r, "to")
	if !ok {
		return
	}

	var (
		report *contracts.ValidationReport
		err    error
	)
	if from == 0 && to == 0 {
		report, err = s.pipeline.VerifyChain(r.Context())
	} else {
		report, err = s.pipeline.VerifyRange(r.Context(), from, to)
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func parseSeqParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		WriteBadRequest(w, "Query parameter "+name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// HandleExport handles GET /v1/chain/export, streaming the chain as JSONL
// for external auditors.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	entries, err := s.pipeline.ExportChain(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return
		}
	}
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
