// Package server exposes the comparison engine over HTTP and streams
// live results to WebSocket subscribers.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/snapdiff/snapdiff/internal/compare"
	"github.com/snapdiff/snapdiff/internal/config"
	apperrors "github.com/snapdiff/snapdiff/internal/errors"
	"github.com/snapdiff/snapdiff/internal/history"
	"github.com/snapdiff/snapdiff/internal/snapshot"
	"github.com/snapdiff/snapdiff/internal/syncx"
	"github.com/snapdiff/snapdiff/internal/trace"
)

// Ledger records and queries comparison outcomes.
type Ledger interface {
	Record(ctx context.Context, rec *history.Record) error
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Summarize(ctx context.Context) (history.Summary, error)
}

// Fetcher retrieves baseline images from a remote store.
type Fetcher interface {
	FetchData(ctx context.Context, name string) ([]byte, error)
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

// CompareEvent is broadcast to WebSocket subscribers after each comparison.
type CompareEvent struct {
	Type           string  `json:"type"`
	ID             string  `json:"id"`
	Baseline       string  `json:"baseline"`
	Candidate      string  `json:"candidate"`
	Similar        bool    `json:"similar"`
	HashSimilarity float64 `json:"hash_similarity"`
	SSIM           float64 `json:"ssim"`
	PixelDiffRatio float64 `json:"pixel_difference_ratio"`
	Error          string  `json:"error,omitempty"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CompareResponse is the JSON body returned by the compare endpoint.
type CompareResponse struct {
	ID string `json:"id"`
	compare.Result
	Baseline  string `json:"baseline"`
	Candidate string `json:"candidate"`
	DiffImage string `json:"difference_image,omitempty"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Code  apperrors.Code `json:"code"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	cmp        *compare.Comparator
	store      *snapshot.Store
	ledger     Ledger
	fetcher    Fetcher
	threshold  float64
	last       *syncx.RWGuard[*CompareResponse]
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server.
func New(cmp *compare.Comparator, store *snapshot.Store, ledger Ledger, cfg *config.Config) *Server {
	threshold := compare.DefaultThreshold
	if cfg != nil && cfg.CompareThreshold > 0 {
		threshold = cfg.CompareThreshold
	}
	return &Server{
		cmp:        cmp,
		store:      store,
		ledger:     ledger,
		threshold:  threshold,
		last:       syncx.NewGuard[*CompareResponse](nil),
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}
}

// WithFetcher enables the remote-baseline endpoint.
func (s *Server) WithFetcher(f Fetcher) *Server {
	s.fetcher = f
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("POST /api/compare", s.handleCompare)
	mux.HandleFunc("POST /api/compare-remote", s.handleCompareRemote)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/last", s.handleLast)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "handle_compare")
	defer span.End()

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "invalid multipart form")
		return
	}

	baselineData, baselineName, err := readUpload(r, "baseline")
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, err.Error())
		return
	}
	candidateData, candidateName, err := readUpload(r, "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, err.Error())
		return
	}

	threshold := s.threshold
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "threshold must be a float in [0,1]")
			return
		}
		threshold = f
	}

	result := s.cmp.CompareData(baselineData, candidateData, threshold)
	span.SetAttr("similar", result.Similar)

	s.finishCompare(ctx, w, baselineName, candidateName, result)
}

// handleCompareRemote compares an uploaded candidate against a baseline
// fetched from the configured remote store.
func (s *Server) handleCompareRemote(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "handle_compare_remote")
	defer span.End()

	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, apperrors.CodeUnavailable, "no baseline source configured")
		return
	}

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "invalid multipart form")
		return
	}

	baselineName := r.FormValue("baseline")
	if baselineName == "" {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "missing baseline name")
		return
	}

	candidateData, candidateName, err := readUpload(r, "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, err.Error())
		return
	}

	threshold := s.threshold
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "threshold must be a float in [0,1]")
			return
		}
		threshold = f
	}

	baselineData, err := s.fetcher.FetchData(ctx, baselineName)
	if err != nil {
		status := http.StatusBadGateway
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, apperrors.CodeOf(err), "baseline fetch failed")
		return
	}

	result := s.cmp.CompareData(baselineData, candidateData, threshold)
	span.SetAttr("similar", result.Similar)

	s.finishCompare(ctx, w, baselineName, candidateName, result)
}

// finishCompare persists, broadcasts, and writes a comparison outcome.
func (s *Server) finishCompare(ctx context.Context, w http.ResponseWriter, baselineName, candidateName string, result compare.Result) {
	log := trace.Logger(ctx)

	resp := &CompareResponse{
		ID:        uuid.NewString(),
		Result:    result,
		Baseline:  baselineName,
		Candidate: candidateName,
	}

	// A diff artifact is only worth keeping when pixels actually differ.
	if result.Diff != nil && result.PixelDiffRatio > 0 {
		path, err := s.store.SaveDiff(baselineName, candidateName, result.Diff)
		if err != nil {
			log.Error("diff save failed", "error", err)
		} else {
			resp.DiffImage = path
		}
	}

	if s.ledger != nil {
		rec := &history.Record{
			ID:             resp.ID,
			Baseline:       baselineName,
			Candidate:      candidateName,
			Similar:        result.Similar,
			HashSimilarity: result.HashSimilarity,
			SSIM:           result.SSIM,
			PixelDiffRatio: result.PixelDiffRatio,
			Threshold:      result.Threshold,
			Degraded:       result.Degraded,
			ErrCode:        string(result.ErrCode),
			ErrReason:      result.ErrReason,
			DiffPath:       resp.DiffImage,
		}
		if err := s.ledger.Record(ctx, rec); err != nil {
			log.Error("history record failed", "error", err)
		}
	}

	s.last.Set(resp)
	s.broadcast(CompareEvent{
		Type:           "comparison",
		ID:             resp.ID,
		Baseline:       baselineName,
		Candidate:      candidateName,
		Similar:        result.Similar,
		HashSimilarity: result.HashSimilarity,
		SSIM:           result.SSIM,
		PixelDiffRatio: result.PixelDiffRatio,
		Error:          result.ErrReason,
	})

	log.Info("comparison complete",
		"baseline", baselineName,
		"candidate", candidateName,
		"similar", result.Similar,
		"hash_similarity", result.HashSimilarity,
		"ssim", result.SSIM)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, apperrors.CodeUnavailable, "history disabled")
		return
	}

	limit := HistoryDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "history query failed")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	storeStats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "store stats failed")
		return
	}

	resp := map[string]any{"store": storeStats}
	if s.ledger != nil {
		summary, err := s.ledger.Summarize(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "history summary failed")
			return
		}
		resp["comparisons"] = summary
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	last := s.last.Get()
	if last == nil {
		writeError(w, http.StatusNotFound, apperrors.CodeNotFound, "no comparison yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		// Check rate limit
		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, RateLimitedMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "ping":
			_ = wsjson.Write(baseCtx, conn, PongMessage{Type: "pong"})
		}
	}
}

// broadcast fans an event out to every connected subscriber.
func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = wsjson.Write(context.Background(), c, msg)
		}(conn)
	}
	s.mu.RUnlock()
}

func readUpload(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", apperrors.Newf(apperrors.CodeInvalidArgument, "missing %q file", field)
	}
	defer closeQuietly(file)

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes))
	if err != nil {
		return nil, "", apperrors.Wrapf(err, apperrors.CodeInvalidArgument, "read %q file", field)
	}
	name := header.Filename
	if name == "" {
		name = field
	}
	return data, name, nil
}

func closeQuietly(f multipart.File) { _ = f.Close() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code apperrors.Code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
