// Package server provides the HTTP handlers that expose the fill ledger:
// position tables, reconciliation, candidate lists, recent activity, and
// CSV ingest with WebSocket push.
//
// Every request folds the stored log afresh; no mutable position state is
// shared between requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/fillparse"
	"github.com/atmx/fill-ledger/internal/ledger"
	"github.com/atmx/fill-ledger/internal/metrics"
	"github.com/atmx/fill-ledger/internal/model"
	"github.com/atmx/fill-ledger/internal/reconcile"
	"github.com/atmx/fill-ledger/internal/report"
	"github.com/atmx/fill-ledger/internal/store"
	"github.com/atmx/fill-ledger/internal/tracing"
)

// DefaultMaxIngestBytes caps a POST /fills body.
const DefaultMaxIngestBytes = 32 << 20

// Service serves ledger views from a FillStore. Ingests are serialized so
// batches land in the log in the order they were accepted.
type Service struct {
	store     store.FillStore
	builder   *report.Builder
	wsHub     *WSHub // optional
	log       *zap.Logger
	ledgerOpt []ledger.Option
	parseOpt  []fillparse.Option
	maxIngest int64
	mu        sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithExcludeFailed keeps failed fills out of positions.
func WithExcludeFailed(exclude bool) Option {
	return func(s *Service) {
		s.ledgerOpt = append(s.ledgerOpt, ledger.WithExcludeFailed(exclude))
	}
}

// WithParseWorkers sets the parser parallelism for ingested bodies.
func WithParseWorkers(n int) Option {
	return func(s *Service) {
		s.parseOpt = append(s.parseOpt, fillparse.WithWorkers(n))
	}
}

// WithMaxIngestBytes caps the size of an ingested body.
func WithMaxIngestBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxIngest = n
		}
	}
}

// NewService creates a ledger service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.FillStore, b *report.Builder, hub *WSHub, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		builder:   b,
		wsHub:     hub,
		log:       log,
		maxIngest: DefaultMaxIngestBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestResponse is the JSON body returned from POST /fills.
type IngestResponse struct {
	BatchID        string              `json:"batch_id"`
	Records        int                 `json:"records"`
	Defects        []model.ParseDefect `json:"defects"`
	Reconciliation reconcile.Result    `json:"reconciliation"`
}

// Routes mounts the ledger endpoints on r. The WebSocket endpoint is
// mounted by NewRouter.
func (s *Service) Routes(r chi.Router) {
	r.Get("/positions", s.ListPositions)
	r.Get("/positions/{instrumentID}", s.GetPosition)
	r.Get("/reconciliation", s.GetReconciliation)
	r.Get("/stale", s.GetStale)
	r.Get("/large", s.GetLarge)
	r.Get("/fills", s.ListFills)
	r.Post("/fills", s.IngestFills)
	r.Get("/stats", s.GetStats)
}

// load reads the stored log and folds it.
func (s *Service) load(ctx context.Context) (model.FillLog, *ledger.Snapshot, error) {
	ctx, span := tracing.Start(ctx, "ledger.load")
	defer span.End()

	log, err := s.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return model.FillLog{}, nil, err
	}
	snap := ledger.FoldLog(log, s.ledgerOpt...)
	span.SetAttributes(
		attribute.Int("ledger.records", len(log.Records)),
		attribute.Int("ledger.defects", len(log.Defects)),
		attribute.Int("ledger.instruments", snap.Len()),
	)
	return log, snap, nil
}

func (s *Service) snapshot(w http.ResponseWriter, r *http.Request) (*ledger.Snapshot, bool) {
	_, snap, err := s.load(r.Context())
	if err != nil {
		s.log.Error("load fill log", zap.Error(err))
		writeError(w, "failed to load fill log", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

// --- HTTP Handlers ---

// ListPositions handles GET /api/v1/positions
// Open positions by descending value; ?all=true adds closed ones and
// ?label=<name> filters to one classification.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, err := parseBool(q.Get("all"))
	if err != nil {
		writeError(w, "all must be a boolean", http.StatusBadRequest)
		return
	}
	var label classify.Label
	if raw := q.Get("label"); raw != "" {
		l, ok := classify.ParseLabel(raw)
		if !ok {
			writeError(w, "unknown label: "+raw, http.StatusBadRequest)
			return
		}
		label = l
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	if label != "" {
		rows := s.builder.Labeled(snap, label)
		if rows == nil {
			rows = []report.PositionRow{}
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Positions(snap, all))
}

// GetPosition handles GET /api/v1/positions/{instrumentID}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instrumentID")
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	row, found := s.builder.Position(snap, id)
	if !found {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// GetReconciliation handles GET /api/v1/reconciliation
func (s *Service) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	v := s.builder.PnL(snap)
	metrics.ObserveReconciliation(v.Result, time.Since(start))
	writeJSON(w, http.StatusOK, v)
}

// GetStale handles GET /api/v1/stale
func (s *Service) GetStale(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Stale(snap))
}

// GetLarge handles GET /api/v1/large
func (s *Service) GetLarge(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Large(snap))
}

// ListFills handles GET /api/v1/fills?limit=n
// Returns the most recent fills, newest first.
func (s *Service) ListFills(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	log, err := s.store.Load(r.Context())
	if err != nil {
		s.log.Error("load fill log", zap.Error(err))
		writeError(w, "failed to load fill log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Activity(log, limit))
}

// GetStats handles GET /api/v1/stats
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	log, snap, err := s.load(r.Context())
	if err != nil {
		s.log.Error("load fill log", zap.Error(err))
		writeError(w, "failed to load fill log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Stats(log, snap))
}

// IngestFills handles POST /api/v1/fills
// The body is a fill log in CSV form. Unreadable lines are stored and
// reported back as defects; they never fail the request.
func (s *Service) IngestFills(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "ledger.ingest")
	defer span.End()

	body := http.MaxBytesReader(w, r.Body, s.maxIngest)
	batch, err := fillparse.Parse(body, s.parseOpt...)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Sprintf("body exceeds %d bytes", s.maxIngest), http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(batch.Records) == 0 && len(batch.Defects) == 0 {
		writeError(w, "no fills in body", http.StatusBadRequest)
		return
	}

	// Serialize ingest so batches are appended in acceptance order.
	s.mu.Lock()
	defer s.mu.Unlock()

	batchID, err := s.store.Append(ctx, batch)
	if err != nil {
		span.RecordError(err)
		s.log.Error("append fills", zap.Error(err))
		writeError(w, "failed to store fills", http.StatusInternalServerError)
		return
	}
	metrics.ObserveIngest(batch)
	span.SetAttributes(attribute.String("ledger.batch_id", batchID))

	s.log.Info("fills ingested",
		zap.String("batch_id", batchID),
		zap.Int("records", len(batch.Records)),
		zap.Int("defects", len(batch.Defects)),
	)

	start := time.Now()
	_, snap, err := s.load(ctx)
	if err != nil {
		s.log.Error("reload after ingest", zap.Error(err))
		writeError(w, "fills stored but reconciliation failed", http.StatusInternalServerError)
		return
	}
	result := s.builder.PnL(snap).Result
	metrics.ObserveReconciliation(result, time.Since(start))

	if s.wsHub != nil {
		s.wsHub.Broadcast(Message{
			Type:           MessageFillsIngested,
			BatchID:        batchID,
			Records:        len(batch.Records),
			Defects:        len(batch.Defects),
			Reconciliation: &result,
		})
	}

	defects := batch.Defects
	if defects == nil {
		defects = []model.ParseDefect{}
	}
	writeJSON(w, http.StatusCreated, IngestResponse{
		BatchID:        batchID,
		Records:        len(batch.Records),
		Defects:        defects,
		Reconciliation: result,
	})
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
