package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/reconcile"
	"github.com/atmx/fill-ledger/internal/report"
	"github.com/atmx/fill-ledger/internal/server"
	"github.com/atmx/fill-ledger/internal/store"
)

const fixture = `timestamp,direction,shares,price_per_share,order_status,usd_value,clob_asset_id
2025-05-30 10:00:00,BUY_FILL,100,0.60,200 OK,60.00,big
2025-05-31 09:00:00,BUY_FILL,10,0.40,200 OK,4.00,small
2025-05-31 09:30:00,SELL_FILL,10,0.50,200 OK,5.00,small
2025-05-31 10:00:00,BUY_FILL,5,0.30,SKIPPED_PROBABILITY,1.50,big
not,a,"broken
`

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEnv creates a router over an in-memory store.
func newTestEnv(t *testing.T, hub *server.WSHub, opts ...server.Option) http.Handler {
	t.Helper()
	b := report.NewBuilder(classify.DefaultThresholds(), report.WithClock(func() time.Time { return now }))
	svc := server.NewService(store.NewMemoryStore(), b, hub, zap.NewNop(), opts...)
	return server.NewRouter(svc, zap.NewNop(), 5*time.Second)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func ingest(t *testing.T, h http.Handler) server.IngestResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/fills", fixture)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[server.IngestResponse](t, w)
}

func TestHealth(t *testing.T) {
	h := newTestEnv(t, nil)
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"fill-ledger"}`, w.Body.String())
}

func TestIngestFills(t *testing.T) {
	h := newTestEnv(t, nil)
	resp := ingest(t, h)

	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 4, resp.Records)
	require.Len(t, resp.Defects, 1)
	assert.Equal(t, 6, resp.Defects[0].Line)

	r := resp.Reconciliation
	assert.True(t, r.TotalBuyCost.Equal(d("64")))
	assert.True(t, r.TotalSellProceeds.Equal(d("5")))
	assert.True(t, r.RealizedPnL.Equal(d("1")))
	assert.True(t, r.UnrealizedPnL.IsZero())
	assert.Equal(t, 1, r.OpenPositions)
	_, ok := r.Warning(reconcile.WarnParseDefects)
	assert.True(t, ok)
}

func TestIngestFills_EmptyBody(t *testing.T) {
	h := newTestEnv(t, nil)
	w := do(t, h, http.MethodPost, "/api/v1/fills", "\n\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestFills_TooLarge(t *testing.T) {
	h := newTestEnv(t, nil, server.WithMaxIngestBytes(64))
	w := do(t, h, http.MethodPost, "/api/v1/fills", fixture)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[report.StatsView](t, w).TotalTrades, "nothing stored")
}

func TestListPositions(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[report.PositionsView](t, w)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "big", v.Rows[0].InstrumentID)
	assert.True(t, v.Rows[0].NetShares.Equal(d("100")), "skipped buy not applied")
	assert.True(t, v.Rows[0].Has(classify.LabelLarge))

	w = do(t, h, http.MethodGet, "/api/v1/positions?all=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[report.PositionsView](t, w).Rows, 2)

	w = do(t, h, http.MethodGet, "/api/v1/positions?all=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPositions_Label(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/positions?label=closed", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]report.PositionRow](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "small", rows[0].InstrumentID)

	w = do(t, h, http.MethodGet, "/api/v1/positions?label=dust", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/positions?label=huge", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPosition(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/positions/small", "")
	require.Equal(t, http.StatusOK, w.Code)
	row := decode[report.PositionRow](t, w)
	assert.True(t, row.NetShares.IsZero())
	assert.True(t, row.CostBasis.Equal(d("-1")))

	w = do(t, h, http.MethodGet, "/api/v1/positions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReconciliation(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/reconciliation", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[report.PnLView](t, w)
	assert.True(t, v.Result.TotalPnL.Equal(d("1")))
	assert.True(t, v.Result.TotalPnL.Equal(v.Result.PnLIfClosed))
	assert.Equal(t, 4, v.Result.Counts.Total)
	assert.Equal(t, 1, v.Result.Counts.Skipped)
}

func TestGetLargeAndStale(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/large", "")
	require.Equal(t, http.StatusOK, w.Code)
	large := decode[report.LargeView](t, w)
	require.Len(t, large.Rows, 1)
	assert.True(t, large.TotalValue.Equal(d("60")))

	w = do(t, h, http.MethodGet, "/api/v1/stale", "")
	require.Equal(t, http.StatusOK, w.Code)
	stale := decode[report.StaleView](t, w)
	assert.Empty(t, stale.Stale)
	assert.Equal(t, 30, stale.StaleDays)
}

func TestListFills(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/fills?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[report.ActivityView](t, w)
	assert.Equal(t, 4, v.Total)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "big", v.Rows[0].Instrument, "newest first")
	assert.Equal(t, "small", v.Rows[1].Instrument)

	for _, bad := range []string{"0", "-3", "ten"} {
		w = do(t, h, http.MethodGet, "/api/v1/fills?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestGetStats(t *testing.T) {
	h := newTestEnv(t, nil)
	ingest(t, h)
	ingest(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[report.StatsView](t, w)
	assert.Equal(t, 8, v.TotalTrades)
	assert.Equal(t, 2, v.Skipped)
	assert.Equal(t, 2, v.ParseDefects)
	assert.Equal(t, 2, v.Instruments)
}

func TestWebSocketBroadcastOnIngest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := server.NewWSHub(zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(newTestEnv(t, hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/fills", "text/csv", strings.NewReader(fixture))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageFillsIngested, msg.Type)
	assert.Equal(t, 4, msg.Records)
	assert.Equal(t, 1, msg.Defects)
	require.NotNil(t, msg.Reconciliation)
	assert.True(t, msg.Reconciliation.RealizedPnL.Equal(d("1")))
}
