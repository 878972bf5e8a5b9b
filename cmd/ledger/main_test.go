package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/atmx/fill-ledger/internal/report"
)

const fixture = `timestamp,direction,shares,price_per_share,order_status,usd_value,clob_asset_id
2025-05-30 10:00:00,BUY_FILL,100,0.60,200 OK,60.00,big
2025-05-31 09:00:00,BUY_FILL,10,0.40,200 OK,4.00,small
2025-05-31 09:30:00,SELL_FILL,10,0.50,200 OK,5.00,small
2025-05-31 10:00:00,BUY_FILL,5,0.30,SKIPPED_PROBABILITY,1.50,big
`

func setup(t *testing.T, content string) string {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "LEDGER_CSV", "LEDGER_CONFIG"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "fills.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newApp(&out, &errOut).Run(append([]string{"ledger"}, args...))
	return out.String(), err
}

func TestPositions_Text(t *testing.T) {
	path := setup(t, fixture)
	out, err := run(t, "--csv", path, "--now", "2025-06-01 12:00:00", "positions", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "big")
	assert.Contains(t, out, "small")
}

func TestPnL_JSON(t *testing.T) {
	path := setup(t, fixture)
	out, err := run(t, "--csv", path, "--now", "2025-06-01 12:00:00", "--json", "pnl")
	require.NoError(t, err)

	var v report.PnLView
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.True(t, v.Result.RealizedPnL.Equal(decimal.NewFromInt(1)))
	assert.True(t, v.Result.TotalBuyCost.Equal(decimal.NewFromInt(64)))
	assert.False(t, v.Result.HasWarnings())
}

func TestFailOnWarning(t *testing.T) {
	path := setup(t, fixture+"2025-05-31 11:00:00,SELL_FILL,1,0.5,EXEC_FAIL: no liquidity,0.5,big\n")

	_, err := run(t, "--csv", path, "pnl")
	require.NoError(t, err, "warnings alone do not fail")

	_, err = run(t, "--csv", path, "--fail-on-warning", "pnl")
	require.Error(t, err)
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, exitWarnings, ec.ExitCode())
	assert.Contains(t, err.Error(), "failed_trades")

	_, err = run(t, "--csv", path, "--fail-on-warning", "stats")
	assert.Error(t, err)
}

func TestActivity_Limit(t *testing.T) {
	path := setup(t, fixture)
	out, err := run(t, "--csv", path, "--json", "activity", "--limit", "1")
	require.NoError(t, err)

	var v report.ActivityView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, 4, v.Total)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "big", v.Rows[0].Instrument)
}

func TestIngest(t *testing.T) {
	src := setup(t, fixture+"not,a,\"broken\n")
	dst := filepath.Join(t.TempDir(), "log.csv")

	out, err := run(t, "--csv", dst, "--json", "ingest", "--from", src)
	require.NoError(t, err)
	var sum ingestSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 4, sum.Records)
	assert.Len(t, sum.Defects, 1)
	assert.NotEmpty(t, sum.BatchID)

	out, err = run(t, "--csv", dst, "--json", "stats")
	require.NoError(t, err)
	var stats report.StatsView
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 1, stats.ParseDefects)
}

func TestBadNow(t *testing.T) {
	path := setup(t, fixture)
	_, err := run(t, "--csv", path, "--now", "yesterday", "stale")
	assert.Error(t, err)
}
