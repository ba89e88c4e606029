package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/atbench/internal/parsers"
	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/rules"
	"github.com/danmuck/atbench/internal/terminal"
	"github.com/danmuck/atbench/internal/testutil/testlog"
)

func sampleBatch() terminal.BatchResult {
	envs := []terminal.ResponseEnvelope{
		{Command: "AT+CGMI", Reply: "Nordic Semiconductor ASA", Status: protocol.StatusOK},
		{Command: "AT%XVBAT", Reply: "%XVBAT: 4000", Status: protocol.StatusOK},
		{Command: "AT%XMONITOR", Reply: `%XMONITOR: 1,"","","24201","81AE",7,20,"0331C805",281,6400,53,42`, Status: protocol.StatusOK},
		{Command: "AT%XTEMP?", Status: protocol.StatusNone},
		{Command: "AT+VENDOR", Reply: "42", Status: protocol.StatusOK},
	}
	b := terminal.BatchResult{Responses: map[string]terminal.ResponseEnvelope{}}
	for _, env := range envs {
		b.Order = append(b.Order, env.Command)
		b.Responses[env.Command] = env
	}
	return b
}

func sampleBuilder(t *testing.T) Builder {
	t.Helper()
	reg, err := parsers.NewDefaultRegistry(parsers.DefaultBuiltinConfig())
	require.NoError(t, err)
	limits, err := rules.ParseLimits(map[string]any{
		"Battery voltage": map[string]any{"min": 4900, "max": 5100},
		"Network monitor": map[string]any{"field": "rsrp_dbm", "min": -80},
	})
	require.NoError(t, err)
	return NewBuilder(reg, limits)
}

func TestBuildComposesParserAndRules(t *testing.T) {
	testlog.Start(t)
	results := sampleBuilder(t).Build(sampleBatch())
	require.Len(t, results, 5)

	got := make(map[string]bool, len(results))
	for _, r := range results {
		got[r.Name] = r.Passed
	}
	want := map[string]bool{
		"Manufacturer":      true,
		"Battery voltage":   false,
		"Network monitor":   false,
		"Modem temperature": false,
		"AT+VENDOR":         true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("verdicts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"value 4000 < [4900-5100]"}, results[1].Reasons)
	assert.Equal(t, []string{"rsrp_dbm -87 < [-80, inf]"}, results[2].Reasons)
	assert.Equal(t, "unparseable", results[3].Description())
	assert.Equal(t, Summary{Total: 5, Passed: 2, Failed: 3}, Summarize(results))
	assert.False(t, AllPassed(results))
}

func TestBuildSignalLimitOnMonitor(t *testing.T) {
	testlog.Start(t)
	reg, err := parsers.NewDefaultRegistry(parsers.DefaultBuiltinConfig())
	require.NoError(t, err)
	limits := rules.Set{"Network monitor": {rules.AtLeast(-95).On("signal_dbm")}}
	env := terminal.ResponseEnvelope{
		Command: "AT%XMONITOR",
		Reply:   `%XMONITOR: 1,"","","24201","81AE",7,20,"0331C805",281,6400,20,42`,
		Status:  protocol.StatusOK,
	}

	res := NewBuilder(reg, limits).Result(env)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"signal_dbm -120 < [-95, inf]"}, res.Reasons)

	env.Reply = `%XMONITOR: 1,"","","24201","81AE",7,20,"0331C805",281,6400,53,42`
	res = NewBuilder(reg, limits).Result(env)
	assert.True(t, res.Passed, "%v", res.Reasons)
}

func TestBuildRecordsTransportFailure(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder(nil, nil)
	res := b.Result(terminal.ResponseEnvelope{Command: "AT", Err: errors.New("terminal: send: link down")})

	assert.False(t, res.Passed)
	assert.Equal(t, []string{"terminal: send: link down"}, res.Reasons)
	assert.Equal(t, "AT", res.Name)
}

func TestLineFormat(t *testing.T) {
	testlog.Start(t)
	r := NewRenderer(false)
	results := sampleBuilder(t).Build(sampleBatch())

	assert.Equal(t, "PASS   Manufacturer               Nordic Semiconductor ASA", r.Line(results[0]))
	assert.Equal(t, "FAIL   Battery voltage            4.00 V  [fail: value 4000 < [4900-5100]]", r.Line(results[1]))
	assert.Equal(t, "FAIL   Modem temperature          (no details)", r.Line(TestResult{Name: "Modem temperature"}))
}

func TestRendererWriteIncludesSummary(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(true).Write(&buf, sampleBuilder(t).Build(sampleBatch())))

	out := buf.String()
	assert.Contains(t, out, "Manufacturer")
	assert.Contains(t, out, "PASS")
	assert.True(t, strings.HasSuffix(out, "2 passed, 3 failed, 5 total\n"))
}

func TestRecordsJSON(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleBuilder(t).Build(sampleBatch())))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 5)

	assert.Equal(t, "OK", decoded[0]["status"])
	assert.Nil(t, decoded[3]["status"])
	assert.Equal(t, float64(4000), decoded[1]["value"])
	monitor, ok := decoded[2]["value"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-87), monitor["rsrp_dbm"])
	assert.Equal(t, []any{}, decoded[0]["reasons"])
}

func TestAppendCSVWritesHeaderOnce(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "results.csv")
	results := sampleBuilder(t).Build(sampleBatch())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, AppendCSV(path, "run-1", at, results))
	require.NoError(t, AppendCSV(path, "run-2", at, results[:1]))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 1+5+1)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"run-1", "2026-03-01T12:00:00Z", "AT%XVBAT", "Battery voltage", "false", "OK", "4.00 V", "4000", "value 4000 < [4900-5100]"}, rows[2])
	assert.Equal(t, "", rows[4][5])
	assert.Equal(t, "run-2", rows[6][0])
}

func TestSQLiteLogAppendAndRead(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	results := sampleBuilder(t).Build(sampleBatch())
	run := NewRun(time.Now(), results)
	_, err := uuid.Parse(run.ID)
	require.NoError(t, err)

	log, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, run.ID, run.Started, run.Results))
	require.NoError(t, log.Close())

	// Reopening must not recreate or clear the table.
	log, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer log.Close()
	require.NoError(t, log.Append(ctx, "other", run.Started, results[:1]))

	rows, err := log.Run(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Manufacturer", rows[0].Name)
	assert.True(t, rows[0].Passed)
	assert.False(t, rows[3].Status.Valid)
	assert.Equal(t, "value 4000 < [4900-5100]", rows[1].Reasons)
}
