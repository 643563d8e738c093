package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/di"
	"github.com/aristath/tierfolio/internal/domain"
	testingpkg "github.com/aristath/tierfolio/internal/testing"
)

func setupTestServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		DataDir:  t.TempDir(),
		Currency: domain.CurrencyEUR,
		DevMode:  true,
	}

	container, _, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)

	s := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Port:      0,
		DevMode:   true,
		Container: container,
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		container.Close()
	})
	return ts, cfg
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postRun(t *testing.T, baseURL string) {
	t.Helper()

	body, err := json.Marshal(testingpkg.NewBalancedSnapshot())
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/api/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts, _ := setupTestServer(t)

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "tierfolio", body["service"])
	assert.Equal(t, "EUR", body["currency"])
}

func TestWhatIfRoutesStoreNothing(t *testing.T) {
	ts, _ := setupTestServer(t)

	var tiersResp map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/allocation/tiers", &tiersResp))
	assert.Equal(t, 95.0, tiersResp["investable_pct"])

	body, err := json.Marshal(testingpkg.NewBalancedSnapshot())
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/rebalancing/calculate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status SystemStatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/status", &status))
	assert.Equal(t, 0, status.RunCount)
}

func TestSystemStatus_CountsRuns(t *testing.T) {
	ts, _ := setupTestServer(t)

	var status SystemStatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/status", &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 0, status.RunCount)
	assert.Equal(t, []string{"check_databases", "check_wal_checkpoints", "cleanup_runs"}, status.Jobs)
	assert.GreaterOrEqual(t, status.UptimeSeconds, 0.0)

	postRun(t, ts.URL)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/status", &status))
	assert.Equal(t, 1, status.RunCount)
}

func TestDatabaseStats(t *testing.T) {
	ts, _ := setupTestServer(t)

	var stats DatabaseStatsResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/database", &stats))
	require.Len(t, stats.Databases, 1)
	assert.Equal(t, "reports", stats.Databases[0].Name)
	assert.Greater(t, stats.Databases[0].PageCount, int64(0))
	assert.NotEmpty(t, stats.Databases[0].Size)
}

func TestDiskUsage(t *testing.T) {
	ts, cfg := setupTestServer(t)

	logsDir := filepath.Join(cfg.DataDir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "tierfolio.log"), bytes.Repeat([]byte("x"), 2048), 0644))

	var usage DiskUsageResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/disk", &usage))
	assert.InDelta(t, 2048.0/1024/1024, usage.LogsDirMB, 1e-9)
	assert.GreaterOrEqual(t, usage.DataDirMB, usage.LogsDirMB)
}

func TestJobs(t *testing.T) {
	ts, _ := setupTestServer(t)

	var jobs JobsStatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/system/jobs", &jobs))
	assert.Equal(t, 3, jobs.TotalJobs)

	tests := []struct {
		name   string
		job    string
		status int
	}{
		{name: "integrity check", job: "check_databases", status: http.StatusOK},
		{name: "wal checkpoint", job: "check_wal_checkpoints", status: http.StatusOK},
		{name: "cleanup", job: "cleanup_runs", status: http.StatusOK},
		{name: "unknown job", job: "send_newsletter", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/system/jobs/"+tt.job, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestLogs(t *testing.T) {
	ts, cfg := setupTestServer(t)

	logsDir := filepath.Join(cfg.DataDir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0755))
	content := strings.Join([]string{
		`{"level":"info","message":"Starting HTTP server"}`,
		`{"level":"error","message":"Manual job run failed"}`,
		`{"level":"info","message":"Analysis run completed"}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "tierfolio.log"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "notes.txt"), []byte("ignored"), 0644))

	var list LogListResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "tierfolio.log", list.LogFiles[0].Name)

	var logs LogContentResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs/tierfolio.log", &logs))
	assert.Equal(t, 3, logs.Total)
	assert.Len(t, logs.Lines, 3)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs/tierfolio.log?level=error", &logs))
	require.Len(t, logs.Lines, 1)
	assert.Contains(t, logs.Lines[0], "Manual job run failed")

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs/tierfolio.log?lines=1", &logs))
	require.Len(t, logs.Lines, 1)
	assert.Contains(t, logs.Lines[0], "Analysis run completed")

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/logs/missing.log", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/logs/tierfolio.log?lines=-3", nil))
}

func TestResolveLogFile(t *testing.T) {
	logsDir := filepath.Join(t.TempDir(), "logs")

	tests := []struct {
		name string
		file string
		ok   bool
	}{
		{name: "plain", file: "tierfolio.log", ok: true},
		{name: "empty", file: "", ok: false},
		{name: "parent", file: "..", ok: false},
		{name: "traversal", file: "../secrets.log", ok: false},
		{name: "nested", file: "a/b.log", ok: false},
		{name: "backslash", file: `a\b.log`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := resolveLogFile(logsDir, tt.file)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, filepath.Join(logsDir, tt.file), path)
			}
		})
	}
}

func TestFilterLogs(t *testing.T) {
	lines := []string{
		`{"level":"warn","message":"Event channel full"}`,
		"2026-01-02T10:00:00Z ERR Job failed job=cleanup_runs",
		"2026-01-02T10:00:01Z INF Job registered job=cleanup_runs",
		"",
	}

	assert.Equal(t, lines, filterLogs(lines, "", ""))
	assert.Equal(t, lines[:1], filterLogs(lines, "WARN", ""))
	assert.Equal(t, lines[1:2], filterLogs(lines, "ERROR", ""))
	assert.Equal(t, lines[1:3], filterLogs(lines, "", "CLEANUP_RUNS"))
	assert.Equal(t, lines[2:3], filterLogs(lines, "INFO", "registered"))
}

func TestEventsStream(t *testing.T) {
	ts, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=run_started", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	readEvent := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var payload map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(data), &payload))
				return payload
			}
		}
	}

	assert.Equal(t, "connected", readEvent()["type"])

	postRun(t, ts.URL)

	event := readEvent()
	assert.Equal(t, "RUN_STARTED", event["type"])
	assert.Equal(t, "planning", event["module"])
	data, ok := event["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "api", data["source"])
}

func TestEventsWebsocket(t *testing.T) {
	ts, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws?types=COMPLIANCE_EVALUATED"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "connected", msg["type"])

	postRun(t, ts.URL)

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "COMPLIANCE_EVALUATED", msg["type"])
	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 100.0, data["score"])
}

func TestParseTypesFilter(t *testing.T) {
	assert.Nil(t, parseTypesFilter(""))
	assert.Nil(t, parseTypesFilter("  "))

	allowed := parseTypesFilter("run_started, PLAN_GENERATED,")
	assert.Len(t, allowed, 2)
	assert.True(t, allowed["RUN_STARTED"])
	assert.True(t, allowed["PLAN_GENERATED"])
}
