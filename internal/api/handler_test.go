package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinda73971177/soc/internal/assets"
	"github.com/chinda73971177/soc/internal/config"
	"github.com/chinda73971177/soc/internal/gate"
	"github.com/chinda73971177/soc/internal/ingest"
	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/normalize"
	"github.com/chinda73971177/soc/internal/notify"
	"github.com/chinda73971177/soc/internal/rules"
	"github.com/chinda73971177/soc/internal/scan"
	"github.com/chinda73971177/soc/internal/store"
)

type testEnv struct {
	handler *Handler
	mem     *store.MemoryStore
	runner  *scan.Runner
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemoryStore(0)

	g, err := gate.New(gate.ChannelThresholds{"telegram": model.SeverityHigh}, 0)
	require.NoError(t, err)
	dispatcher := notify.NewDispatcher(g, logger)

	rec := assets.NewReconciler(mem, mem, nil, assets.Options{}, logger)
	runner := scan.NewRunner(scan.NewSyntheticScanner(), mem, rec, logger)

	dir := t.TempDir()
	netcfg, err := config.NewNetworkStore(filepath.Join(dir, "network_config.json"))
	require.NoError(t, err)

	h := NewHandler(
		mem,
		dispatcher,
		runner,
		ingest.NewService(normalize.New(logger), mem, 0, logger),
		netcfg,
		rules.NewMatcher(rules.Builtin()),
		rules.NewEngineRulesFile(filepath.Join(dir, "local.rules")),
		nil,
		logger,
	)
	return &testEnv{handler: h, mem: mem, runner: runner}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func seedAlert(t *testing.T, mem *store.MemoryStore, severity model.Severity) model.Alert {
	t.Helper()
	now := time.Now().UTC()
	a := model.Alert{
		ID:        uuid.NewString(),
		AlertType: "port_scan",
		Severity:  severity,
		Title:     "Port Scan Detected",
		SrcIP:     "10.0.0.5",
		Status:    model.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, mem.CreateAlert(context.Background(), &a))
	return a
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rr)["status"])
}

func TestListAlertsAndFilters(t *testing.T) {
	e := newEnv(t)
	seedAlert(t, e.mem, model.SeverityHigh)
	seedAlert(t, e.mem, model.SeverityLow)

	rr := e.do(t, http.MethodGet, "/api/alerts", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Alert](t, rr), 2)

	rr = e.do(t, http.MethodGet, "/api/alerts?severity=high", nil)
	assert.Len(t, decode[[]model.Alert](t, rr), 1)

	rr = e.do(t, http.MethodGet, "/api/alerts?severity=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/alerts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetAndUpdateAlert(t *testing.T) {
	e := newEnv(t)
	a := seedAlert(t, e.mem, model.SeverityHigh)

	rr := e.do(t, http.MethodGet, "/api/alerts/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, a.ID, decode[model.Alert](t, rr).ID)

	rr = e.do(t, http.MethodGet, "/api/alerts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPut, "/api/alerts/"+a.ID+"/status",
		strings.NewReader(`{"status":"resolved"}`))
	assert.Equal(t, http.StatusOK, rr.Code)

	got, err := e.mem.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)

	rr = e.do(t, http.MethodPut, "/api/alerts/"+a.ID+"/status",
		strings.NewReader(`{"status":"escalated"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	seedAlert(t, e.mem, model.SeverityHigh)

	rr := e.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]json.RawMessage](t, rr)
	assert.Contains(t, body, "alerts")
	assert.Contains(t, body, "assets")
}

func TestScanEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPost, "/api/scans",
		strings.NewReader(`{"target":"10.1.2.0/24","scan_type":"quick"}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	run := decode[model.ScanRun](t, rr)
	assert.Equal(t, model.ScanRunning, run.Status)
	e.runner.Wait()

	rr = e.do(t, http.MethodGet, "/api/scans/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.ScanCompleted, decode[model.ScanRun](t, rr).Status)

	rr = e.do(t, http.MethodGet, "/api/scans", nil)
	assert.Len(t, decode[[]model.ScanRun](t, rr), 1)

	// Assets discovered by the scan are listed.
	rr = e.do(t, http.MethodGet, "/api/assets", nil)
	assert.NotEmpty(t, decode[[]model.Asset](t, rr))

	// A scan without a body uses the configured network range.
	rr = e.do(t, http.MethodPost, "/api/scans", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "192.168.1.0/24", decode[model.ScanRun](t, rr).Target)
	e.runner.Wait()
}

func TestChangeAcknowledge(t *testing.T) {
	e := newEnv(t)
	change := &model.NetworkChange{
		ID:         uuid.NewString(),
		AssetID:    uuid.NewString(),
		ChangeType: model.ChangeNewHost,
		DetectedAt: time.Now().UTC(),
	}
	require.NoError(t, e.mem.RecordChange(context.Background(), change))

	rr := e.do(t, http.MethodPost, "/api/changes/"+change.ID+"/ack", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/changes", nil)
	changes := decode[[]model.NetworkChange](t, rr)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Acknowledged)

	rr = e.do(t, http.MethodPost, "/api/changes/missing/ack", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpload(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "auth.log")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Jan 15 10:30:00 web01 sshd[1234]: error: auth failure\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[ingest.Report](t, rr)
	assert.Equal(t, "auth.log", report.Filename)
	assert.Equal(t, 1, report.Indexed)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "dump.pcap")
	require.NoError(t, err)
	_, err = fw.Write([]byte("binary"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestNetworkConfigRoundTrip(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, config.DefaultNetworkConfig(), decode[config.NetworkConfig](t, rr))

	rr = e.do(t, http.MethodPut, "/api/config",
		strings.NewReader(`{"auto_scan_enabled":true,"scan_interval_minutes":5}`))
	assert.Equal(t, http.StatusOK, rr.Code)
	updated := decode[config.NetworkConfig](t, rr)
	assert.True(t, updated.AutoScanEnabled)
	assert.Equal(t, 5, updated.ScanIntervalMinutes)

	rr = e.do(t, http.MethodPut, "/api/config", strings.NewReader(`{"scan_type":"stealth"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRulesEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/api/rules", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]rules.Rule](t, rr), 10)

	rr = e.do(t, http.MethodPost, "/api/rules",
		strings.NewReader(`{"id":"C001","name":"Custom Telnet","protocol":"TCP","dst_port":23,"severity":"high","category":"brute_force"}`))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/rules", nil)
	assert.Len(t, decode[[]rules.Rule](t, rr), 11)

	rr = e.do(t, http.MethodPost, "/api/rules", strings.NewReader(`{"name":"no id"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEngineRulesEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/api/engine/rules", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]rules.EngineRule](t, rr))

	rr = e.do(t, http.MethodPost, "/api/engine/rules",
		strings.NewReader(`{"rule":"alert tcp any any -> any 23 (msg:\"telnet\"; sid:1000001;)"}`))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/engine/rules", nil)
	listed := decode[[]rules.EngineRule](t, rr)
	require.Len(t, listed, 1)
	assert.Contains(t, listed[0].Content, "sid:1000001")

	rr = e.do(t, http.MethodPost, "/api/engine/rules", strings.NewReader(`{"rule":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTestChannelUnconfigured(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/api/notify/test/telegram", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
