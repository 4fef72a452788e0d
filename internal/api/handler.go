// Package api exposes the pipeline over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chinda73971177/soc/internal/config"
	"github.com/chinda73971177/soc/internal/ingest"
	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/normalize"
	"github.com/chinda73971177/soc/internal/notify"
	"github.com/chinda73971177/soc/internal/rules"
	"github.com/chinda73971177/soc/internal/scan"
	"github.com/chinda73971177/soc/internal/store"
)

// Handler handles HTTP requests for the pipeline API
type Handler struct {
	store      store.Store
	dispatcher *notify.Dispatcher
	runner     *scan.Runner
	ingest     *ingest.Service
	netcfg     *config.NetworkStore
	matcher    *rules.Matcher
	engineFile *rules.EngineRulesFile
	health     func() error
	logger     *slog.Logger
}

// NewHandler creates a new API handler. health reports backing-store
// reachability for the readiness probe; nil means always ready.
func NewHandler(st store.Store, dispatcher *notify.Dispatcher, runner *scan.Runner,
	ing *ingest.Service, netcfg *config.NetworkStore, matcher *rules.Matcher,
	engineFile *rules.EngineRulesFile, health func() error, logger *slog.Logger) *Handler {
	return &Handler{
		store:      st,
		dispatcher: dispatcher,
		runner:     runner,
		ingest:     ing,
		netcfg:     netcfg,
		matcher:    matcher,
		engineFile: engineFile,
		health:     health,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "healthz":
		h.handleHealthz(w, r)
	case path == "readyz":
		h.handleReadyz(w, r)
	case path == "api/alerts" && r.Method == http.MethodGet:
		h.handleListAlerts(w, r)
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "alerts" && r.Method == http.MethodGet:
		h.handleGetAlert(w, r, parts[2])
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "alerts" && parts[3] == "status" && r.Method == http.MethodPut:
		h.handleUpdateAlertStatus(w, r, parts[2])
	case path == "api/stats" && r.Method == http.MethodGet:
		h.handleStats(w, r)
	case path == "api/assets" && r.Method == http.MethodGet:
		h.handleListAssets(w, r)
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "assets" && r.Method == http.MethodGet:
		h.handleGetAsset(w, r, parts[2])
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "assets" && r.Method == http.MethodDelete:
		h.handleDeleteAsset(w, r, parts[2])
	case path == "api/changes" && r.Method == http.MethodGet:
		h.handleListChanges(w, r)
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "changes" && parts[3] == "ack" && r.Method == http.MethodPost:
		h.handleAcknowledgeChange(w, r, parts[2])
	case path == "api/scans" && r.Method == http.MethodGet:
		h.handleListScans(w, r)
	case path == "api/scans" && r.Method == http.MethodPost:
		h.handleStartScan(w, r)
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "scans" && r.Method == http.MethodGet:
		h.handleGetScan(w, r, parts[2])
	case path == "api/upload" && r.Method == http.MethodPost:
		h.handleUpload(w, r)
	case path == "api/config" && r.Method == http.MethodGet:
		h.handleGetConfig(w, r)
	case path == "api/config" && r.Method == http.MethodPut:
		h.handleUpdateConfig(w, r)
	case path == "api/rules" && r.Method == http.MethodGet:
		h.handleListRules(w, r)
	case path == "api/rules" && r.Method == http.MethodPost:
		h.handleAddRule(w, r)
	case path == "api/engine/rules" && r.Method == http.MethodGet:
		h.handleListEngineRules(w, r)
	case path == "api/engine/rules" && r.Method == http.MethodPost:
		h.handleAddEngineRule(w, r)
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "notify" && parts[2] == "test" && r.Method == http.MethodPost:
		h.handleTestChannel(w, r, parts[3])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if h.health != nil {
		if err := h.health(); err != nil {
			h.logger.Error("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "store not accessible",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- alerts ---

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := store.AlertFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit"),
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		severity := model.Severity(sev)
		if !severity.Valid() {
			writeError(w, http.StatusBadRequest, "invalid severity filter")
			return
		}
		filter.Severity = severity
	}
	if filter.Status != "" && !model.ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve alerts")
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request, id string) {
	alert, err := h.store.GetAlert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get alert", "alert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleUpdateAlertStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "invalid alert status")
		return
	}

	err := h.store.UpdateAlertStatus(r.Context(), id, body.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update alert status", "alert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": body.Status})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	alertStats, err := h.store.AlertStats(r.Context())
	if err != nil {
		h.logger.Error("failed to aggregate alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve stats")
		return
	}
	assetStats, err := h.store.AssetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to aggregate assets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alertStats,
		"assets": assetStats,
	})
}

// --- assets ---

func (h *Handler) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.logger.Error("failed to list assets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve assets")
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// handleGetAsset resolves by id first, then by IP, so both address styles
// work.
func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request, key string) {
	asset, err := h.store.GetAsset(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		asset, err = h.store.GetAssetByIP(r.Context(), key)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get asset", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve asset")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *Handler) handleDeleteAsset(w http.ResponseWriter, r *http.Request, ip string) {
	err := h.store.DeleteAsset(r.Context(), ip)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete asset", "ip", ip, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete asset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": ip})
}

// --- network changes ---

func (h *Handler) handleListChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := h.store.ListChanges(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.logger.Error("failed to list changes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve changes")
		return
	}
	if changes == nil {
		changes = []model.NetworkChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *Handler) handleAcknowledgeChange(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.AcknowledgeChange(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "change not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to acknowledge change", "change_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to acknowledge change")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

// --- scans ---

func (h *Handler) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.store.ListScans(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.logger.Error("failed to list scans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve scans")
		return
	}
	if scans == nil {
		scans = []model.ScanRun{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (h *Handler) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target   string `json:"target"`
		ScanType string `json:"scan_type"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	netcfg := h.netcfg.Get()
	if body.Target == "" {
		body.Target = netcfg.NetworkRange
	}
	if body.ScanType == "" {
		body.ScanType = netcfg.ScanType
	}

	run, err := h.runner.Start(r.Context(), body.Target, body.ScanType)
	if err != nil {
		h.logger.Error("failed to start scan", "target", body.Target, "error", err)
		writeError(w, http.StatusBadRequest, "failed to start scan")
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) handleGetScan(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.GetScan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get scan", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve scan")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- upload ---

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	report, err := h.ingest.Ingest(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, ingest.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, normalize.ErrNoRecords):
		writeError(w, http.StatusUnprocessableEntity, "file yielded no records")
		return
	case err != nil:
		h.logger.Error("failed to ingest upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to ingest upload")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- network config ---

func (h *Handler) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.netcfg.Get())
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	patch, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	updated, err := h.netcfg.Update(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- detection rules ---

func (h *Handler) handleListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.matcher.Rules())
}

func (h *Handler) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.matcher.Add(rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleListEngineRules(w http.ResponseWriter, _ *http.Request) {
	engineRules, err := h.engineFile.List()
	if err != nil {
		h.logger.Error("failed to list engine rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read engine rules")
		return
	}
	if engineRules == nil {
		engineRules = []rules.EngineRule{}
	}
	writeJSON(w, http.StatusOK, engineRules)
}

func (h *Handler) handleAddEngineRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rule string `json:"rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Rule) == "" {
		writeError(w, http.StatusBadRequest, "rule text is required")
		return
	}
	if err := h.engineFile.Append(body.Rule); err != nil {
		h.logger.Error("failed to append engine rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store engine rule")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"rule": body.Rule})
}

// --- notification channels ---

func (h *Handler) handleTestChannel(w http.ResponseWriter, r *http.Request, channel string) {
	if err := h.dispatcher.TestChannel(r.Context(), channel); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel": channel, "result": "sent"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
