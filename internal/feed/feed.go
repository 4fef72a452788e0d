// Package feed reads IDS engine output in EVE NDJSON form and converts
// alert records into pipeline alerts.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chinda73971177/soc/internal/classify"
	"github.com/chinda73971177/soc/internal/model"
)

// eveSchema validates one EVE line before it is mapped. Lines that do not
// carry a well-formed alert object are skipped.
const eveSchema = `{
	"type": "object",
	"required": ["event_type"],
	"properties": {
		"event_type": {"type": "string"},
		"timestamp": {"type": "string"},
		"src_ip": {"type": "string"},
		"dest_ip": {"type": "string"},
		"src_port": {"type": "integer"},
		"dest_port": {"type": "integer"},
		"proto": {"type": "string"},
		"alert": {
			"type": "object",
			"required": ["signature"],
			"properties": {
				"signature": {"type": "string"},
				"signature_id": {"type": "integer"},
				"category": {"type": "string"},
				"severity": {"type": "integer"}
			}
		}
	}
}`

// eveTimeLayout is the timestamp format the engine writes.
const eveTimeLayout = "2006-01-02T15:04:05.999999-0700"

// DefaultLimit bounds one poll when the caller supplies none.
const DefaultLimit = 100

// DefaultSeenCap bounds the delivered-record set.
const DefaultSeenCap = 8192

type eveAlert struct {
	Signature   string `json:"signature"`
	SignatureID int    `json:"signature_id"`
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
}

type eveRecord struct {
	Timestamp string    `json:"timestamp"`
	EventType string    `json:"event_type"`
	SrcIP     string    `json:"src_ip"`
	DestIP    string    `json:"dest_ip"`
	SrcPort   int       `json:"src_port"`
	DestPort  int       `json:"dest_port"`
	Proto     string    `json:"proto"`
	Alert     *eveAlert `json:"alert"`
}

// Reader tails the engine's EVE file. Every record is delivered at most
// once: the file is re-read whole on each poll, and an LRU of record
// identities filters out everything already handed to the pipeline. When
// the file is absent or unreadable and demo mode is on, Poll serves a
// synthetic batch instead so the rest of the pipeline stays exercisable
// without a running engine.
type Reader struct {
	path   string
	demo   bool
	schema *jsonschema.Schema
	seen   *lru.Cache[string, struct{}]
	logger *slog.Logger
}

// NewReader creates a reader over the EVE file at path.
func NewReader(path string, demo bool, logger *slog.Logger) (*Reader, error) {
	schema, err := jsonschema.CompileString("eve.schema.json", eveSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile eve schema: %w", err)
	}
	seen, err := lru.New[string, struct{}](DefaultSeenCap)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivered set: %w", err)
	}
	return &Reader{path: path, demo: demo, schema: schema, seen: seen, logger: logger}, nil
}

// Poll reads up to limit not-yet-delivered alert records no older than
// maxAge. Malformed lines and non-alert event types are skipped. With demo
// mode on, an empty result is replaced by a synthetic batch, itself served
// once.
func (r *Reader) Poll(limit int, maxAge time.Duration) ([]model.Alert, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().UTC().Add(-maxAge)
	}

	alerts, present, err := r.readFile(limit, cutoff)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		r.logger.Debug("eve file not present", "path", r.path)
	case r.demo:
		r.logger.Warn("failed to read eve file, using demo batch", "path", r.path, "error", err)
	default:
		return nil, err
	}
	// The demo batch only stands in for an engine that produced nothing; an
	// already-delivered file is not an absent engine.
	if len(alerts) == 0 && present == 0 && r.demo {
		return r.demoBatch(limit), nil
	}
	return alerts, nil
}

// markSeen records key in the delivered set and reports whether it was
// already there.
func (r *Reader) markSeen(key string) bool {
	if _, dup := r.seen.Get(key); dup {
		return true
	}
	r.seen.Add(key, struct{}{})
	return false
}

// readFile returns the not-yet-delivered alerts plus how many alert records
// the file held at all, delivered ones included.
func (r *Reader) readFile(limit int, cutoff time.Time) ([]model.Alert, int, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	present := 0
	var alerts []model.Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && len(alerts) < limit {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var generic any
		if err := json.Unmarshal(line, &generic); err != nil {
			r.logger.Warn("skipping malformed eve line", "error", err)
			continue
		}
		if err := r.schema.Validate(generic); err != nil {
			r.logger.Warn("skipping invalid eve record", "error", err)
			continue
		}

		var rec eveRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.EventType != "alert" || rec.Alert == nil {
			continue
		}
		present++

		ts := parseEveTime(rec.Timestamp)
		if !cutoff.IsZero() && ts.Before(cutoff) {
			continue
		}
		if r.markSeen(recordKey(rec)) {
			continue
		}
		alerts = append(alerts, mapRecord(rec, ts))
	}
	if err := scanner.Err(); err != nil {
		return nil, present, fmt.Errorf("failed to read eve file: %w", err)
	}
	return alerts, present, nil
}

// recordKey identifies one engine record across polls: the same line read
// again must not produce a second alert.
func recordKey(rec eveRecord) string {
	return fmt.Sprintf("%s|%d|%s|%s|%d|%s|%d",
		rec.Timestamp, rec.Alert.SignatureID, rec.Alert.Signature,
		rec.SrcIP, rec.SrcPort, rec.DestIP, rec.DestPort)
}

func mapRecord(rec eveRecord, ts time.Time) model.Alert {
	ruleID := ""
	if rec.Alert.SignatureID != 0 {
		ruleID = strconv.Itoa(rec.Alert.SignatureID)
	}
	return model.Alert{
		ID:          uuid.NewString(),
		AlertType:   string(classify.AlertType(rec.Alert.Signature)),
		Severity:    classify.SeverityFromCode(rec.Alert.Severity),
		Title:       rec.Alert.Signature,
		Description: fmt.Sprintf("%s (%s)", rec.Alert.Signature, rec.Alert.Category),
		SrcIP:       rec.SrcIP,
		DstIP:       rec.DestIP,
		SrcPort:     rec.SrcPort,
		DstPort:     rec.DestPort,
		Protocol:    rec.Proto,
		RuleID:      ruleID,
		Status:      model.StatusOpen,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func parseEveTime(s string) time.Time {
	if t, err := time.Parse(eveTimeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// demoSignatures drive the synthetic batch. Severity codes follow the
// engine's 1..4 scale.
var demoSignatures = []struct {
	sid       int
	signature string
	category  string
	severity  int
	dstPort   int
	proto     string
}{
	{2009582, "ET SCAN Nmap TCP port scan", "Attempted Information Leak", 2, 443, "TCP"},
	{2001219, "ET POLICY SSH brute force login attempt", "Attempted Administrator Privilege Gain", 1, 22, "TCP"},
	{2018959, "ET DOS SYN flood inbound", "Attempted Denial of Service", 2, 80, "TCP"},
	{2006446, "ET WEB_SERVER SQL injection in URI", "Web Application Attack", 1, 80, "TCP"},
	{2014819, "ET MALWARE trojan beacon outbound", "A Network Trojan was Detected", 1, 8080, "TCP"},
	{2100384, "GPL ICMP unusual echo flood", "Misc activity", 3, 0, "ICMP"},
	{2210045, "ET INFO session anomaly observed", "Misc activity", 4, 3306, "TCP"},
}

// demoBatch builds a synthetic batch of 20 recent alerts. Each batch slot is
// served once per process, so repeat polls do not duplicate the batch.
func (r *Reader) demoBatch(limit int) []model.Alert {
	const batch = 20
	n := batch
	if limit < n {
		n = limit
	}
	now := time.Now().UTC()
	alerts := make([]model.Alert, 0, n)
	for i := 0; i < n; i++ {
		sig := demoSignatures[i%len(demoSignatures)]
		if r.markSeen(fmt.Sprintf("demo|%d|%d", i, sig.sid)) {
			continue
		}
		ts := now.Add(-time.Duration(i) * time.Minute)
		alerts = append(alerts, model.Alert{
			ID:          uuid.NewString(),
			AlertType:   string(classify.AlertType(sig.signature)),
			Severity:    classify.SeverityFromCode(sig.severity),
			Title:       sig.signature,
			Description: fmt.Sprintf("%s (%s)", sig.signature, sig.category),
			SrcIP:       fmt.Sprintf("10.20.0.%d", 10+i),
			DstIP:       "10.20.0.2",
			SrcPort:     40000 + i,
			DstPort:     sig.dstPort,
			Protocol:    sig.proto,
			RuleID:      strconv.Itoa(sig.sid),
			Status:      model.StatusOpen,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
	}
	return alerts
}
