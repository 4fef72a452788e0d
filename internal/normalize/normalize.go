// Package normalize parses heterogeneous raw log inputs (syslog-style text,
// JSON/NDJSON documents, delimited tabular files) into canonical events.
//
// Failure policy: a record that cannot be parsed is dropped and counted,
// never raised. An input yielding zero records is the only hard failure.
package normalize

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chinda73971177/soc/internal/classify"
	"github.com/chinda73971177/soc/internal/model"
)

// ErrNoRecords is returned when an entire input produces no parseable
// records.
var ErrNoRecords = errors.New("no parseable records in input")

var syslogRe = regexp.MustCompile(
	`^(?P<month>\w{3})\s+(?P<day>\d+)\s+(?P<time>\d{2}:\d{2}:\d{2})\s+` +
		`(?P<host>\S+)\s+(?P<program>[^:\[]+)(?:\[\d+\])?:\s*(?P<message>.+)`)

// Candidate source keys per canonical field, first present non-empty wins.
var (
	timestampKeys = []string{"timestamp", "time", "@timestamp", "date"}
	messageKeys   = []string{"message", "msg", "description"}
	hostKeys      = []string{"host", "hostname", "host_name"}
	programKeys   = []string{"program", "process", "app"}
	logTypeKeys   = []string{"log_type", "type"}
	severityKeys  = []string{"severity", "level"}
	srcIPKeys     = []string{"src_ip", "source_ip", "src"}
	dstIPKeys     = []string{"dst_ip", "dest_ip", "dst"}
	srcPortKeys   = []string{"src_port", "sport"}
	dstPortKeys   = []string{"dst_port", "dport"}
	protocolKeys  = []string{"protocol", "proto"}
	serviceKeys   = []string{"service", "app_proto"}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalizer turns raw file content into canonical events.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a normalizer.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses content according to the file extension of source:
// .json as JSON/NDJSON, .csv as delimited text, everything else as
// line-oriented text. It returns ErrNoRecords when nothing was parseable.
func (n *Normalizer) Normalize(content, source string) ([]model.Event, error) {
	var events []model.Event
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json":
		events = n.ParseJSON(content, source)
	case ".csv":
		events = n.ParseCSV(content, source)
	default:
		events = n.ParseText(content, source)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, source)
	}
	return events, nil
}

// ParseText parses line-oriented text. Lines matching the syslog pattern
// populate host and program; any other non-empty line becomes the message
// verbatim. Severity is always derived from the message text.
func (n *Normalizer) ParseText(content, source string) []model.Event {
	var events []model.Event
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		events = append(events, n.parseSyslogLine(line, source))
	}
	return events
}

func (n *Normalizer) parseSyslogLine(line, source string) model.Event {
	ev := model.Event{
		Timestamp: time.Now().UTC(),
		LogSource: source,
		LogType:   "system",
		Raw:       mustJSON(map[string]string{"original": line}),
	}
	if m := syslogRe.FindStringSubmatch(line); m != nil {
		ev.HostName = m[syslogRe.SubexpIndex("host")]
		ev.Program = strings.TrimSpace(m[syslogRe.SubexpIndex("program")])
		ev.Message = strings.TrimSpace(m[syslogRe.SubexpIndex("message")])
	} else {
		ev.Message = line
	}
	ev.Severity = classify.SeverityFromText(ev.Message)
	return ev
}

// ParseJSON parses content as one JSON value. An array yields one record per
// element, any other value is a single record. When the whole-document parse
// fails it falls back to NDJSON, silently skipping unparseable lines.
func (n *Normalizer) ParseJSON(content, source string) []model.Event {
	var items []map[string]any

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err == nil {
		switch v := doc.(type) {
		case []any:
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					items = append(items, obj)
				}
			}
		case map[string]any:
			items = append(items, v)
		}
	} else {
		dropped := 0
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(line), &obj); err != nil {
				dropped++
				continue
			}
			items = append(items, obj)
		}
		if dropped > 0 {
			n.logger.Debug("skipped unparseable ndjson lines", "source", source, "dropped", dropped)
		}
	}

	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		events = append(events, n.recordToEvent(item, source))
	}
	return events
}

// ParseCSV parses delimited text with a header row, matching headers
// case-insensitively against the same alias table as JSON records. Port
// values that fail to parse become absent, not errors.
func (n *Normalizer) ParseCSV(content, source string) []model.Event {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil || len(rows) < 2 {
		return nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var events []model.Event
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, cell := range row {
			if i < len(header) && header[i] != "" {
				record[header[i]] = cell
			}
		}
		if len(record) == 0 {
			continue
		}
		events = append(events, n.recordToEvent(record, source))
	}
	return events
}

// recordToEvent maps one key/value record onto the canonical event shape.
func (n *Normalizer) recordToEvent(record map[string]any, source string) model.Event {
	ev := model.Event{
		Timestamp: pickTime(record, timestampKeys),
		Message:   pickString(record, messageKeys),
		HostName:  pickString(record, hostKeys),
		Program:   pickString(record, programKeys),
		LogSource: source,
		LogType:   pickString(record, logTypeKeys),
		SrcIP:     pickString(record, srcIPKeys),
		DstIP:     pickString(record, dstIPKeys),
		SrcPort:   pickPort(record, srcPortKeys),
		DstPort:   pickPort(record, dstPortKeys),
		Protocol:  pickString(record, protocolKeys),
		Service:   pickString(record, serviceKeys),
		Raw:       mustJSON(record),
	}
	if ev.LogType == "" {
		ev.LogType = "system"
	}
	if ev.Message == "" {
		ev.Message = string(ev.Raw)
	}
	if sev := model.Severity(strings.ToLower(pickString(record, severityKeys))); sev.Valid() {
		ev.Severity = sev
	} else {
		ev.Severity = classify.SeverityFromText(string(ev.Raw))
	}
	return ev
}

func pickString(record map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := record[k]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func pickPort(record map[string]any, keys []string) int {
	for _, k := range keys {
		v, ok := record[k]
		if !ok {
			continue
		}
		var port int
		switch val := v.(type) {
		case float64:
			port = int(val)
		case string:
			p, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				continue
			}
			port = p
		default:
			continue
		}
		if port > 0 && port <= 65535 {
			return port
		}
	}
	return 0
}

func pickTime(record map[string]any, keys []string) time.Time {
	for _, k := range keys {
		raw := stringify(record[k])
		if raw == "" {
			continue
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Now().UTC()
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
