package projection

import (
	"sort"

	"github.com/myaccess/kiosk-console/internal/payload"
)

// DefaultMessageKey is read when a log viewer has no specific field.
const DefaultMessageKey = "msg"

// LogLine is one rendered log record.
type LogLine struct {
	Time    int64  `json:"time" msgpack:"time"`
	Message string `json:"message" msgpack:"message"`
}

// ProjectLogs flattens a container of records into log lines sorted by time
// ascending. The message comes from field, or DefaultMessageKey when field
// is empty or the wildcard; a record without it is rendered as JSON.
func ProjectLogs(raw payload.Entry, field string) []LogLine {
	key := field
	if key == "" || key == payload.Wildcard {
		key = DefaultMessageKey
	}

	raw = normalize(raw)
	if raw.Kind != payload.KindFolder && raw.Kind != payload.KindArray {
		return []LogLine{}
	}

	recs := records(raw)
	lines := make([]LogLine, 0, len(recs))
	for _, rec := range recs {
		msg, ok := lookup(rec, key)
		var text string
		if ok {
			text = stringify(msg.Interface())
		} else {
			text = stringify(rec.Interface())
		}
		lines = append(lines, LogLine{Time: recordTime(rec), Message: text})
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	return lines
}

// NewestFirst returns a copy of lines ordered by time descending, the order a
// log viewer displays.
func NewestFirst(lines []LogLine) []LogLine {
	out := make([]LogLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	return out
}
