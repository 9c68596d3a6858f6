// Package projection flattens history-like sub-documents into chart series
// and log lines.
package projection

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/myaccess/kiosk-console/internal/payload"
)

// MaxSeriesPoints caps every chart series to the most recent records.
const MaxSeriesPoints = 50

// TimeKey names the timestamp field inside a record.
const TimeKey = "time"

// Point is one chart sample.
type Point struct {
	Value float64 `json:"value" msgpack:"value"`
	Time  int64   `json:"time" msgpack:"time"`
}

// ProjectSeries turns a resolved sub-document into a chart series sorted by
// time ascending and capped at MaxSeriesPoints (the newest ones).
//
// A bare list is read element by element with the element index as the time
// axis; elements that are records contribute their own time and field
// instead. A mapping is read value by value: one typed-node layer is
// unwrapped, lists are flattened, anything else is a single record. Missing
// or non-numeric fields degrade to 0.
func ProjectSeries(raw payload.Entry, field string) []Point {
	raw = normalize(raw)

	var points []Point
	switch raw.Kind {
	case payload.KindArray:
		points = make([]Point, 0, len(raw.Items))
		for i, item := range raw.Items {
			if rec, ok := asRecord(item); ok {
				points = append(points, Point{Value: numberField(rec, field), Time: recordTime(rec)})
				continue
			}
			v, _ := item.Float()
			points = append(points, Point{Value: v, Time: int64(i)})
		}
	case payload.KindFolder:
		for _, rec := range records(raw) {
			points = append(points, Point{Value: numberField(rec, field), Time: recordTime(rec)})
		}
	default:
		return []Point{}
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Time < points[j].Time })
	if len(points) > MaxSeriesPoints {
		points = points[len(points)-MaxSeriesPoints:]
	}
	if points == nil {
		points = []Point{}
	}
	return points
}

// normalize treats a typed list or dict node handed over by a wildcard
// resolve as the container it wraps.
func normalize(e payload.Entry) payload.Entry {
	if e.Kind == payload.KindNode && e.Node != nil {
		switch e.Node.Value.Kind {
		case payload.KindArray, payload.KindFolder:
			return e.Node.Value
		}
	}
	return e
}

// records flattens the values of a container into records, in key order for
// folders and index order for lists.
func records(container payload.Entry) []payload.Entry {
	var values []payload.Entry
	switch container.Kind {
	case payload.KindFolder:
		keys := make([]string, 0, len(container.Folder))
		for k := range container.Folder {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values = append(values, container.Folder[k])
		}
	case payload.KindArray:
		values = container.Items
	}

	out := make([]payload.Entry, 0, len(values))
	for _, v := range values {
		entry := v.Unwrap()
		if entry.Kind == payload.KindArray {
			out = append(out, entry.Items...)
			continue
		}
		out = append(out, entry)
	}
	return out
}

// asRecord reports whether e is a record, unwrapping one typed-node layer.
func asRecord(e payload.Entry) (payload.Entry, bool) {
	e = e.Unwrap()
	return e, e.Kind == payload.KindFolder
}

func lookup(rec payload.Entry, key string) (payload.Entry, bool) {
	rec = rec.Unwrap()
	v, ok := rec.Get(key)
	if !ok {
		return payload.Entry{}, false
	}
	return v.Unwrap(), true
}

func recordTime(rec payload.Entry) int64 {
	v, ok := lookup(rec, TimeKey)
	if !ok || v.Kind != payload.KindScalar {
		return 0
	}
	return toTime(v.Scalar)
}

func toTime(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int64(t)
	case bool:
		if t {
			return 1
		}
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
	}
	return 0
}

func numberField(rec payload.Entry, field string) float64 {
	v, ok := lookup(rec, field)
	if !ok {
		return 0
	}
	f, _ := v.Float()
	return f
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
