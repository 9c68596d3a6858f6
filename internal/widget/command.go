package widget

import (
	"math"
	"strconv"
	"strings"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
)

// BuildPatch builds the patch command that writes value into the widget's
// field: {action: patch, path, payload: {field: {type, value}}}.
func BuildPatch(cfg models.WidgetConfig, value any) (models.Command, error) {
	if cfg.FieldName == "" {
		return models.Command{}, ErrNoFieldName
	}
	t := payload.Type(cfg.DataType)
	if t == "" {
		t = payload.TypeString
	}
	node := payload.Typed(t, coerce(value, t)).Node
	return models.Command{
		Action:  models.ActionPatch,
		Path:    cfg.Path,
		Payload: map[string]payload.Node{cfg.FieldName: *node},
	}, nil
}

// coerce converts values coming from UI controls to the declared type when
// that is lossless; anything else is sent as given.
func coerce(v any, t payload.Type) any {
	switch t {
	case payload.TypeInt:
		switch n := v.(type) {
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i
			}
		}
	case payload.TypeFloat:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
		}
	case payload.TypeBoolean:
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
	case payload.TypeString:
		switch n := v.(type) {
		case int64, int, float64, bool:
			return stringOf(n)
		}
	}
	return v
}

func stringOf(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	}
	return ""
}
