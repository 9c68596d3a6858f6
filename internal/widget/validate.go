package widget

import "github.com/myaccess/kiosk-console/internal/models"

// Validate checks a layout before it is saved. Every widget except the log
// viewer needs a field name, and ids must be unique. The whole save is
// rejected on any failure.
func Validate(configs []models.WidgetConfig) error {
	var verr ValidationError
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if c.FieldName == "" && c.Type != models.WidgetLogViewer {
			verr.MissingField = append(verr.MissingField, c.ID)
		}
		if seen[c.ID] {
			verr.DuplicateID = append(verr.DuplicateID, c.ID)
		}
		seen[c.ID] = true
	}
	if len(verr.MissingField) > 0 || len(verr.DuplicateID) > 0 {
		return &verr
	}
	return nil
}
