// handlers_payload.go - Payload editor endpoints
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/builder"
	"github.com/myaccess/kiosk-console/internal/payload"
)

// TreeRequest carries the rows of the payload editor.
type TreeRequest struct {
	Nodes []builder.TreeNode `json:"nodes"`
}

// EditRequest applies one editor action to a tree.
type EditRequest struct {
	Nodes []builder.TreeNode `json:"nodes"`
	Edit  builder.Edit       `json:"edit"`
}

// StructuredRequest is the blur of a list or dict text box.
type StructuredRequest struct {
	Type payload.Type    `json:"type"`
	Text string          `json:"text"`
	Last json.RawMessage `json:"last,omitempty"`
}

// StructuredResponse is the value accepted on blur, or the reverted text.
type StructuredResponse struct {
	Valid bool   `json:"valid"`
	Value any    `json:"value"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// HandleNodeTypes lists the value types the editor offers for a row.
func (h *Handler) HandleNodeTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, payload.Types)
}

// decodeBody reads a JSON body keeping integers integral.
func decodeBody(c echo.Context, v interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return NewBadRequestError("invalid request body", err)
	}
	return nil
}

// HandleDocumentToTree turns a payload document into editor rows.
func (h *Handler) HandleDocumentToTree(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read request body", err)
	}
	doc, err := payload.ParseJSON(data)
	if err != nil {
		return NewBadRequestError("invalid document", err)
	}
	return c.JSON(http.StatusOK, TreeRequest{Nodes: builder.DocumentToTree(doc)})
}

// HandleTreeToDocument turns editor rows into a payload document.
func (h *Handler) HandleTreeToDocument(c echo.Context) error {
	var req TreeRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, builder.TreeToDocument(req.Nodes))
}

// HandleTreeToBody builds the device request body for editor rows.
func (h *Handler) HandleTreeToBody(c echo.Context) error {
	var req TreeRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, builder.Body(req.Nodes))
}

// HandleEditTree applies one editor action and returns the new rows.
func (h *Handler) HandleEditTree(c echo.Context) error {
	var req EditRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	nodes, err := builder.Apply(req.Nodes, req.Edit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TreeRequest{Nodes: nodes})
}

// HandleStructured validates the text of a list or dict leaf.
func (h *Handler) HandleStructured(c echo.Context) error {
	var req StructuredRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Type != payload.TypeList && req.Type != payload.TypeDict {
		return NewBadRequestError("type must be list or dict", nil)
	}

	var last any
	if len(req.Last) > 0 {
		v, err := builder.ParseStructured(req.Type, string(req.Last))
		if err != nil {
			return NewBadRequestError("invalid last value", err)
		}
		last = v
	}

	in := builder.NewStructuredInput(req.Type, last)
	in.SetText(req.Text)
	v, err := in.Blur()
	resp := StructuredResponse{Valid: err == nil, Value: v, Text: in.Text()}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
