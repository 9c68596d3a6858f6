package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadTreeEndpoints(t *testing.T) {
	s := newTestServer(t)
	doc := `{"motor": {"rpm": {"type": "int", "value": 1200}}, "tags": {"type": "list", "value": [1, "a"]}}`

	rec := s.do(t, http.MethodPost, "/api/payload/tree", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"nodes": [
		{"key": "motor", "children": [{"key": "rpm", "type": "int", "value": "1200", "children": null}]},
		{"key": "tags", "type": "list", "value": [1, "a"], "children": null}
	]}`, rec.Body.String())

	tree := rec.Body.String()
	rec = s.do(t, http.MethodPost, "/api/payload/document", tree)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, doc, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/payload/body", tree)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payload": `+doc+`}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/payload/body", `{"nodes": [{"key": "user_id"}]}`)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestPayloadEditEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/payload/edit", `{"nodes": [], "edit": {"op": "add_root"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out TreeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Nodes, 1)

	rec = s.do(t, http.MethodPost, "/api/payload/edit", `{"nodes": [], "edit": {"op": "set_key", "path": [3], "key": "x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/payload/edit", `{"nodes": [], "edit": {"op": "explode"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStructuredEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/payload/structured", `{"type": "list", "text": "[1, 2]", "last": [0]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid": true, "value": [1, 2], "text": "[1, 2]"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/payload/structured", `{"type": "dict", "text": "{\"a\": ", "last": {"a": 1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StructuredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, `{"a":1}`, resp.Text)
	assert.NotEmpty(t, resp.Error)

	rec = s.do(t, http.MethodPost, "/api/payload/structured", `{"type": "int", "text": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
