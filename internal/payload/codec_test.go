package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryOfClassification(t *testing.T) {
	doc := mustParse(t, `{
		"leaf": {"type": "int", "value": 5},
		"folder": {"x": 1},
		"half": {"type": "int"},
		"badType": {"type": 3, "value": 1},
		"arr": [1, "a"],
		"num": 1.25
	}`)

	assert.Equal(t, KindNode, doc["leaf"].Kind)
	assert.Equal(t, TypeInt, doc["leaf"].Node.Type)
	assert.Equal(t, int64(5), doc["leaf"].Node.Value.Scalar)
	assert.Equal(t, KindFolder, doc["folder"].Kind)
	assert.Equal(t, KindFolder, doc["half"].Kind, "type without value is a folder")
	assert.Equal(t, KindFolder, doc["badType"].Kind, "non-string type is a folder")
	assert.Equal(t, KindArray, doc["arr"].Kind)
	assert.Equal(t, 1.25, doc["num"].Scalar)
}

func TestNumericConformance(t *testing.T) {
	a := mustParse(t, `{"f": {"type": "float", "value": 2}, "i": {"type": "int", "value": 3.0}}`)
	assert.Equal(t, float64(2), a["f"].Node.Value.Scalar)
	assert.Equal(t, int64(3), a["i"].Node.Value.Scalar)

	b := Document{"f": Typed(TypeFloat, 2.0), "i": Typed(TypeInt, 3)}
	assert.True(t, Equal(a, b))
}

func TestParseJSONRejectsNonObject(t *testing.T) {
	_, err := ParseJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ParseJSON([]byte(`{`))
	assert.Error(t, err)

	doc, err := ParseJSON([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestJSONWireShape(t *testing.T) {
	doc := Document{
		"sensors": Folder(Document{"temp": Typed(TypeFloat, 21.5)}),
		"tags":    Typed(TypeList, []any{"a", "b"}),
	}
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sensors":{"temp":{"type":"float","value":21.5}},"tags":{"type":"list","value":["a","b"]}}`, string(out))

	back, err := ParseJSON(out)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back))
}

func TestMsgpackRoundTrip(t *testing.T) {
	doc := mustParse(t, `{
		"speed": {"type": "int", "value": 42},
		"temp": {"type": "float", "value": 21.5},
		"on": {"type": "boolean", "value": true},
		"logs": {"e1": {"time": 100, "msg": "A"}}
	}`)

	data, err := MarshalMsgpack(doc)
	require.NoError(t, err)

	back, err := ParseMsgpack(data)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back))
}

func TestCloneIsIndependent(t *testing.T) {
	doc := mustParse(t, `{"a": {"b": {"type": "int", "value": 1}}}`)
	cp := doc.Clone()
	cp["a"].Folder["b"] = Typed(TypeInt, 2)
	v, _ := resolveValue(doc, "a", "b")
	assert.Equal(t, int64(1), v)
}

func TestEntryFloat(t *testing.T) {
	tests := []struct {
		in   Entry
		want float64
		ok   bool
	}{
		{Scalar(3), 3, true},
		{Scalar("2.5"), 2.5, true},
		{Scalar(true), 1, true},
		{Scalar("abc"), 0, false},
		{Typed(TypeFloat, 1.5), 1.5, true},
		{Folder(nil), 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Float()
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}
