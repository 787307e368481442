package jsonval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyRoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"name":    "echoguard",
		"enabled": true,
		"retries": float64(3),
		"tags":    []interface{}{"a", "b"},
		"nested": map[string]interface{}{
			"inner": "value",
		},
	}

	v := FromAny(in)
	assert.Equal(t, KindObject, v.Kind)
	assert.Equal(t, "echoguard", v.Field("name").AsString(""))
	assert.True(t, v.Field("enabled").AsBool(false))
	assert.Equal(t, float64(3), v.Field("retries").Number)
	assert.Equal(t, "value", v.Field("nested").Field("inner").AsString(""))

	tags := v.Field("tags")
	require.Equal(t, KindArray, tags.Kind)
	require.Len(t, tags.Arr, 2)
	assert.Equal(t, "a", tags.Arr[0].AsString(""))
}

func TestFromAnyNormalizesYAMLv2StyleMaps(t *testing.T) {
	in := map[interface{}]interface{}{
		"key": "value",
	}
	v := FromAny(in)
	require.Equal(t, KindObject, v.Kind)
	assert.Equal(t, "value", v.Field("key").AsString(""))
}

func TestParseJSON(t *testing.T) {
	v, err := ParseJSON(`{"a": 1, "b": [true, null, "x"]}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v.Field("a").Number)

	b := v.Field("b")
	require.Equal(t, KindArray, b.Kind)
	require.Len(t, b.Arr, 3)
	assert.True(t, b.Arr[0].AsBool(false))
	assert.True(t, b.Arr[1].IsNull())
	assert.Equal(t, "x", b.Arr[2].AsString(""))
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON(`not json`)
	assert.Error(t, err)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	orig := Object(map[string]Value{
		"list": Array([]Value{String("x"), Number(2), Bool(false), Null()}),
	})

	data, err := orig.MarshalJSON()
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, Equal(orig, decoded))
}

func TestFieldOnNonObjectReturnsNull(t *testing.T) {
	assert.True(t, String("x").Field("anything").IsNull())
	assert.True(t, Null().Field("anything").IsNull())
}

func TestAsDefaults(t *testing.T) {
	assert.Equal(t, "fallback", Number(1).AsString("fallback"))
	assert.Equal(t, true, String("x").AsBool(true))
}

func TestEqual(t *testing.T) {
	a := Object(map[string]Value{"x": Number(1), "y": Array([]Value{String("a")})})
	b := Object(map[string]Value{"y": Array([]Value{String("a")}), "x": Number(1)})
	assert.True(t, Equal(a, b))

	c := Object(map[string]Value{"x": Number(2)})
	assert.False(t, Equal(a, c))
}

func TestFromAnyUnsupportedTypeIsNull(t *testing.T) {
	type weird struct{}
	assert.True(t, FromAny(weird{}).IsNull())
}
