package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue_PreservesKeyOrder(t *testing.T) {
	v, err := ParseValue([]byte(`{"zeta":1,"alpha":"x","mid":[true,null]}`))
	require.NoError(t, err)

	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, v.Keys())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"x","mid":[true,null]}`, string(out))
}

func TestParseValue_Invalid(t *testing.T) {
	_, err := ParseValue([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestValueOf_RoundTripsThroughInterface(t *testing.T) {
	in := map[string]any{
		"status": "closed",
		"runway": []any{"09", "27"},
		"length": 3200.0,
		"lit":    false,
		"notes":  nil,
	}
	v := ValueOf(in)
	assert.Equal(t, []string{"length", "lit", "notes", "runway", "status"}, v.Keys())
	if diff := cmp.Diff(in, v.Interface()); diff != "" {
		t.Errorf("Interface() mismatch (-want +got):\n%s", diff)
	}
}

func TestValue_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  bool
	}{
		{"null", Null(), true},
		{"empty array", Array(), true},
		{"empty object", Object(), true},
		{"empty string", String(""), false},
		{"zero", Number(0), false},
		{"object", Object(Member{Key: "a", Value: String("1")}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.IsEmpty())
		})
	}
}

func TestValue_ConfidenceScore(t *testing.T) {
	one := ValueOf(map[string]any{"a": "1"})
	two := ValueOf(map[string]any{"a": "1", "b": "22"})

	assert.Equal(t, 11, one.ConfidenceScore())
	assert.Equal(t, 23, two.ConfidenceScore())
	assert.Equal(t, 0, ValueOf(map[string]any{"a": "", "b": nil}).ConfidenceScore())
	assert.Equal(t, 0, Array().ConfidenceScore())
}

func TestValue_Equal(t *testing.T) {
	a, err := ParseValue([]byte(`{"a":1,"b":[1,2]}`))
	require.NoError(t, err)
	b, err := ParseValue([]byte(`{"b":[1,2],"a":1}`))
	require.NoError(t, err)
	c, err := ParseValue([]byte(`{"b":[2,1],"a":1}`))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Null().Equal(Array()))
}

func TestObject_RepeatedKeyKeepsFirstPosition(t *testing.T) {
	v := Object(
		Member{Key: "a", Value: Number(1)},
		Member{Key: "b", Value: Number(2)},
		Member{Key: "a", Value: Number(3)},
	)
	assert.Equal(t, []string{"a", "b"}, v.Keys())
	got, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, got.AsNumber())
}

func TestValue_Text(t *testing.T) {
	assert.Equal(t, "", Null().Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "3200", Number(3200).Text())
	assert.Equal(t, "0.5", Number(0.5).Text())
	assert.Equal(t, "RWY", String("RWY").Text())
	assert.Equal(t, `["a"]`, Array(String("a")).Text())
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var holder struct {
		Data Value `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"k":"v"}}`), &holder))
	got, ok := holder.Data.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got.AsString())
}
