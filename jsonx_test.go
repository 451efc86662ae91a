package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced", "```\n[1]\n```", `[1]`},
		{"whitespace", "  {\"a\":1}  \n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(SanitizeJSONResponse([]byte(tt.input))))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"raw object", `{"status":"closed"}`, `{"status":"closed"}`},
		{"fence with prose", "Here you go:\n```json\n{\"status\":\"closed\"}\n```\nDone.", `{"status":"closed"}`},
		{"embedded object", `The answer is {"rwy":"09/27","note":"a } in text"} as requested.`, `{"rwy":"09/27","note":"a } in text"}`},
		{"embedded array", `Result: [{"a":1},{"b":2}] end`, `[{"a":1},{"b":2}]`},
		{"skips broken span", `{oops} then {"a":1}`, `{"a":1}`},
		{"quoted", `"{\"a\":1}"`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("the runway is closed")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("I'm sorry, I can't find that."))
	assert.True(t, IsRefusal("Sorry, nothing here"))
	assert.True(t, IsRefusal("The notice does not specify a runway."))
	assert.True(t, IsRefusal("There is No relevant information."))
	assert.False(t, IsRefusal(`{"status":"closed"}`))
	assert.False(t, IsRefusal(""))
}

func TestParsePayload(t *testing.T) {
	t.Run("refusal is empty success", func(t *testing.T) {
		v, err := ParsePayload("I'm sorry, the text does not mention any runway.")
		require.NoError(t, err)
		assert.Equal(t, KindArray, v.Kind())
		assert.True(t, v.IsEmpty())
	})

	t.Run("single element array is unwrapped", func(t *testing.T) {
		v, err := ParsePayload(`[{"status":"closed"}]`)
		require.NoError(t, err)
		assert.Equal(t, KindObject, v.Kind())
	})

	t.Run("empty array stays", func(t *testing.T) {
		v, err := ParsePayload(`[]`)
		require.NoError(t, err)
		assert.Equal(t, KindArray, v.Kind())
		assert.Equal(t, 0, v.Len())
	})

	t.Run("json mentioning sorry is not a refusal", func(t *testing.T) {
		v, err := ParsePayload(`{"remark":"Sorry for the delay"}`)
		require.NoError(t, err)
		assert.Equal(t, KindObject, v.Kind())
	})

	t.Run("unparseable keeps raw", func(t *testing.T) {
		_, err := ParsePayload("runway closed, no json")
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "runway closed, no json", pe.Raw)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParsePayload("   ")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}
