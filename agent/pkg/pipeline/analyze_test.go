package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysisResponse(t *testing.T) {
	t.Run("full object", func(t *testing.T) {
		resp := "```json\n" + `{
			"summary": "Electronics leads revenue.",
			"key_metrics": [{"metric": "total revenue", "value": 12345.67, "unit": "USD"}],
			"visualizations": [{"type": "bar", "x_col": "category", "y_col": "revenue", "title": "Revenue by category"}],
			"insights": ["Electronics outsells all other categories combined."]
		}` + "\n```"

		a, err := parseAnalysisResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "Electronics leads revenue.", a.Summary)
		require.Len(t, a.KeyMetrics, 1)
		assert.Equal(t, "total revenue", a.KeyMetrics[0].Metric)
		assert.Equal(t, "USD", a.KeyMetrics[0].Unit)
		require.Len(t, a.Visualizations, 1)
		assert.Equal(t, "bar", a.Visualizations[0].Type)
		assert.Len(t, a.Insights, 1)
	})

	t.Run("bare json with surrounding prose", func(t *testing.T) {
		resp := `Sure, here is the analysis: {"summary": "Ten rows returned."} Hope that helps.`
		a, err := parseAnalysisResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "Ten rows returned.", a.Summary)
		assert.NotNil(t, a.KeyMetrics)
		assert.Empty(t, a.KeyMetrics)
	})

	t.Run("missing summary", func(t *testing.T) {
		_, err := parseAnalysisResponse(`{"key_metrics": []}`)
		require.Error(t, err)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := parseAnalysisResponse("The data looks fine to me.")
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseAnalysisResponse(`{"summary": "x", }`)
		require.Error(t, err)
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "json fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "plain fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "braces in prose",
			in:   `prefix {"a": {"b": 2}} suffix`,
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "no object",
			in:   "nothing here",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "42", formatValue(float64(42)))
	assert.Equal(t, "3.14", formatValue(3.14159))
	assert.Equal(t, "hello", formatValue([]byte("hello")))
	assert.Equal(t, "7", formatValue(int64(7)))
}

func TestFormatSampleRows_Caps(t *testing.T) {
	res := &QueryResult{
		Columns: []string{"n"},
		Count:   30,
	}
	for i := range 30 {
		res.Rows = append(res.Rows, []any{int64(i)})
	}

	out := formatSampleRows(res, 20)
	assert.Contains(t, out, "n\n")
	assert.Contains(t, out, "... and 10 more rows")
}
