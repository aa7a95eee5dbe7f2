package tools

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeForJSON_NaNAndInf(t *testing.T) {
	t.Parallel()
	require.Nil(t, SanitizeForJSON(math.NaN()))
	require.Nil(t, SanitizeForJSON(math.Inf(1)))
	require.Nil(t, SanitizeForJSON(math.Inf(-1)))
	require.Equal(t, 1.5, SanitizeForJSON(1.5))
}

func TestSanitizeForJSON_Time(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-01-15T10:00:00Z", SanitizeForJSON(ts))
}

func TestSanitizeForJSON_Struct(t *testing.T) {
	t.Parallel()
	type inner struct {
		Similarity float64
	}
	got := SanitizeForJSON(inner{Similarity: math.NaN()})
	m, ok := got.(map[string]any)
	require.True(t, ok)
	require.Nil(t, m["Similarity"])
}

func TestSanitizeForJSON_NilPointer(t *testing.T) {
	t.Parallel()
	var p *int
	require.Nil(t, SanitizeForJSON(p))
}

func TestSanitizeForJSON_Slice(t *testing.T) {
	t.Parallel()
	got := SanitizeForJSON([]float64{1, math.NaN(), 3})
	s, ok := got.([]any)
	require.True(t, ok)
	require.Equal(t, []any{1.0, nil, 3.0}, s)
}
