package relational

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Vector adapts a []float32 to the pgvector wire text format ("[1,2,3]")
// so it can be passed directly as a pgx query argument without pulling in
// an extra module for a single type translation (see DESIGN.md).
type Vector []float32

// TextValue implements pgtype.TextValuer for the pgvector extension type,
// which pgx otherwise has no built-in codec for.
func (v Vector) TextValue() (pgtype.Text, error) {
	buf := []byte{'['}
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'f', -1, 32)
	}
	buf = append(buf, ']')
	return pgtype.Text{String: string(buf), Valid: true}, nil
}

// ParseVector decodes a pgvector text representation back into a []float32,
// used when scanning embedding rows back out of the relational store.
func ParseVector(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
