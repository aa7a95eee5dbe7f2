package materialize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapJiraStatus(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"To Do":          "todo",
		"Open":           "todo",
		"Backlog":        "todo",
		"In Progress":    "in_progress",
		"In Review":      "in_progress",
		"Code Review":    "in_progress",
		"Done":           "done",
		"Closed":         "done",
		"Resolved":       "done",
		"Blocked":        "blocked",
		"On Hold":        "blocked",
		"Some Weird One": "todo",
	}
	for status, want := range cases {
		require.Equal(t, want, MapJiraStatus(status), "status=%s", status)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()
	require.Equal(t, "b", firstNonEmpty("", "b", "c"))
	require.Equal(t, "", firstNonEmpty("", ""))
}

func TestStringField(t *testing.T) {
	t.Parallel()
	m := map[string]any{"title": "fix bug", "empty": ""}
	require.Equal(t, "fix bug", stringField(m, "title", "default"))
	require.Equal(t, "default", stringField(m, "empty", "default"))
	require.Equal(t, "default", stringField(m, "missing", "default"))
}

func TestStringSliceField(t *testing.T) {
	t.Parallel()
	m := map[string]any{"labels": []any{"bug", "urgent"}}
	require.Equal(t, []string{"bug", "urgent"}, stringSliceField(m, "labels"))
	require.Nil(t, stringSliceField(m, "missing"))
}

func TestPtrOrNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, ptrOrNil(""))
	require.NotNil(t, ptrOrNil("x"))
	require.Equal(t, "x", *ptrOrNil("x"))
}
