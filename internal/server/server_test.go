package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"unitmap/internal/command"
	"unitmap/internal/store"
)

func TestNewRegistersWithoutError(t *testing.T) {
	d := command.NewDispatcher(command.Core{Store: store.NewMemory()})
	s := New(d, "test", nil)
	require.NotNil(t, s.mcpServer)
}

func TestBuildSchemaMapCoversEveryTool(t *testing.T) {
	m := buildSchemaMap()
	for _, tool := range []string{
		"get_unit", "get_cluster", "get_dependencies", "find_units",
		"preview_execution", "ingest", "partition_clusters",
		"start_update", "stop_update",
	} {
		require.Contains(t, m, tool)
		require.NotEmpty(t, m[tool])
	}
}

func TestResultHelpers(t *testing.T) {
	res := textResult("hello")
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	errRes := errorResult("bad")
	require.True(t, errRes.IsError)
}
