package main

import (
	"testing"

	"querybench/internal/benchmark"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetCmd_Single(t *testing.T) {
	ws := newWorkspace(t)

	out, err := executeCommand(rootCmd, "target",
		"--tool", "csv", "--function", "filtering_brand_counting", "--gc=true",
		"--dataset-dir", ws.dataset)
	require.NoError(t, err, out)

	_, elapsed, ok := benchmark.ParseOutput(out)
	require.True(t, ok, out)
	assert.GreaterOrEqual(t, elapsed, 0.0)
	assert.NotContains(t, out, "purchase_count", "query output must not reach the report")
	assert.NoFileExists(t, ws.logFile)
}

func TestTargetCmd_Isolated(t *testing.T) {
	ws := newWorkspace(t)

	out, err := executeCommand(rootCmd, "target",
		"--tool", "arrow", "--function", "grouping_conditional_aggregation",
		"--isolate", "--runs", "3", "--warmup", "1",
		"--dataset-dir", ws.dataset)
	require.NoError(t, err, out)

	records := benchmark.ParseRunLines(out)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.Run)
	}
}

func TestTargetCmd_MissingDataset(t *testing.T) {
	ws := newWorkspace(t)

	_, err := executeCommand(rootCmd, "target", "--tool", "parquet", "--function", "filtering_counting", "--dataset-dir", ws.dataset)
	assert.ErrorContains(t, err, "dataset for parquet")
}

func TestTargetCmd_UnknownTool(t *testing.T) {
	newWorkspace(t)
	_, err := executeCommand(rootCmd, "target", "--tool", "polars", "--function", "filtering_counting")
	assert.ErrorContains(t, err, `unknown tool "polars"`)
}
