package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCmd(t *testing.T) {
	ws := newWorkspace(t)

	out, err := executeCommand(rootCmd, ws.args("list")...)
	require.NoError(t, err)

	rows := fields(out)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"TOOL", "DATASET", "filtering_counting", "filtering_grouping_aggregation", "grouping_conditional_aggregation", "filtering_brand_counting"}, rows[0])
	assert.Equal(t, []string{"duckdb", "ok", "yes", "yes", "yes", "yes"}, rows[1])
	assert.Equal(t, []string{"parquet", "missing", "yes", "yes", "yes", "yes"}, rows[4])
}

func TestDatasetConvertCmd(t *testing.T) {
	ws := newWorkspace(t)

	out, err := executeCommand(rootCmd, ws.args("dataset", "convert")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "6 rows")
	assert.FileExists(t, filepath.Join(ws.dataset, "eCommerce.parquet"))

	out, err = executeCommand(rootCmd, ws.args("list")...)
	require.NoError(t, err)
	assert.Equal(t, []string{"parquet", "ok", "yes", "yes", "yes", "yes"}, fields(out)[4])
}

func TestDatasetConvertCmd_MissingCSV(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(ws.dataset, "eCommerce.csv")))

	_, err := executeCommand(rootCmd, ws.args("dataset", "convert")...)
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	ws := newWorkspace(t)
	cfg := filepath.Join(ws.root, "bench.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("mode: hot\nruns: 2\n"), 0644))

	out, err := executeCommand(rootCmd, ws.args("run", "--config", cfg, "--tool", "csv")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "csv/filtering_counting (hot): 2 runs")
	assert.FileExists(t, filepath.Join(ws.results, "csv_filtering_counting_hot.csv"))
}

func TestExecute_ErrorExits(t *testing.T) {
	newWorkspace(t)
	resetFlags(rootCmd)
	viper.Reset()
	cfgFile = ""

	var code int
	oldExit := exit
	exit = func(c int) { code = c }
	defer func() { exit = oldExit }()

	rootCmd.SetArgs([]string{"compare", "--format", "html"})
	Execute()
	assert.Equal(t, 1, code)
}
