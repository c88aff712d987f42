package main

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
)

func writeFeatures(t *testing.T, path string) {
	t.Helper()
	var rows []features.Row
	for i := 0; i < 20; i++ {
		rows = append(rows,
			features.Row{Label: 0, Records: []features.Record{{Size: 60 + i%5, Direction: 0}, {Size: 70, Direction: 0}, {Size: 66, Direction: 0}}},
			features.Row{Label: 1, Records: []features.Record{{Size: 1400 - i, Direction: 1}, {Size: 1380, Direction: 1}, {Size: 1300, Direction: 1}}},
		)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, features.WriteRows(f, rows))
	require.NoError(t, f.Close())
}

func TestRunTrainsAndContinues(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "tls_features.csv")
	writeFeatures(t, data)
	cfgPath := filepath.Join(dir, "train.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
seed: 4
model:
  kind: mlp
  hidden: 8
trainer:
  epochs: 4
  eval_every: 2
  target_train_accuracy: 0
  target_test_accuracy: 0
`), 0o644))
	model := filepath.Join(dir, "model.bin")
	history := filepath.Join(dir, "history.csv")
	quiet := log.New(io.Discard, "", 0)

	args := []string{"--config", cfgPath, "--data", data, "--model", model, "--history", history}
	var out bytes.Buffer
	require.NoError(t, run(args, &out, quiet))
	assert.Contains(t, out.String(), "stopped after 4 epochs (budget)")
	assert.FileExists(t, model)

	var logs bytes.Buffer
	out.Reset()
	require.NoError(t, run(append(args, "--continue"), &out, log.New(&logs, "", 0)))
	assert.Contains(t, logs.String(), "continuing from")
	assert.Contains(t, logs.String(), "resumed network scores")

	f, err := os.Open(history)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// One header, four epochs per run.
	assert.Len(t, rows, 9)
}

func TestRunContinueFallsBackToFreshNetwork(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "tls_features.csv")
	writeFeatures(t, data)

	var logs bytes.Buffer
	args := []string{"--data", data, "--model", filepath.Join(dir, "absent.bin"), "--continue"}
	cfgPath := filepath.Join(dir, "train.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("trainer:\n  epochs: 1\n"), 0o644))
	args = append(args, "--config", cfgPath)

	require.NoError(t, run(args, io.Discard, log.New(&logs, "", 0)))
	assert.Contains(t, logs.String(), "starting from a fresh network")
}

func TestRunFailsOnMissingData(t *testing.T) {
	err := run([]string{"--data", filepath.Join(t.TempDir(), "none.csv")}, io.Discard, log.New(io.Discard, "", 0))
	assert.Error(t, err)
}
