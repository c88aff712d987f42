package main

import (
	"bytes"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
)

func TestRunPrintsPredictionAndProbabilities(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.bin")
	n, err := net.NewNetwork(net.DefaultArchitecture(), features.FeatureDim(4), 3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, net.Save(model, n))

	labels := filepath.Join(dir, "site_labels.csv")
	var lb bytes.Buffer
	require.NoError(t, features.WriteLabelMap(&lb, features.LabelMap{0: "baidu", 1: "bilibili", 2: "bing"}))
	require.NoError(t, os.WriteFile(labels, lb.Bytes(), 0o644))

	session := filepath.Join(dir, "session.txt")
	require.NoError(t, os.WriteFile(session, []byte("2,100_0;1500_1;1500_1\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"--model", model, "--labels", labels, session}, &out, log.New(io.Discard, "", 0)))

	x, err := features.LoadFeatureFile(session, 4)
	require.NoError(t, err)
	want, _ := n.Predict(x)
	names := []string{"baidu", "bilibili", "bing"}
	assert.Contains(t, out.String(), "predicted: "+strconv.Itoa(want)+" ("+names[want]+")")
	for _, name := range names {
		assert.Contains(t, out.String(), name)
	}
}

func TestRunWithoutLabelMapPrintsNumbers(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.bin")
	arch := net.DefaultArchitecture()
	arch.Kind = net.KindMLP
	n, err := net.NewNetwork(arch, features.FeatureDim(2), 2, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	require.NoError(t, net.Save(model, n))
	session := filepath.Join(dir, "session.txt")
	require.NoError(t, os.WriteFile(session, []byte("100_0;1500_1\n"), 0o644))

	var out, logs bytes.Buffer
	err = run([]string{"--model", model, "--labels", filepath.Join(dir, "none.csv"), session}, &out, log.New(&logs, "", 0))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "printing numeric labels")
	assert.Regexp(t, `predicted: (\d) \(\d\)`, out.String())
}

func TestRunArguments(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	assert.Error(t, run(nil, io.Discard, quiet))
	assert.Error(t, run([]string{"--model", filepath.Join(t.TempDir(), "none.bin"), "x.txt"}, io.Discard, quiet))
}
