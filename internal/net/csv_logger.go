package net

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var csvLoggerHeader = []string{
	"run_id", "epoch", "learning_rate", "loss", "samples", "skipped",
	"train_accuracy", "test_accuracy", "time_seconds",
}

// CSVLogger logs per-epoch training history to a CSV file. Accuracy columns
// are empty on epochs without an evaluation. Every row carries the run id so
// appended runs stay distinguishable.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool
	RunID    string
	// Logger receives open failures. Nil uses log.Default().
	Logger *log.Logger

	file   *os.File
	writer *csv.Writer
	start  time.Time
	// Err holds the first I/O failure.
	Err error
}

// NewCSVLogger creates a new CSVLogger with a fresh run id.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
		RunID:    uuid.NewString(),
	}
}

func (c *CSVLogger) OnTrainBegin(n *Network) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		c.Err = fmt.Errorf("failed to open history %s: %w", c.Filename, err)
		loggerOrDefault(c.Logger).Printf("CSVLogger: %v", c.Err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.write(csvLoggerHeader)
	}
}

func (c *CSVLogger) OnEpochEnd(epoch int, m EpochMetrics, n *Network) {
	if c.writer == nil {
		return
	}

	trainAcc, testAcc := "", ""
	if m.Evaluated {
		trainAcc = strconv.FormatFloat(m.TrainAccuracy, 'f', 6, 64)
		testAcc = strconv.FormatFloat(m.TestAccuracy, 'f', 6, 64)
	}
	c.write([]string{
		c.RunID,
		strconv.Itoa(epoch),
		strconv.FormatFloat(m.LearningRate, 'g', 6, 64),
		fmt.Sprintf("%.6f", m.Loss),
		strconv.Itoa(m.Samples),
		strconv.Itoa(m.Skipped),
		trainAcc,
		testAcc,
		fmt.Sprintf("%.2f", time.Since(c.start).Seconds()),
	})
}

func (c *CSVLogger) OnTrainEnd(n *Network) {
	if c.file != nil {
		c.writer.Flush()
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}

func (c *CSVLogger) write(record []string) {
	if err := c.writer.Write(record); err != nil && c.Err == nil {
		c.Err = fmt.Errorf("failed to write history record: %w", err)
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil && c.Err == nil {
		c.Err = fmt.Errorf("failed to flush history: %w", err)
	}
}
