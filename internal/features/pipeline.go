// Package features turns per-session packet records into fixed-size training vectors.
//
// The pipeline reads the feature CSV (label,size_dir;size_dir;...), encodes
// every session as log-normalized (size, direction) pairs padded to the
// corpus-wide maximum length plus a statistics block, optionally balances
// classes by noisy duplication, and splits the result into train and test sets.
package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoSamples is returned when the input holds no usable rows.
var ErrNoSamples = errors.New("no usable samples")

// Sample is one encoded session.
type Sample struct {
	Label    int
	Features []float64
	// Records is the number of real (unpadded) record pairs in Features.
	Records int
	// Sizes and Directions hold the normalized values of the whole session,
	// including records beyond the encoded length.
	Sizes      []float64
	Directions []float64
}

// Stats counts what the pipeline kept, skipped and synthesized.
type Stats struct {
	RowsRead       int
	RowsDropped    int
	RecordsSkipped int
	Synthesized    int
}

// Dataset is the encoded corpus split into disjoint train and test sets.
type Dataset struct {
	Train             []Sample
	Test              []Sample
	NumLabels         int
	MaxSequenceLength int
	Stats             Stats
}

// FeatureDim returns the length of every sample's feature vector.
func (d *Dataset) FeatureDim() int {
	return FeatureDim(d.MaxSequenceLength)
}

// Config controls the pipeline.
type Config struct {
	// MaxSequenceLength fixes the per-session record count: shorter sessions
	// are padded, longer ones truncated. Zero derives it from the longest
	// session in the corpus.
	MaxSequenceLength int
	// TestRatio is the fraction of samples held out for testing.
	TestRatio float64
	// Balance duplicates minority-class samples with noise until every
	// label has as many samples as the largest class.
	Balance bool
	// NoiseStdDev is the Gaussian noise added to sizes of synthesized samples.
	NoiseStdDev float64
	// Seed drives shuffling and balancing. Zero reseeds from the clock.
	Seed int64
	// Logger receives progress and warnings. Nil uses log.Default().
	Logger *log.Logger
}

// DefaultConfig returns the settings used by the training command.
func DefaultConfig() Config {
	return Config{
		TestRatio:   0.2,
		Balance:     true,
		NoiseStdDev: 0.02,
	}
}

// Pipeline builds a Dataset from the feature CSV.
type Pipeline struct {
	cfg Config
	rng *rand.Rand
	log *log.Logger
}

// NewPipeline creates a pipeline for cfg.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		rng: NewRand(cfg.Seed),
		log: loggerOrDefault(cfg.Logger),
	}
}

// NewRand returns a generator seeded with seed, or from the clock when seed is zero.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// LoadFile reads and encodes the feature CSV at path. Failing to open the
// file is fatal for the caller.
func (p *Pipeline) LoadFile(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature csv: %w", err)
	}
	defer file.Close()

	ds, err := p.Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Load reads and encodes a feature CSV stream.
func (p *Pipeline) Load(r io.Reader) (*Dataset, error) {
	rows, stats, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	ds, err := p.Build(rows)
	if err != nil {
		return nil, err
	}
	ds.Stats.RowsRead = stats.RowsRead
	ds.Stats.RowsDropped = stats.RowsDropped
	ds.Stats.RecordsSkipped = stats.RecordsSkipped

	p.log.Printf("loaded %d rows (%d dropped, %d records skipped), %d labels, max sequence length %d",
		stats.RowsRead, stats.RowsDropped, stats.RecordsSkipped, ds.NumLabels, ds.MaxSequenceLength)
	p.log.Printf("split into %d training and %d test samples (%d synthesized)",
		len(ds.Train), len(ds.Test), ds.Stats.Synthesized)
	return ds, nil
}

// ReadRows parses every data row of a feature CSV. A leading site_label
// header row is skipped; any other first row is data. Bad rows are dropped and bad records skipped; both are counted.
func ReadRows(r io.Reader) ([]Row, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var (
		rows  []Row
		stats Stats
		first = true
	)
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.RowsRead++
				stats.RowsDropped++
				continue
			}
			return nil, stats, fmt.Errorf("failed to read csv: %w", err)
		}

		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}

		stats.RowsRead++
		row, skipped, err := ParseRow(fields)
		stats.RecordsSkipped += skipped
		if err != nil {
			stats.RowsDropped++
			continue
		}
		rows = append(rows, row)
	}

	return rows, stats, nil
}

// WriteRows writes rows as a feature CSV with its header.
func WriteRows(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"site_label", "packet_features"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write([]string{strconv.Itoa(row.Label), FormatRecords(row.Records)}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.TrimSpace(fields[0]) == "site_label"
}

// Build encodes rows, balances and splits them.
func (p *Pipeline) Build(rows []Row) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, ErrNoSamples
	}

	maxLen := p.cfg.MaxSequenceLength
	numLabels := 0
	longest := 0
	for _, row := range rows {
		longest = max(longest, len(row.Records))
		numLabels = max(numLabels, row.Label+1)
	}
	if maxLen <= 0 {
		maxLen = longest
	}

	samples := make([]Sample, len(rows))
	for i, row := range rows {
		samples[i] = NewSample(row.Label, row.Records, maxLen)
	}

	synthesized := 0
	if p.cfg.Balance {
		var added int
		samples, added = Balance(samples, p.cfg.NoiseStdDev, p.rng)
		synthesized = added
	}

	train, test := Split(samples, p.cfg.TestRatio, p.rng)
	return &Dataset{
		Train:             train,
		Test:              test,
		NumLabels:         numLabels,
		MaxSequenceLength: maxLen,
		Stats:             Stats{Synthesized: synthesized},
	}, nil
}

func loggerOrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
