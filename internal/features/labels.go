package features

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// LabelMap maps dense class labels to site names.
type LabelMap map[int]string

// Name returns the site name for label, or the label number when unknown.
func (m LabelMap) Name(label int) string {
	if name, ok := m[label]; ok {
		return name
	}
	return strconv.Itoa(label)
}

// Labels returns the labels in ascending order.
func (m LabelMap) Labels() []int {
	labels := make([]int, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// ReadLabelMap reads a "label,site_name" CSV.
func ReadLabelMap(path string) (LabelMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label map: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2
	m := make(LabelMap)
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read label map: %w", err)
		}
		label, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("label map line %d: bad label %q", line, rec[0])
		}
		m[label] = strings.TrimSpace(rec[1])
	}
	return m, nil
}

// WriteLabelMap writes m as a "label,site_name" CSV sorted by label.
func WriteLabelMap(w io.Writer, m LabelMap) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"label", "site_name"}); err != nil {
		return fmt.Errorf("failed to write label map: %w", err)
	}
	for _, label := range m.Labels() {
		if err := writer.Write([]string{strconv.Itoa(label), m[label]}); err != nil {
			return fmt.Errorf("failed to write label map: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadFeatureFile reads a single-session feature file for prediction. The
// first non-empty line holds "size_dir;size_dir;..." optionally prefixed by
// "label,". The result has FeatureDim(maxSequenceLength) values.
func LoadFeatureFile(path string, maxSequenceLength int) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if prefix, rest, ok := strings.Cut(line, ","); ok {
			if _, err := strconv.Atoi(strings.TrimSpace(prefix)); err != nil {
				continue // header
			}
			line = rest
		}
		records, _, err := ParseRecords(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		features, _ := Vectorize(records, maxSequenceLength)
		return features, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feature file: %w", err)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrEmptySample)
}
