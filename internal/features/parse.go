package features

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRecord marks a size_direction token that cannot be used.
	// The record is skipped; the rest of the row is still parsed.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMalformedRow marks a row whose label or layout is unusable.
	ErrMalformedRow = errors.New("malformed row")

	// ErrEmptySample marks a row that produced no valid records.
	ErrEmptySample = errors.New("sample has no valid records")
)

// Direction values of a record.
const (
	ClientToServer = 0
	ServerToClient = 1
)

// Record is one observed protocol unit: transmitted size and direction.
type Record struct {
	Size      int
	Direction int
}

// Row is one parsed line of the feature CSV before vectorization.
type Row struct {
	Label   int
	Records []Record
}

// ParseRecord parses a "size_direction" token.
func ParseRecord(token string) (Record, error) {
	sizeStr, dirStr, ok := strings.Cut(strings.TrimSpace(token), "_")
	if !ok {
		return Record{}, fmt.Errorf("%w: %q has no separator", ErrMalformedRecord, token)
	}

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 0 {
		return Record{}, fmt.Errorf("%w: bad size in %q", ErrMalformedRecord, token)
	}

	dir, err := strconv.Atoi(dirStr)
	if err != nil || (dir != ClientToServer && dir != ServerToClient) {
		return Record{}, fmt.Errorf("%w: bad direction in %q", ErrMalformedRecord, token)
	}

	return Record{Size: size, Direction: dir}, nil
}

// ParseRecords parses a ';'-separated record list. Malformed tokens are
// skipped and counted. It returns ErrEmptySample when nothing valid remains.
func ParseRecords(list string) ([]Record, int, error) {
	var records []Record
	skipped := 0
	for _, tok := range strings.Split(list, ";") {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		rec, err := ParseRecord(tok)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, skipped, ErrEmptySample
	}
	return records, skipped, nil
}

// ParseRow parses the two CSV fields label and packet_features.
// The returned count is the number of skipped records.
func ParseRow(fields []string) (Row, int, error) {
	if len(fields) != 2 {
		return Row{}, 0, fmt.Errorf("%w: %d fields, want 2", ErrMalformedRow, len(fields))
	}

	label, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || label < 0 {
		return Row{}, 0, fmt.Errorf("%w: bad label %q", ErrMalformedRow, fields[0])
	}

	records, skipped, err := ParseRecords(fields[1])
	if err != nil {
		return Row{}, skipped, err
	}
	return Row{Label: label, Records: records}, skipped, nil
}

// FormatRecords renders records as the "size_direction;..." CSV field.
func FormatRecords(records []Record) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(r.Size))
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(r.Direction))
	}
	return b.String()
}
