package session

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
)

// Output file names written by Corpus.WriteDir.
const (
	FeaturesFile = "tls_features.csv"
	LabelsFile   = "site_labels.csv"
)

// SiteName reduces a domain to its second-to-last label:
// www.baidu.com -> baidu. Names with fewer than two labels are returned as is.
func SiteName(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return domain
	}
	return parts[len(parts)-2]
}

// ReadDomains reads one domain per line, ignoring blank lines, '#'
// comments and duplicates.
func ReadDomains(r io.Reader) ([]string, error) {
	var domains []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read domain list: %w", err)
	}
	return domains, nil
}

// ReadDomainsFile reads the domain list at path.
func ReadDomainsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open domain list: %w", err)
	}
	defer file.Close()
	return ReadDomains(file)
}

// AssignLabels maps the distinct site names of domains to dense labels in
// ascending name order.
func AssignLabels(domains []string) (features.LabelMap, map[string]int) {
	var sites []string
	seen := make(map[string]bool)
	for _, d := range domains {
		site := SiteName(d)
		if site == "" || seen[site] {
			continue
		}
		seen[site] = true
		sites = append(sites, site)
	}
	sort.Strings(sites)

	labels := make(features.LabelMap, len(sites))
	index := make(map[string]int, len(sites))
	for i, site := range sites {
		labels[i] = site
		index[site] = i
	}
	return labels, index
}

// CaptureFiles lists the .pcap and .pcapng files directly under dir, sorted.
func CaptureFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pcap", ".pcapng":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Corpus is the extracted dataset before vectorization.
type Corpus struct {
	Labels features.LabelMap
	Rows   []features.Row
	// Dropped counts tuples excluded for missing length or direction.
	Dropped int
}

// Extractor walks <DataDir>/<site>/*.pcap for every domain.
type Extractor struct {
	DataDir string
	Logger  *log.Logger
}

// Extract decodes every capture of every domain's site directory. A missing
// site directory or an unreadable capture is logged and skipped; sessions
// without any resolved record are skipped too.
func (e *Extractor) Extract(domains []string) (*Corpus, error) {
	l := e.Logger
	if l == nil {
		l = log.Default()
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("no domains given")
	}

	labels, index := AssignLabels(domains)
	corpus := &Corpus{Labels: labels}
	for _, label := range labels.Labels() {
		site := labels[label]
		dir := filepath.Join(e.DataDir, site)
		files, err := CaptureFiles(dir)
		if err != nil {
			l.Printf("warning: site %s: %v", site, err)
			continue
		}
		l.Printf("site %s (label %d): %d capture files", site, index[site], len(files))

		for _, path := range files {
			tuples, err := ReadCaptureFile(path)
			if err != nil {
				l.Printf("warning: %v", err)
				if len(tuples) == 0 {
					continue
				}
			}
			records, dropped := Records(tuples)
			corpus.Dropped += dropped
			if dropped > 0 {
				l.Printf("warning: %s: %d records with undetermined direction or length", path, dropped)
			}
			if len(records) == 0 {
				l.Printf("warning: %s: no usable TLS records", path)
				continue
			}
			corpus.Rows = append(corpus.Rows, features.Row{Label: label, Records: records})
		}
	}
	l.Printf("extracted %d sessions for %d sites", len(corpus.Rows), len(labels))
	return corpus, nil
}

// WriteDir writes the feature CSV and label map into dir, creating it if needed.
func (c *Corpus) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, FeaturesFile), func(w io.Writer) error {
		return features.WriteRows(w, c.Rows)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, LabelsFile), func(w io.Writer) error {
		return features.WriteLabelMap(w, c.Labels)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
