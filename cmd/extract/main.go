// Command extract builds the training corpus from recorded captures.
//
//	extract --data data --domains domains.txt --out .
//
// Captures are read from <data>/<site>/*.pcap (or .pcapng) where <site> is
// the second-to-last label of each listed domain. The output directory
// receives tls_features.csv and site_labels.csv.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/FlavioCFOliveira/TrafficNet/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("extract: ")
	if err := run(os.Args[1:], os.Stdout, log.Default()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	dataDir := fs.String("data", "data", "directory holding one capture directory per site")
	domainsPath := fs.String("domains", "domains.txt", "domain list, one per line")
	outDir := fs.String("out", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	domains, err := session.ReadDomainsFile(*domainsPath)
	if err != nil {
		return err
	}

	ex := &session.Extractor{DataDir: *dataDir, Logger: logger}
	corpus, err := ex.Extract(domains)
	if err != nil {
		return err
	}
	if len(corpus.Rows) == 0 {
		return fmt.Errorf("no sessions found under %s", *dataDir)
	}
	if err := corpus.WriteDir(*outDir); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %d sessions for %d sites to %s\n",
		len(corpus.Rows), len(corpus.Labels), filepath.Join(*outDir, session.FeaturesFile))
	fmt.Fprintf(stdout, "label map: %s\n", filepath.Join(*outDir, session.LabelsFile))
	if corpus.Dropped > 0 {
		fmt.Fprintf(stdout, "%d records dropped for undetermined direction or length\n", corpus.Dropped)
	}
	return nil
}
