// Command predict classifies one recorded session.
//
//	predict [--model model.bin] [--labels site_labels.csv] <feature-file>
//
// The feature file holds one line of size_dir records separated by ';',
// optionally prefixed by "label,".
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/trafficnet"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("predict: ")
	if err := run(os.Args[1:], os.Stdout, log.Default()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	modelPath := fs.String("model", "model.bin", "trained checkpoint")
	labelsPath := fs.String("labels", "site_labels.csv", "label map written by extract")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: predict [--model <bin>] [--labels <csv>] <feature-file>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one feature file")
	}

	model, err := trafficnet.LoadModel(*modelPath)
	if err != nil {
		return err
	}

	labels, err := features.ReadLabelMap(*labelsPath)
	if err != nil {
		logger.Printf("warning: %v; printing numeric labels", err)
		labels = features.LabelMap{}
	}

	p, err := model.Predict(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "predicted: %d (%s)\n", p.Label, labels.Name(p.Label))
	for label, prob := range p.Probabilities {
		fmt.Fprintf(stdout, "  %3d %-20s %7.3f%%\n", label, labels.Name(label), prob*100)
	}
	return nil
}
