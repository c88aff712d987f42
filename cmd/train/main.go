// Command train fits the website classifier on an extracted feature CSV.
//
//	train --data tls_features.csv --model model.bin [--config train.yaml]
//	      [--history history.csv] [--continue]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/FlavioCFOliveira/TrafficNet/internal/config"
	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
	"github.com/FlavioCFOliveira/TrafficNet/internal/net"
	"github.com/FlavioCFOliveira/TrafficNet/internal/train"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("train: ")
	if err := run(os.Args[1:], os.Stdout, log.Default()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file (defaults when empty)")
	dataPath := fs.String("data", "tls_features.csv", "feature CSV produced by extract")
	modelPath := fs.String("model", "model.bin", "checkpoint written on every test accuracy improvement")
	historyPath := fs.String("history", "", "per-epoch history CSV (disabled when empty)")
	resume := fs.Bool("continue", false, "start from the existing checkpoint instead of a fresh network")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	arch, err := cfg.Architecture()
	if err != nil {
		return err
	}

	ds, err := features.NewPipeline(cfg.PipelineConfig(logger)).LoadFile(*dataPath)
	if err != nil {
		return err
	}

	rng := features.NewRand(cfg.Seed)
	var network *net.Network
	loaded := false
	if *resume {
		var warn *net.LoadWarning
		network, warn, err = net.Load(*modelPath, arch, ds.FeatureDim(), ds.NumLabels, rng)
		if err != nil {
			return err
		}
		if warn != nil {
			logger.Printf("warning: %v; starting from a fresh network", warn)
		} else {
			logger.Printf("continuing from %s", *modelPath)
			loaded = true
		}
	} else {
		if network, err = net.NewNetwork(arch, ds.FeatureDim(), ds.NumLabels, rng); err != nil {
			return err
		}
	}
	network.Summary(stdout)

	callbacks := []net.Callback{net.Logger{Interval: cfg.Trainer.LogEvery, Out: logger}}
	var history *net.CSVLogger
	if *historyPath != "" {
		history = net.NewCSVLogger(*historyPath, *resume)
		history.Logger = logger
		callbacks = append(callbacks, history)
	}

	tcfg := cfg.TrainConfig(logger)
	tcfg.CheckpointPath = *modelPath
	tcfg.Resume = loaded
	trainer, err := train.New(network, tcfg, callbacks...)
	if err != nil {
		return err
	}
	res, err := trainer.Run(ds)
	if err != nil {
		return err
	}
	if history != nil && history.Err != nil {
		logger.Printf("warning: history: %v", history.Err)
	}

	fmt.Fprintf(stdout, "stopped after %d epochs (%s)\n", res.Epochs, res.Reason)
	fmt.Fprintf(stdout, "final accuracy: train %.2f%%, test %.2f%%\n", res.FinalTrain*100, res.FinalTest*100)
	fmt.Fprintf(stdout, "best test accuracy %.2f%%, %d checkpoints written to %s\n",
		res.BestTestAccuracy*100, res.Checkpoints, *modelPath)
	return nil
}
