package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

type encodeConfig struct {
	inputPath    string
	outputPath   string
	capturePath  string
	blockSize    uint
	seed         int64
	preamble     int
	syncInterval int
	confirmation int
	logLevel     string
	showVersion  bool
}

func parseEncodeFlags(args []string) (*encodeConfig, error) {
	fs := flag.NewFlagSet("tightbeamctl encode", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &encodeConfig{}
	fs.StringVar(&cfg.inputPath, "in", "", "path to the payload file ('-' for stdin)")
	fs.StringVar(&cfg.outputPath, "out", "-", "path to write the wire frame stream ('-' for stdout)")
	fs.StringVar(&cfg.capturePath, "capture", "", "optional path to also save a CBOR replay capture of the materialized frame list")
	fs.UintVar(&cfg.blockSize, "block-size", 64, "source block size in bytes")
	fs.Int64Var(&cfg.seed, "seed", 1, "deterministic fountain-encoder seed")
	fs.IntVar(&cfg.preamble, "preamble", 4, "number of sync preamble frames before Meta")
	fs.IntVar(&cfg.syncInterval, "sync-interval", 16, "symbols between periodic sync re-inserts")
	fs.IntVar(&cfg.confirmation, "confirmation-required", 2, "distinct sync sequences required to lock")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.inputPath == "" {
		return nil, errors.New("encode: -in is required")
	}
	if cfg.blockSize == 0 {
		return nil, errors.New("encode: -block-size must be > 0")
	}
	return cfg, nil
}

type replayConfig struct {
	capturePath string
	outputPath  string
	logLevel    string
	showVersion bool
}

func parseReplayFlags(args []string) (*replayConfig, error) {
	fs := flag.NewFlagSet("tightbeamctl replay", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &replayConfig{}
	fs.StringVar(&cfg.capturePath, "capture", "", "path to a CBOR replay capture saved by 'encode -capture'")
	fs.StringVar(&cfg.outputPath, "out", "-", "path to write the replayed wire frame stream ('-' for stdout)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.showVersion {
		return cfg, nil
	}
	if cfg.capturePath == "" {
		return nil, errors.New("replay: -capture is required")
	}
	return cfg, nil
}

type decodeConfig struct {
	inputPath   string
	outputPath  string
	logLevel    string
	showVersion bool
}

func parseDecodeFlags(args []string) (*decodeConfig, error) {
	fs := flag.NewFlagSet("tightbeamctl decode", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &decodeConfig{}
	fs.StringVar(&cfg.inputPath, "in", "-", "path to read the wire frame stream from ('-' for stdin)")
	fs.StringVar(&cfg.outputPath, "out", "-", "path to write the recovered payload to ('-' for stdout)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage() {
	fmt.Fprintln(os.Stdout, "usage: tightbeamctl <encode|decode|replay> [flags]")
}
