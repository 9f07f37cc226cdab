// Command tightbeamctl drives a Tightbeam broadcast or receiver session
// from the command line, for offline encode/decode testing without a
// camera or display in the loop.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rootnegativeone/tightbeam/internal/frame"
	"github.com/rootnegativeone/tightbeam/internal/logging"
	"github.com/rootnegativeone/tightbeam/internal/replay"
	"github.com/rootnegativeone/tightbeam/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "encode":
		runEncode(os.Args[2:])
	case "decode":
		runDecode(os.Args[2:])
	case "replay":
		runReplay(os.Args[2:])
	case "-version", "--version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(2)
	}
}

func runEncode(args []string) {
	cfg, err := parseEncodeFlags(args)
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	if err := logging.SetLevel(cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logging.Logger().With("component", "tightbeamctl.encode")

	payload, err := readAll(cfg.inputPath)
	if err != nil {
		log.Error("failed to read payload", "error", err)
		os.Exit(1)
	}

	pkg, err := session.PrepareBroadcast(payload,
		session.WithBlockSize(int(cfg.blockSize)),
		session.WithSeed(cfg.seed),
		session.WithSyncPreambleCount(cfg.preamble),
		session.WithSyncInterval(cfg.syncInterval),
		session.WithConfirmationRequired(cfg.confirmation),
	)
	if err != nil {
		log.Error("failed to prepare broadcast", "error", err)
		os.Exit(1)
	}

	out, closeOut, err := openOutput(cfg.outputPath)
	if err != nil {
		log.Error("failed to open output", "error", err)
		os.Exit(1)
	}
	defer closeOut()

	w := bufio.NewWriter(out)
	for _, f := range pkg.Frames {
		wire, err := frame.Encode(f)
		if err != nil {
			log.Error("failed to encode frame", "error", err)
			os.Exit(1)
		}
		fmt.Fprintln(w, wire)
	}
	if err := w.Flush(); err != nil {
		log.Error("failed to flush output", "error", err)
		os.Exit(1)
	}

	if cfg.capturePath != "" {
		cap, err := replay.NewCapture(pkg.ID, pkg.Seed, pkg.Options.IntegrityAlgorithm, pkg.Options.DegreeParams, pkg.Frames, time.Now().UnixNano())
		if err != nil {
			log.Error("failed to build replay capture", "error", err)
			os.Exit(1)
		}
		data, err := replay.Marshal(cap)
		if err != nil {
			log.Error("failed to marshal replay capture", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(cfg.capturePath, data, 0o644); err != nil {
			log.Error("failed to write replay capture", "error", err)
			os.Exit(1)
		}
	}

	log.Info("broadcast prepared",
		"session", pkg.ID.String(),
		"k", pkg.Metadata.K,
		"frames", len(pkg.Frames),
		"systematic", pkg.SystematicCount,
		"redundant", pkg.RedundantCount,
	)
}

// runReplay re-emits the wire frame stream recorded in a CBOR capture file
// (saved by 'encode -capture') without re-running the fountain encoder or
// its PRNG, for replaying a fixed broadcast against a receiver repeatedly.
func runReplay(args []string) {
	cfg, err := parseReplayFlags(args)
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	if err := logging.SetLevel(cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logging.Logger().With("component", "tightbeamctl.replay")

	data, err := os.ReadFile(cfg.capturePath)
	if err != nil {
		log.Error("failed to read replay capture", "error", err)
		os.Exit(1)
	}

	cap, err := replay.Unmarshal(data)
	if err != nil {
		log.Error("failed to decode replay capture", "error", err)
		os.Exit(1)
	}

	frames, err := cap.Frames()
	if err != nil {
		log.Error("failed to reconstruct frames from capture", "error", err)
		os.Exit(1)
	}

	out, closeOut, err := openOutput(cfg.outputPath)
	if err != nil {
		log.Error("failed to open output", "error", err)
		os.Exit(1)
	}
	defer closeOut()

	w := bufio.NewWriter(out)
	for _, f := range frames {
		wire, err := frame.Encode(f)
		if err != nil {
			log.Error("failed to encode frame", "error", err)
			os.Exit(1)
		}
		fmt.Fprintln(w, wire)
	}
	if err := w.Flush(); err != nil {
		log.Error("failed to flush output", "error", err)
		os.Exit(1)
	}

	log.Info("replay complete", "session", cap.SessionID.String(), "frames", len(frames))
}

func runDecode(args []string) {
	cfg, err := parseDecodeFlags(args)
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	if err := logging.SetLevel(cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logging.Logger().With("component", "tightbeamctl.decode")

	in, closeIn, err := openInput(cfg.inputPath)
	if err != nil {
		log.Error("failed to open input", "error", err)
		os.Exit(1)
	}
	defer closeIn()

	rx := session.NewReceiver()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var final session.Status
	for scanner.Scan() {
		final = rx.IngestWire(scanner.Text())
		if final.DecodeComplete {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("failed to read frame stream", "error", err)
		os.Exit(1)
	}

	if !final.DecodeComplete {
		log.Error("decode did not complete", "coverage", final.Coverage, "sync_state", final.SyncState.String())
		os.Exit(1)
	}
	if final.Corrupted {
		log.Error("integrity check failed")
		os.Exit(1)
	}

	out, closeOut, err := openOutput(cfg.outputPath)
	if err != nil {
		log.Error("failed to open output", "error", err)
		os.Exit(1)
	}
	defer closeOut()

	if final.RecoveredText != nil {
		fmt.Fprint(out, *final.RecoveredText)
	}
	log.Info("decode complete", "symbols_seen", final.SymbolsSeen)
}

func readAll(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
