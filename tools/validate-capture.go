//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/muurk/qcdiag/internal/relay"
)

// Statistics tracks decoding results
type Statistics struct {
	TotalRecords  int
	TotalFiles    int
	DecodeSuccess int
	DecodeFailure int
	NoResponse    int
	Decoders      map[string]int
	FailedRecords []FailedRecord
}

// FailedRecord stores information about decoding failures
type FailedRecord struct {
	File        string
	Session     string
	Seq         int
	Decoder     string
	ResponseHex string
	Error       string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate-capture <directory-or-file>")
		fmt.Println("Example: validate-capture captures/")
		fmt.Println("         validate-capture capture-20260304-101112.jsonl")
		os.Exit(1)
	}

	path := os.Args[1]
	stats := Statistics{Decoders: make(map[string]int)}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	var files []string
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.jsonl"))
		if err != nil {
			fmt.Printf("Error finding JSONL files: %v\n", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Printf("No JSONL files found in %s\n", path)
			os.Exit(1)
		}
	} else {
		files = []string{path}
	}

	fmt.Printf("=== qcdiag Capture Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}
	printStatistics(&stats)

	if stats.DecodeFailure > 0 {
		os.Exit(2)
	}
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", filename, err)
		return
	}
	defer f.Close()

	records, err := relay.ReadCapture(f)
	if err != nil {
		fmt.Printf("Error parsing %s: %v\n", filename, err)
	}

	for _, rec := range records {
		stats.TotalRecords++

		req, err := rec.Request()
		if err != nil || len(req) == 0 {
			stats.fail(filename, rec, "request", fmt.Errorf("bad request hex %q", rec.RequestHex))
			continue
		}
		resp, err := rec.Response()
		if err != nil {
			stats.fail(filename, rec, "response", err)
			continue
		}
		if len(resp) == 0 {
			stats.NoResponse++
			continue
		}

		name, decode := decoderFor(req)
		stats.Decoders[name]++
		if err := decode(resp); err != nil {
			stats.fail(filename, rec, name, err)
			continue
		}
		stats.DecodeSuccess++
	}
}

func (s *Statistics) fail(file string, rec relay.Record, decoder string, err error) {
	s.DecodeFailure++
	s.FailedRecords = append(s.FailedRecords, FailedRecord{
		File:        file,
		Session:     rec.Session,
		Seq:         rec.Seq,
		Decoder:     decoder,
		ResponseHex: rec.ResponseHex,
		Error:       err.Error(),
	})
}

// decoderFor picks the response decoder the engine uses for req.
func decoderFor(req []byte) (string, func([]byte) error) {
	op := protocol.DiagCommand(req[0])
	switch op {
	case protocol.CmdNVRead, protocol.CmdNVWrite:
		return "nv item", func(resp []byte) error {
			if err := protocol.CheckEcho(resp, req[0]); err != nil {
				return err
			}
			_, err := protocol.ParseNVItem(resp)
			return err
		}
	case protocol.CmdSubsystem:
		if len(req) >= 3 {
			return subsystemDecoder(req)
		}
	}
	return "echo " + op.String(), func(resp []byte) error {
		return protocol.CheckEcho(resp, req[0])
	}
}

func subsystemDecoder(req []byte) (string, func([]byte) error) {
	if protocol.Subsystem(req[1]) == protocol.SubsysNV {
		return "nv sub item", func(resp []byte) error {
			if err := protocol.CheckEcho(resp, req[0]); err != nil {
				return err
			}
			_, err := protocol.ParseNVSubItem(resp)
			return err
		}
	}

	switch protocol.EfsMethod(req[1]) {
	case protocol.EfsMethodAlternate, protocol.EfsMethodStandard:
	default:
		return "echo SUBSYS_CMD", func(resp []byte) error {
			return protocol.CheckEcho(resp, req[0])
		}
	}

	cmd := protocol.EfsCommand(req[2])
	var parse func([]byte) error
	switch cmd {
	case protocol.EfsOpen:
		parse = func(b []byte) error { _, err := protocol.ParseEfsOpen(b); return err }
	case protocol.EfsStat, protocol.EfsFstat:
		parse = func(b []byte) error { _, err := protocol.ParseEfsStat(b); return err }
	case protocol.EfsLstat:
		parse = func(b []byte) error { _, err := protocol.ParseEfsLstat(b); return err }
	case protocol.EfsRead:
		parse = func(b []byte) error { _, err := protocol.ParseEfsRead(b); return err }
	case protocol.EfsWrite:
		parse = func(b []byte) error { _, err := protocol.ParseEfsWrite(b); return err }
	case protocol.EfsOpendir:
		parse = func(b []byte) error { _, err := protocol.ParseEfsOpendir(b); return err }
	case protocol.EfsReaddir:
		parse = func(b []byte) error { _, err := protocol.ParseEfsReaddir(b); return err }
	case protocol.EfsGet:
		parse = func(b []byte) error { _, err := protocol.ParseEfsGet(b); return err }
	default:
		parse = func([]byte) error { return nil }
	}
	return cmd.String(), func(resp []byte) error {
		if err := protocol.CheckEfsResponse(resp); err != nil {
			return err
		}
		return parse(resp)
	}
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n========================================\n")
	fmt.Printf("VALIDATION RESULTS\n")
	fmt.Printf("========================================\n\n")

	decoded := stats.TotalRecords - stats.NoResponse
	fmt.Printf("Files Processed:    %d\n", stats.TotalFiles)
	fmt.Printf("Total Records:      %d\n", stats.TotalRecords)
	fmt.Printf("No Response:        %d\n", stats.NoResponse)
	if decoded > 0 {
		fmt.Printf("Decode Success:     %d (%.2f%%)\n", stats.DecodeSuccess,
			float64(stats.DecodeSuccess)/float64(decoded)*100)
		fmt.Printf("Decode Failure:     %d (%.2f%%)\n", stats.DecodeFailure,
			float64(stats.DecodeFailure)/float64(decoded)*100)
	}

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("DECODER DISTRIBUTION\n")
	fmt.Printf("----------------------------------------\n")
	for name, count := range stats.Decoders {
		fmt.Printf("%-32s %d\n", name, count)
	}

	if len(stats.FailedRecords) > 0 {
		fmt.Printf("\n----------------------------------------\n")
		fmt.Printf("DECODE FAILURES (%d total)\n", len(stats.FailedRecords))
		fmt.Printf("----------------------------------------\n")

		maxShow := 10
		if len(stats.FailedRecords) > maxShow {
			fmt.Printf("(Showing first %d of %d failures)\n\n", maxShow, len(stats.FailedRecords))
		}
		for i, failed := range stats.FailedRecords {
			if i >= maxShow {
				break
			}
			fmt.Printf("\nFailure #%d:\n", i+1)
			fmt.Printf("  File: %s (session %s, seq %d)\n", failed.File, failed.Session, failed.Seq)
			fmt.Printf("  Decoder: %s\n", failed.Decoder)
			fmt.Printf("  Error: %s\n", failed.Error)
			hexPreview := failed.ResponseHex
			if len(hexPreview) > 80 {
				hexPreview = hexPreview[:80] + "..."
			}
			fmt.Printf("  Response: %s\n", hexPreview)
		}
	}

	fmt.Printf("\n========================================\n")
	if stats.DecodeFailure == 0 {
		fmt.Printf("SUCCESS: every response decoded\n")
	} else {
		fmt.Printf("ISSUES FOUND: %d responses failed to decode\n", stats.DecodeFailure)
	}
	fmt.Printf("========================================\n")
}
