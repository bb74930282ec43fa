//go:build ignore

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/muurk/qcdiag/internal/relay"
)

// opStats aggregates the records of one request kind
type opStats struct {
	Name      string
	Count     int
	Empty     int
	Errors    int
	Rejected  map[string]int
	TotalMS   float64
	MaxMS     float64
	RespBytes int
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze-capture <jsonl-file>")
		fmt.Println("Example: analyze-capture captures/capture-20260304-101112.jsonl")
		os.Exit(1)
	}

	filename := os.Args[1]
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	records, err := relay.ReadCapture(f)
	f.Close()
	if err != nil {
		fmt.Printf("Error parsing capture: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== qcdiag Capture Analyzer ===\n")
	fmt.Printf("File: %s\n", filename)
	fmt.Printf("Records: %d\n", len(records))

	sessions := make(map[string]int)
	byOp := make(map[string]*opStats)
	for _, rec := range records {
		sessions[rec.Session]++

		req, err := rec.Request()
		if err != nil {
			fmt.Printf("Session %s seq %d: bad request hex: %v\n", rec.Session, rec.Seq, err)
			continue
		}
		resp, err := rec.Response()
		if err != nil {
			fmt.Printf("Session %s seq %d: bad response hex: %v\n", rec.Session, rec.Seq, err)
			continue
		}

		name := requestName(req)
		st, ok := byOp[name]
		if !ok {
			st = &opStats{Name: name, Rejected: make(map[string]int)}
			byOp[name] = st
		}
		st.Count++
		st.TotalMS += rec.LatencyMS
		st.MaxMS = max(st.MaxMS, rec.LatencyMS)
		st.RespBytes += len(resp)

		switch {
		case rec.Error != "":
			st.Errors++
		case len(resp) == 0:
			st.Empty++
		case resp[0] != req[0]:
			st.Rejected[protocol.DescribeDiagStatus(resp)]++
		}
	}

	if len(records) > 0 {
		span := records[len(records)-1].Timestamp.Sub(records[0].Timestamp)
		fmt.Printf("Span: %s\n", span.Round(time.Millisecond))
	}
	fmt.Printf("Sessions: %d\n\n", len(sessions))
	printTable(byOp)
}

// requestName names a request by opcode, and by subsystem command for 0x4B
func requestName(req []byte) string {
	if len(req) == 0 {
		return "EMPTY"
	}
	op := protocol.DiagCommand(req[0])
	if op != protocol.CmdSubsystem || len(req) < 3 {
		return op.String()
	}

	switch protocol.EfsMethod(req[1]) {
	case protocol.EfsMethodAlternate, protocol.EfsMethodStandard:
		return protocol.EfsCommand(req[2]).String()
	}
	switch protocol.Subsystem(req[1]) {
	case protocol.SubsysNV:
		if req[2] == protocol.NVSubWrite {
			return "NV_SUB_WRITE"
		}
		return "NV_SUB_READ"
	case protocol.SubsysBoot:
		return "SAHARA_SWITCH"
	case protocol.SubsysSystem:
		return "CRASH"
	}
	return fmt.Sprintf("SUBSYS_0x%02X_0x%02X", req[1], req[2])
}

func printTable(byOp map[string]*opStats) {
	ops := make([]*opStats, 0, len(byOp))
	for _, st := range byOp {
		ops = append(ops, st)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Count > ops[j].Count })

	fmt.Printf("%-34s %7s %6s %6s %9s %9s %10s\n", "REQUEST", "COUNT", "EMPTY", "ERRORS", "AVG MS", "MAX MS", "RESP BYTES")
	fmt.Printf("%s\n", strings.Repeat("-", 88))
	for _, st := range ops {
		fmt.Printf("%-34s %7d %6d %6d %9.2f %9.2f %10d\n",
			st.Name, st.Count, st.Empty, st.Errors, st.TotalMS/float64(st.Count), st.MaxMS, st.RespBytes)
	}

	for _, st := range ops {
		if len(st.Rejected) == 0 {
			continue
		}
		fmt.Printf("\n%s rejections:\n", st.Name)
		for status, n := range st.Rejected {
			fmt.Printf("  %-50s %d\n", status, n)
		}
	}
}
