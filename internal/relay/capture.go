package relay

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/qcdiag/internal/protocol"
)

// Record is one request/response pair in a capture file.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Session     string    `json:"session"`
	Seq         int       `json:"seq"`
	Opcode      string    `json:"opcode"`
	RequestHex  string    `json:"request_hex"`
	ResponseHex string    `json:"response_hex"`
	LatencyMS   float64   `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
}

// NewRecord fills a record from raw bytes.
func NewRecord(session string, seq int, req, resp []byte, latency time.Duration, err error) Record {
	r := Record{
		Timestamp:   time.Now().UTC(),
		Session:     session,
		Seq:         seq,
		RequestHex:  hex.EncodeToString(req),
		ResponseHex: hex.EncodeToString(resp),
		LatencyMS:   float64(latency.Microseconds()) / 1000,
	}
	if len(req) > 0 {
		r.Opcode = protocol.DiagCommand(req[0]).String()
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Request decodes RequestHex.
func (r Record) Request() ([]byte, error) {
	return hex.DecodeString(r.RequestHex)
}

// Response decodes ResponseHex. An empty response means the device did not
// answer.
func (r Record) Response() ([]byte, error) {
	return hex.DecodeString(r.ResponseHex)
}

// Capture appends records to a JSON Lines file.
type Capture struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// OpenCapture creates capture-<timestamp>.jsonl in dir.
func OpenCapture(dir string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &Capture{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the capture file name.
func (c *Capture) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Write appends one record. A nil capture discards it.
func (c *Capture) Write(r Record) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(r)
}

// Close closes the file.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}

// ReadCapture parses a capture file. Blank lines are skipped.
func ReadCapture(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
