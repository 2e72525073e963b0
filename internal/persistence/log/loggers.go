package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-<yyyy-mm-dd-hh>.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	written int64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written += int64(len(b) + 1)
	return w.w.Flush()
}

// Written is the uncompressed byte count since creation.
func (w *JSONLZstdWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Frame directions.
const (
	DirIn  = "in"
	DirOut = "out"
)

// TraceEntry is one protocol frame as seen by the client.
type TraceEntry struct {
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Session string          `json:"session"`
	Dir     string          `json:"dir"`
	Type    string          `json:"type"`
	Raw     json.RawMessage `json:"raw"`
}

// TraceLogger records every frame of one session (compressed).
type TraceLogger struct {
	w       *JSONLZstdWriter
	session string
	seq     atomic.Uint64
}

const tracePrefix = "trace"

func NewTraceLogger(dir, session string) *TraceLogger {
	return &TraceLogger{w: NewJSONLZstdWriter(dir, tracePrefix), session: session}
}

func (l *TraceLogger) WriteFrame(dir, msgType string, raw []byte) error {
	e := TraceEntry{
		Seq:     l.seq.Add(1),
		At:      time.Now().UTC(),
		Session: l.session,
		Dir:     dir,
		Type:    msgType,
		Raw:     json.RawMessage(raw),
	}
	if !json.Valid(raw) {
		// Keep the line parseable; the frame is stored as a JSON string.
		q, _ := json.Marshal(string(raw))
		e.Raw = q
	}
	return l.w.Write(e)
}

func (l *TraceLogger) Written() int64 { return l.w.Written() }
func (l *TraceLogger) Close() error   { return l.w.Close() }

// ListTraceFiles returns trace files in dir, oldest first.
func ListTraceFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, tracePrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadTraceFile calls fn for each entry in path, stopping at the first error.
func ReadTraceFile(path string, fn func(TraceEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e TraceEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
