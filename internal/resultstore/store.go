package resultstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends audit records to a JSONL file, one record per line.
// Appends are serialized by a mutex and each record is handed to the OS
// in a single unbuffered write, so a record that Append accepted
// survives a later crash of the process and concurrent appends never
// interleave partial lines.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Create opens a fresh results file at path, creating parent
// directories as needed and truncating any previous content.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("resultstore: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resultstore: open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append durably writes one record. A write failure must abort the run:
// the caller treats a non-nil error as fatal rather than dropping data.
func (w *Writer) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("resultstore: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("resultstore: marshal %s: %w", rec.Origin, err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("resultstore: append after close")
	}
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("resultstore: append %s: %w", rec.Origin, err)
	}
	return nil
}

// Close flushes and finalizes the file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("resultstore: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("resultstore: close: %w", err)
	}
	return nil
}

// ReadFile loads and validates every record in a JSONL results file.
// Unknown schema versions and malformed lines are errors, not skips.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resultstore: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("resultstore: %s:%d: %w", path, line, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("resultstore: %s:%d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("resultstore: read %s: %w", path, err)
	}
	return records, nil
}
