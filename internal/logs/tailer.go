// Package logs reads the daemon log back out for the CLI.
//
// A Tailer tracks byte offsets into framerand.log and never holds the file
// open between calls, so log rotation and retention pruning can swap the
// file underneath it without breaking a follow loop.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileName is the daemon log inside the configured log directory.
const FileName = "framerand.log"

const pollInterval = 250 * time.Millisecond

// Tailer reads the daemon log incrementally.
type Tailer struct {
	path string
}

// NewTailer returns a Tailer over the daemon log under logDir.
func NewTailer(logDir string) *Tailer {
	return &Tailer{path: filepath.Join(logDir, FileName)}
}

// Last returns up to limit trailing lines and the offset of the end of the
// log. A missing log yields no lines and offset zero.
func (t *Tailer) Last(limit int) ([]string, int64, error) {
	file, size, err := t.open()
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	if limit <= 0 {
		return nil, size, nil
	}

	// Single forward pass through a ring of the last limit lines. The log
	// is capped by retention, so no backwards seeking is needed.
	ring := make([]string, limit)
	total := 0
	scanner := newScanner(file)
	for scanner.Scan() {
		ring[total%limit] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", t.path, err)
	}

	if total < limit {
		return ring[:total], size, nil
	}
	lines := make([]string, limit)
	for i := range lines {
		lines[i] = ring[(total+i)%limit]
	}
	return lines, size, nil
}

// Since returns the lines appended after offset and the new end offset.
// Offsets past the end are clamped, which resets a follow loop cleanly
// after the log is rotated or truncated.
func (t *Tailer) Since(offset int64) ([]string, int64, error) {
	file, size, err := t.open()
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	if offset < 0 || offset > size {
		offset = size
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", t.path, err)
	}

	var lines []string
	scanner := newScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", t.path, err)
	}
	return lines, size, nil
}

// Wait polls for lines appended after offset until some arrive, the wait
// elapses, or ctx is cancelled. It returns the lines seen (possibly none)
// and the offset a subsequent call should resume from.
func (t *Tailer) Wait(ctx context.Context, offset int64, wait time.Duration) ([]string, int64, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		lines, next, err := t.Since(offset)
		if err != nil || len(lines) > 0 {
			return lines, next, err
		}
		offset = next

		if !time.Now().Before(deadline) {
			return nil, next, nil
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-ticker.C:
		}
	}
}

// open returns the log file and its current size. A missing log is not an
// error; it returns a nil file so callers report an empty log instead.
func (t *Tailer) open() (*os.File, int64, error) {
	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open %s: %w", t.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", t.path, err)
	}
	return file, info.Size(), nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
