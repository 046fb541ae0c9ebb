package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{"thread", "run", "test", "label", "start_ms", "test_time_ms", "status", "bytes", "errors", "error_class"}

// CSV writes one row per measurement in the column order of a Grinder data
// file, so existing analysis scripts keep working.
type CSV struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	err    error
}

// NewCSV writes the header row to w immediately.
func NewCSV(w io.Writer) *CSV {
	c := &CSV{w: csv.NewWriter(w)}
	c.err = c.w.Write(csvHeader)
	return c
}

// OpenCSV creates (or truncates) path and writes to it. Close closes the file.
func OpenCSV(path string) (*CSV, error) {
	// #nosec G304 -- output path comes from operator configuration
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}
	c := NewCSV(f)
	c.closer = f
	return c, nil
}

func (c *CSV) Record(m Measurement) {
	errs := "0"
	if !m.OK {
		errs = "1"
	}
	row := []string{
		strconv.Itoa(m.Worker),
		strconv.Itoa(m.Iteration),
		strconv.Itoa(m.TestID),
		m.Label,
		strconv.FormatInt(m.Start.UnixMilli(), 10),
		strconv.FormatInt(m.Elapsed.Milliseconds(), 10),
		strconv.Itoa(m.Status),
		strconv.FormatInt(m.Bytes, 10),
		errs,
		m.ErrorClass,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = c.w.Write(row)
}

// Err returns the first write error, if any.
func (c *CSV) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close flushes buffered rows and closes the underlying file when owned.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	err := c.err
	if err == nil {
		err = c.w.Error()
	}
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
		c.closer = nil
	}
	return err
}
