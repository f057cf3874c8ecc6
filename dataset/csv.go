package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/scipunch/campusfeed/event"
)

// ErrCorrupt is returned when an existing dataset file cannot be parsed
var ErrCorrupt = errors.New("dataset file is corrupt")

const utf8BOM = "\ufeff"

// Load reads the dataset at path. A missing or empty file yields an empty
// dataset with the default columns.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to open dataset at '%s': %w", path, err)
	}
	defer f.Close()

	d, err := Read(f)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read dataset at '%s': %w", path, err)
	}
	return d, nil
}

// Read parses a dataset from CSV with a header row. Known fields missing
// from the header are added as trailing columns.
func Read(r io.Reader) (Dataset, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return Dataset{}, fmt.Errorf("%w: duplicate column '%s'", ErrCorrupt, h)
		}
		seen[h] = true
	}

	d := Dataset{Columns: header, persisted: true}
	fields := columnFields(header)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		var row Row
		for i, value := range record {
			if fields[i] != "" {
				row.Event.Set(fields[i], value)
				continue
			}
			if row.Extra == nil {
				row.Extra = make(map[string]string)
			}
			row.Extra[header[i]] = value
		}
		d.Rows = append(d.Rows, row)
	}

	// Make sure every field has a column to land in
	present := make(map[event.Field]bool)
	for _, f := range fields {
		present[f] = true
	}
	for _, f := range event.Fields {
		if !present[f] {
			d.Columns = append(d.Columns, f)
		}
	}
	return d, nil
}

// Write encodes the dataset as CSV in column order
func Write(w io.Writer, d Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	fields := columnFields(d.Columns)
	record := make([]string, len(d.Columns))
	for _, row := range d.Rows {
		for i, col := range d.Columns {
			if fields[i] != "" {
				record[i], _ = row.Event.Get(fields[i])
			} else {
				record[i] = row.Extra[col]
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save replaces the file at path with the dataset. The content is
// written to a temporary file in the same directory and renamed over the
// target, so readers see either the old or the new dataset in full.
func Save(path string, d Dataset) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory at '%s': %w", dir, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary dataset file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, d); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write temporary dataset file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary dataset file: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat temporary dataset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary dataset file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("failed to set dataset permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace dataset at '%s': %w", path, err)
	}
	committed = true
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync dataset directory at '%s': %w", dir, err)
	}

	slog.Info("dataset written", "path", path, "rows", d.Len(), "size", humanize.Bytes(uint64(info.Size())))
	return nil
}

// syncDir flushes the directory entry so a completed rename survives a
// crash. Windows cannot sync directories.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}
