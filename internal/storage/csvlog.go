package storage

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"score-tracker/internal/ingest"
)

// ScoreLog is the append-only CSV file holding every accepted score.
// The column set may grow over the file's lifetime: a batch introducing
// new columns triggers a rewrite with the widened header, historical rows
// backfilled with empty cells.
type ScoreLog struct {
	path string
}

// NewScoreLog creates a score log backed by the given path. The file is
// not created until the first append.
func NewScoreLog(path string) *ScoreLog {
	return &ScoreLog{path: path}
}

// Path returns the backing file path.
func (l *ScoreLog) Path() string {
	return l.path
}

// Append writes a batch of flattened rows, reconciling the file's header
// with any columns the batch introduces. Returns the number of rows
// written. The batch is written whole or not at all: the file handle is
// scoped to this call and flushed/synced on every success path.
func (l *ScoreLog) Append(rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batchCols := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			batchCols[col] = struct{}{}
		}
	}

	header, err := ReadHeader(l.path)
	if err != nil {
		return 0, err
	}

	if header == nil {
		// Fresh file: header is the sorted batch column set
		cols := sortedColumns(batchCols, nil)
		if err := l.writeFresh(cols, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	}

	known := make(map[string]struct{}, len(header))
	for _, col := range header {
		known[col] = struct{}{}
	}
	widened := false
	for col := range batchCols {
		if _, ok := known[col]; !ok {
			widened = true
			break
		}
	}

	if !widened {
		if err := l.appendRows(header, rows); err != nil {
			return 0, err
		}
		return len(rows), nil
	}

	cols := sortedColumns(batchCols, header)
	fmt.Printf("[Writer] Schema widened from %d to %d columns, rewriting %s\n",
		len(header), len(cols), filepath.Base(l.path))
	if err := l.rewriteWidened(header, cols, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// writeFresh creates the file with a header row followed by the batch.
func (l *ScoreLog) writeFresh(cols []string, rows []map[string]any) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(bufio.NewWriterSize(f, 64*1024))
	if err := w.Write(cols); err != nil {
		return err
	}
	if err := writeRows(w, cols, rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// appendRows appends the batch using the existing header's column order.
func (l *ScoreLog) appendRows(header []string, rows []map[string]any) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(bufio.NewWriterSize(f, 64*1024))
	if err := writeRows(w, header, rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// rewriteWidened rewrites the whole file under the widened header,
// backfilling historical rows with empty cells, then appends the batch.
// The rewrite goes through a temp file and rename so a crash mid-way
// never corrupts the existing log.
func (l *ScoreLog) rewriteWidened(oldHeader, cols []string, rows []map[string]any) error {
	src, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open %s for rewrite: %w", l.path, err)
	}
	defer src.Close()

	tmpPath := l.path + ".tmp"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		dst.Close()
		os.Remove(tmpPath)
	}()

	w := csv.NewWriter(bufio.NewWriterSize(dst, 64*1024))
	if err := w.Write(cols); err != nil {
		return err
	}

	// Carry historical rows over, remapped onto the widened header
	oldIdx := make(map[string]int, len(oldHeader))
	for i, col := range oldHeader {
		oldIdx[col] = i
	}
	r := csv.NewReader(bufio.NewReader(src))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to re-read header: %w", err)
	}
	for {
		old, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to re-read row: %w", err)
		}
		rec := make([]string, len(cols))
		for i, col := range cols {
			if j, ok := oldIdx[col]; ok && j < len(old) {
				rec[i] = old[j]
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	if err := writeRows(w, cols, rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, l.path)
}

// writeRows emits each row's cells in header order, missing columns as
// empty strings.
func writeRows(w *csv.Writer, cols []string, rows []map[string]any) error {
	for _, row := range rows {
		rec := make([]string, len(cols))
		for i, col := range cols {
			if v, ok := row[col]; ok {
				rec[i] = ingest.Stringify(v)
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader returns the file's header row, or nil if the file does not
// exist or is empty.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return header, nil
}

// LoadLedger rebuilds the dedup ledger from the score log. An absent or
// empty file yields an empty ledger; an unreadable or malformed file is
// logged as a warning and whatever was parsed is kept. Startup never
// fails on bad history.
func LoadLedger(path string) *ingest.Ledger {
	led := ingest.NewLedger()

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Ledger] Warning: could not read existing scores: %v", err)
		}
		return led
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err != io.EOF {
			log.Printf("[Ledger] Warning: could not parse %s: %v", path, err)
		}
		return led
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[Ledger] Warning: stopped reading %s: %v", path, err)
			break
		}
		cols := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				cols[col] = row[i]
			}
		}
		led.Add(cols["id"], ingest.FingerprintRow(cols))
	}

	_, fps := led.Size()
	fmt.Printf("[Ledger] Loaded %d existing score hashes from %s\n", fps, path)
	return led
}

// sortedColumns returns the sorted union of the batch columns and an
// optional existing header.
func sortedColumns(batch map[string]struct{}, header []string) []string {
	set := make(map[string]struct{}, len(batch)+len(header))
	for col := range batch {
		set[col] = struct{}{}
	}
	for _, col := range header {
		set[col] = struct{}{}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
