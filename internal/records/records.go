// Package records implements the tabular record store: CSV persistence with
// a fixed ordered column schema, header validation, field sanitization,
// atomic writes and timestamped backups.
package records

import (
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/model"
)

// Load reads the record store at path. It fails fast when any canonical
// column is missing from the header; extra columns are ignored with a
// warning so older workbooks with appended scratch columns still load.
func Load(path string) ([]*model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "records: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "records: read header of %s", path)
	}

	colPos := make(map[string]int, len(header))
	for i, name := range header {
		colPos[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, c := range model.Columns {
		if _, ok := colPos[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("records: %s is missing required columns: %s",
			path, strings.Join(missing, ", "))
	}
	if len(header) > len(model.Columns) {
		zap.L().Warn("records: header has extra columns, ignoring",
			zap.String("path", path),
			zap.Int("extra", len(header)-len(model.Columns)))
	}

	var out []*model.Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "records: read %s line %d", path, line)
		}

		rec := &model.Record{}
		for _, c := range model.Columns {
			if pos := colPos[c.Name]; pos < len(row) {
				c.Set(rec, strings.TrimSpace(row[pos]))
			}
		}
		out = append(out, rec)
	}

	return out, nil
}

// Sanitize neutralizes characters that break the workbook convention:
// HTML entities are decoded, newlines collapse to "; ", and raw commas
// become semicolons so hand edits in spreadsheet tools stay unambiguous.
func Sanitize(value string) string {
	s := html.UnescapeString(value)
	s = strings.ReplaceAll(s, "\r\n", "; ")
	s = strings.ReplaceAll(s, "\n", "; ")
	s = strings.ReplaceAll(s, "\r", "; ")
	s = strings.ReplaceAll(s, ",", ";")
	return strings.TrimSpace(s)
}

// Write persists records to path atomically: the full file is written to a
// temporary sibling, flushed to disk, then renamed over the target. A crash
// mid-write leaves the previous valid file untouched.
func Write(path string, recs []*model.Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "records: mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "records: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(model.ColumnNames()); err != nil {
		tmp.Close()
		return eris.Wrap(err, "records: write header")
	}
	row := make([]string, len(model.Columns))
	for _, rec := range recs {
		for i, c := range model.Columns {
			row[i] = Sanitize(c.Get(rec))
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return eris.Wrap(err, "records: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "records: flush")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "records: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "records: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "records: rename into %s", path)
	}
	return nil
}

// Backup copies the store to a byte-identical timestamped sibling and
// returns the backup path. suffix distinguishes pre-pipeline backups from
// per-stage checkpoints.
func Backup(path, suffix string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "records: open %s for backup", path)
	}
	defer src.Close()

	stamp := time.Now().UTC().Format("20060102-150405")
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s.backup-%s-%s%s", base, stamp, suffix, filepath.Ext(path))
	if suffix == "" {
		name = fmt.Sprintf("%s.backup-%s%s", base, stamp, filepath.Ext(path))
	}
	backupPath := filepath.Join(filepath.Dir(path), name)

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", eris.Wrapf(err, "records: create backup %s", backupPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(backupPath)
		return "", eris.Wrap(err, "records: copy backup")
	}
	if err := dst.Sync(); err != nil {
		return "", eris.Wrap(err, "records: sync backup")
	}
	return backupPath, nil
}

// Restore replaces the store at path with the backup, atomically.
func Restore(backupPath, path string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return eris.Wrapf(err, "records: read backup %s", backupPath)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".restore-*")
	if err != nil {
		return eris.Wrap(err, "records: create restore temp")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "records: write restore temp")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "records: sync restore temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "records: close restore temp")
	}
	return eris.Wrapf(os.Rename(tmpName, path), "records: restore %s", path)
}
