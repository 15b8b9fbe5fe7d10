// CLAUDE:SUMMARY Reference directory loader: tables.gob first, otherwise CSV tables with declared delimiter and encoding.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hazyhaar/combine-registry/pkg/canon"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// LoadDir reads the tables described by dir/manifest.yaml. A tables.gob next
// to the manifest takes priority over the CSV files.
func LoadDir(dir string) (Tables, *Manifest, error) {
	m, err := LoadManifest(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return Tables{}, nil, err
	}

	gobPath := filepath.Join(dir, GobFile)
	if _, err := os.Stat(gobPath); err == nil {
		t, err := loadGob(gobPath)
		if err != nil {
			return Tables{}, nil, fmt.Errorf("refdata %s: %w", m.ID, err)
		}
		if t.Version == "" {
			t.Version = m.Version
		}
		return t, m, nil
	}
	t, err := readCSV(dir, m)
	return t, m, err
}

// LoadCSV reads the CSV tables of dir, ignoring any tables.gob.
func LoadCSV(dir string) (Tables, *Manifest, error) {
	m, err := LoadManifest(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return Tables{}, nil, err
	}
	t, err := readCSV(dir, m)
	return t, m, err
}

func readCSV(dir string, m *Manifest) (Tables, error) {
	t := Tables{Version: m.Version}
	r := tableReader{dir: dir, format: m.Format}

	if err := r.each(m.Tables.Models, func(row map[string]string) error {
		first, err := optionalInt(row["first_year"])
		if err != nil {
			return err
		}
		last, err := optionalInt(row["last_year"])
		if err != nil {
			return err
		}
		t.Models = append(t.Models, Model{Brand: row["brand"], Model: row["model"], FirstYear: first, LastYear: last})
		return nil
	}); err != nil {
		return Tables{}, fmt.Errorf("refdata %s: models: %w", m.ID, err)
	}

	if err := r.each(m.Tables.Brands, func(row map[string]string) error {
		w, err := optionalWeight(row["weight"])
		if err != nil {
			return err
		}
		active, err := optionalBool(row["active"])
		if err != nil {
			return err
		}
		t.Brands = append(t.Brands, BrandAlias{Alias: row["alias"], Brand: row["brand"], Weight: w, Active: active})
		return nil
	}); err != nil {
		return Tables{}, fmt.Errorf("refdata %s: brands: %w", m.ID, err)
	}

	if err := r.each(m.Tables.Variants, func(row map[string]string) error {
		w, err := optionalWeight(row["weight"])
		if err != nil {
			return err
		}
		t.Variants = append(t.Variants, ModelVariant{Variant: row["variant"], Brand: row["brand"], Model: row["model"], Weight: w})
		return nil
	}); err != nil {
		return Tables{}, fmt.Errorf("refdata %s: variants: %w", m.ID, err)
	}

	if err := r.each(m.Tables.Typos, func(row map[string]string) error {
		t.Typos = append(t.Typos, canon.Rule{Pattern: row["pattern"], Replacement: row["replacement"]})
		return nil
	}); err != nil {
		return Tables{}, fmt.Errorf("refdata %s: typos: %w", m.ID, err)
	}

	slog.Debug("reference tables read", "id", m.ID, "models", len(t.Models), "brands", len(t.Brands),
		"variants", len(t.Variants), "typos", len(t.Typos))
	return t, nil
}

// Load reads dir and builds a validated snapshot.
func Load(dir string) (*Snapshot, error) {
	t, _, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return Build(t)
}

type tableReader struct {
	dir    string
	format FormatSpec
}

// each calls fn for every data row of file, keyed by lowercased header names.
// A missing file is an empty table.
func (r tableReader) each(file string, fn func(map[string]string) error) error {
	f, err := os.Open(filepath.Join(r.dir, file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	// Transcode non-UTF-8 encodings declared in the manifest.
	var reader io.Reader = f
	if enc := r.format.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		reader = transform.NewReader(f, e.NewDecoder())
	}

	cr := csv.NewReader(reader)
	if delim := r.format.Delimiter; delim != "" {
		cr.Comma = []rune(delim)[0]
	}
	cr.Comment = '#'
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", file, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s row %d: %w", file, line, err)
		}
	}
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// optionalWeight defaults a blank weight to 1.
func optionalWeight(s string) (float64, error) {
	if s == "" {
		return 1, nil
	}
	return strconv.ParseFloat(s, 64)
}

// optionalBool defaults a blank flag to true.
func optionalBool(s string) (bool, error) {
	if s == "" {
		return true, nil
	}
	return strconv.ParseBool(s)
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
