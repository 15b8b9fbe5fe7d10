// CLAUDE:SUMMARY Manifest YAML schema naming the reference CSV tables, their version and the CSV format spec.
package refdata

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a reference data directory: its provenance, the CSV file
// of each table and how to read them.
type Manifest struct {
	ID      string     `yaml:"id" json:"id"`
	Version string     `yaml:"version" json:"version"`
	Source  string     `yaml:"source" json:"source"`
	License string     `yaml:"license" json:"license,omitempty"`
	Tables  TableFiles `yaml:"tables" json:"tables"`
	Format  FormatSpec `yaml:"format" json:"-"`
}

// TableFiles names the CSV file of each table, relative to the manifest.
type TableFiles struct {
	Models   string `yaml:"models" json:"models,omitempty"`
	Brands   string `yaml:"brands" json:"brands,omitempty"`
	Variants string `yaml:"variants" json:"variants,omitempty"`
	Typos    string `yaml:"typos" json:"typos,omitempty"`
}

// FormatSpec describes the CSV layout shared by all tables. Tables always
// carry a header row; columns are addressed by name.
type FormatSpec struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
}

// LoadManifest reads and parses a manifest.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest %s: missing id", path)
	}
	if m.Tables.Models == "" {
		m.Tables.Models = "models.csv"
	}
	if m.Tables.Brands == "" {
		m.Tables.Brands = "brands.csv"
	}
	if m.Tables.Variants == "" {
		m.Tables.Variants = "variants.csv"
	}
	if m.Tables.Typos == "" {
		m.Tables.Typos = "typos.csv"
	}
	return &m, nil
}

// WriteManifest writes m as YAML to dir/manifest.yaml.
func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.yaml"), data, 0o644)
}
