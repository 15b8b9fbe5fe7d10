// CLAUDE:SUMMARY Gob serialization of the reference tables, written beside the manifest for fast loading.
package refdata

import (
	"encoding/gob"
	"fmt"
	"os"
)

// GobFile is the precompiled tables file that takes priority over the CSVs.
const GobFile = "tables.gob"

func loadGob(path string) (Tables, error) {
	var t Tables
	f, err := os.Open(path)
	if err != nil {
		return t, fmt.Errorf("open gob file: %w", err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&t); err != nil {
		return t, fmt.Errorf("decode gob: %w", err)
	}
	return t, nil
}

// SaveGob serializes tables to a gob-encoded file at path.
func SaveGob(t Tables, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create gob file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(t); err != nil {
		return fmt.Errorf("encode gob: %w", err)
	}
	return nil
}
