package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadDataset reads a dataset definition. JSON definitions are valid YAML,
// so both formats go through the same decoder.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(path, data)
}

// ParseDataset decodes and validates a dataset definition.
func ParseDataset(path string, data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDataset, path, err)
	}
	ds.Path = path
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ResolvePath resolves a path from the dataset definition against the
// directory of the definition file.
func (d *Dataset) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || d.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(d.Path), p)
}
