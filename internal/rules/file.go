package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk representation of a rule table
type File struct {
	// Extend appends the file rules after the built-in table instead of replacing it
	Extend bool          `yaml:"extend"`
	Rules  []CountryRule `yaml:"rules"`
}

// Parse decodes a YAML rule file. Unknown fields are rejected.
func Parse(data []byte) (*Table, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	rules := f.Rules
	if f.Extend {
		rules = append(Default().Rules(), f.Rules...)
	}

	return NewTable(rules)
}

// LoadFile reads and parses a YAML rule file
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return Parse(data)
}

// Load returns the table from path, or the built-in table when path is empty
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
