package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	RuleSets []Document `yaml:"rule_sets"`
}

// Decode reads a YAML document of the form
//
//	rule_sets:
//	  - version: 1
//	    placement_points: [100, 80, 70]
//	    ...
//
// Unknown keys are rejected.
func Decode(r io.Reader) ([]*RuleSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("rules.Decode: %w", err)
	}

	out := make([]*RuleSet, 0, len(f.RuleSets))
	for _, doc := range f.RuleSets {
		rs, err := New(doc)
		if err != nil {
			return nil, fmt.Errorf("rules.Decode: %w", err)
		}
		out = append(out, rs)
	}
	return out, nil
}

// LoadFile decodes the rule sets in path.
func LoadFile(path string) ([]*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules.LoadFile: %w", err)
	}
	return Decode(bytes.NewReader(raw))
}

// Encode writes sets in the format Decode reads.
func Encode(w io.Writer, sets ...*RuleSet) error {
	f := fileFormat{RuleSets: make([]Document, 0, len(sets))}
	for _, rs := range sets {
		f.RuleSets = append(f.RuleSets, rs.Document())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("rules.Encode: %w", err)
	}
	return enc.Close()
}
