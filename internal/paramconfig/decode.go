// Package paramconfig loads the parameter configuration (aliases, categories
// and expected units) and keeps the derived index behind a swappable
// snapshot.
package paramconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

// Top-level keys every parameter configuration must carry.
const (
	KeyAliases       = "aliases"
	KeyCategoryMap   = "category_map"
	KeyExpectedUnits = "expected_units"
)

var (
	ErrNotFound   = errors.New("parameter configuration not found")
	ErrIncomplete = errors.New("parameter configuration incomplete")
	ErrMalformed  = errors.New("parameter configuration malformed")
)

// Format is the encoding of a configuration file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension; anything that is not
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// field is one key of a configuration section, in file order.
type field struct {
	key   string
	value interface{}
}

// document holds the three sections with their entries in file order.
type document map[string][]field

// Decode parses a configuration document. Entry order is preserved so that
// later declarations win when synonyms or categories collide. The returned
// warnings describe entries that were skipped.
func Decode(data []byte, format Format) (*labparse.Configuration, []string, error) {
	var (
		doc document
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data)
	default:
		doc, err = decodeJSON(data)
	}
	if err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, k := range []string{KeyAliases, KeyCategoryMap, KeyExpectedUnits} {
		if _, ok := doc[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	cfg, warnings := build(doc)
	return cfg, warnings, nil
}

// decodeJSON validates data as strict JSON and then reads it through the
// YAML decoder, which keeps mapping keys in file order.
func decodeJSON(data []byte) (document, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodeYAML(unescapeSolidus(data))
}

// unescapeSolidus rewrites the JSON escape \/ as a plain slash. YAML double
// quoted scalars have no such escape.
func unescapeSolidus(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\/`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			if i+1 < len(data) && data[i+1] == '/' {
				continue
			}
			escaped = true
		case c == '"':
			inString = !inString
		}
		out = append(out, c)
	}
	return out
}

func decodeYAML(data []byte) (document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping at the top level", ErrMalformed)
	}
	top := root.Content[0]
	doc := make(document)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, section := top.Content[i].Value, top.Content[i+1]
		switch key {
		case KeyAliases, KeyCategoryMap, KeyExpectedUnits:
		default:
			continue
		}
		if section.Tag == "!!null" {
			doc[key] = nil
			continue
		}
		if section.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: %s: expected a mapping", ErrMalformed, key)
		}
		var entries []field
		for j := 0; j+1 < len(section.Content); j += 2 {
			var v interface{}
			if err := section.Content[j+1].Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrMalformed, key, section.Content[j].Value, err)
			}
			entries = append(entries, field{key: section.Content[j].Value, value: v})
		}
		doc[key] = entries
	}
	return doc, nil
}

func build(doc document) (*labparse.Configuration, []string) {
	cfg := &labparse.Configuration{ExpectedUnits: make(map[string]labparse.Expectation)}
	var warnings []string

	for _, f := range doc[KeyAliases] {
		syns, ok := stringList(f.value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("aliases.%s: expected a list of strings, skipped", f.key))
			continue
		}
		cfg.Aliases = append(cfg.Aliases, labparse.AliasEntry{Parameter: f.key, Synonyms: syns})
	}

	for _, f := range doc[KeyCategoryMap] {
		params, ok := stringList(f.value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("category_map.%s: expected a list of strings, skipped", f.key))
			continue
		}
		cfg.Categories = append(cfg.Categories, labparse.CategoryEntry{Category: f.key, Parameters: params})
	}

	for _, f := range doc[KeyExpectedUnits] {
		exp, ok := expectation(f.value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("expected_units.%s: expected null, a string or a list of strings, skipped", f.key))
			continue
		}
		cfg.ExpectedUnits[f.key] = exp
	}
	return cfg, warnings
}

func stringList(v interface{}) ([]string, bool) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func expectation(v interface{}) (labparse.Expectation, bool) {
	switch t := v.(type) {
	case nil:
		return labparse.NoUnit(), true
	case string:
		return labparse.ExpectationFromString(t), true
	case []interface{}:
		units, ok := stringList(t)
		if !ok {
			return labparse.Expectation{}, false
		}
		for i := range units {
			units[i] = labparse.CanonicalUnit(units[i])
		}
		return labparse.Units(units...), true
	}
	return labparse.Expectation{}, false
}
