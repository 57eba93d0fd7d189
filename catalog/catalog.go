// Package catalog holds the schema catalog: logical bundle and field names
// mapped to target-schema identifiers, the language-code map, and the named
// lookup query templates. A Catalog is loaded once per run and never mutated.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Default file names inside the catalog directory.
const (
	BundlesFile   = "bundles.json"
	FieldsFile    = "fields.json"
	LanguagesFile = "lang.json"
	QueriesFile   = "sparql_queries.json"
)

// ConfigError reports a missing or malformed catalog entry or file.
// It is fatal: a run must not start with an incomplete catalog.
type ConfigError struct {
	Kind string // "bundle", "field", "query", "file"
	Key  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("catalog %s %q not defined", e.Kind, e.Key)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Catalog maps logical keys to target-schema identifiers.
type Catalog struct {
	bundles   map[string]string
	fields    map[string]string
	languages map[string]string
	queries   map[string]string
}

// New builds a Catalog from in-memory maps. The maps are copied.
func New(bundles, fields, languages, queries map[string]string) *Catalog {
	return &Catalog{
		bundles:   copyMap(bundles),
		fields:    copyMap(fields),
		languages: copyMap(languages),
		queries:   copyMap(queries),
	}
}

// Files names the four catalog documents. Empty LanguagesFile disables the
// language map.
type Files struct {
	Bundles   string `yaml:"bundles"`
	Fields    string `yaml:"fields"`
	Languages string `yaml:"languages"`
	Queries   string `yaml:"queries"`
}

// DefaultFiles returns the conventional file names.
func DefaultFiles() Files {
	return Files{
		Bundles:   BundlesFile,
		Fields:    FieldsFile,
		Languages: LanguagesFile,
		Queries:   QueriesFile,
	}
}

// Load reads the catalog documents from dir.
func Load(dir string, files Files) (*Catalog, error) {
	bundles, err := readMap(filepath.Join(dir, files.Bundles))
	if err != nil {
		return nil, err
	}
	fields, err := readMap(filepath.Join(dir, files.Fields))
	if err != nil {
		return nil, err
	}
	queries, err := readMap(filepath.Join(dir, files.Queries))
	if err != nil {
		return nil, err
	}
	languages := map[string]string{}
	if files.Languages != "" {
		if languages, err = readMap(filepath.Join(dir, files.Languages)); err != nil {
			return nil, err
		}
	}

	return &Catalog{
		bundles:   bundles,
		fields:    fields,
		languages: languages,
		queries:   queries,
	}, nil
}

func readMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Kind: "file", Key: path, Err: err}
	}
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ConfigError{Kind: "file", Key: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return m, nil
}

// Bundle returns the bundle id for a logical bundle key.
func (c *Catalog) Bundle(key string) (string, error) {
	return lookup(c.bundles, "bundle", key)
}

// Field returns the field id for a logical field key.
func (c *Catalog) Field(key string) (string, error) {
	return lookup(c.fields, "field", key)
}

// Query returns the query template registered under name.
func (c *Catalog) Query(name string) (string, error) {
	return lookup(c.queries, "query", name)
}

// Language maps a language code to its label. Unknown codes map to themselves.
func (c *Catalog) Language(code string) string {
	if label, ok := c.languages[code]; ok && label != "" {
		return label
	}
	return code
}

func lookup(m map[string]string, kind, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", &ConfigError{Kind: kind, Key: key}
	}
	return v, nil
}

// Requirements lists the keys a component needs from the catalog.
type Requirements struct {
	Bundles []string
	Fields  []string
	Queries []string
}

// Merge appends other's keys.
func (r Requirements) Merge(other Requirements) Requirements {
	return Requirements{
		Bundles: append(append([]string{}, r.Bundles...), other.Bundles...),
		Fields:  append(append([]string{}, r.Fields...), other.Fields...),
		Queries: append(append([]string{}, r.Queries...), other.Queries...),
	}
}

// Require checks that every key in req is defined. All missing keys are
// reported together.
func (c *Catalog) Require(req Requirements) error {
	var errs []error
	for _, k := range req.Bundles {
		if _, err := c.Bundle(k); err != nil {
			errs = append(errs, err)
		}
	}
	for _, k := range req.Fields {
		if _, err := c.Field(k); err != nil {
			errs = append(errs, err)
		}
	}
	for _, k := range req.Queries {
		if _, err := c.Query(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueryNames returns the registered query template names, sorted.
func (c *Catalog) QueryNames() []string {
	names := make([]string, 0, len(c.queries))
	for k := range c.queries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
