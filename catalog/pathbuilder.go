package catalog

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pathbuilderExport mirrors the structural export of the target schema.
type pathbuilderExport struct {
	XMLName xml.Name          `xml:"pathbuilderinterface"`
	Paths   []pathbuilderPath `xml:"path"`
}

type pathbuilderPath struct {
	ID      string `xml:"id"`
	IsGroup string `xml:"is_group"`
	Bundle  string `xml:"bundle"`
	Field   string `xml:"field"`
}

// SchemaMaps are the bundle and field id maps extracted from an export.
type SchemaMaps struct {
	Bundles map[string]string
	Fields  map[string]string
}

// ParsePathbuilder reads a pathbuilder export. Group paths map to bundle ids,
// all other paths map to field ids.
func ParsePathbuilder(r io.Reader) (*SchemaMaps, error) {
	var export pathbuilderExport
	if err := xml.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode pathbuilder export: %w", err)
	}

	maps := &SchemaMaps{
		Bundles: make(map[string]string),
		Fields:  make(map[string]string),
	}
	for _, p := range export.Paths {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		switch strings.TrimSpace(p.IsGroup) {
		case "1":
			maps.Bundles[id] = strings.TrimSpace(p.Bundle)
		case "0":
			maps.Fields[id] = strings.TrimSpace(p.Field)
		}
	}
	if len(maps.Bundles) == 0 && len(maps.Fields) == 0 {
		return nil, fmt.Errorf("pathbuilder export contains no paths")
	}
	return maps, nil
}

// ParsePathbuilderFile reads a pathbuilder export from disk.
func ParsePathbuilderFile(path string) (*SchemaMaps, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pathbuilder export: %w", err)
	}
	defer f.Close()
	return ParsePathbuilder(f)
}

// Save writes the maps into dir as the bundle and field documents named in files.
func (m *SchemaMaps) Save(dir string, files Files) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, files.Bundles), m.Bundles); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, files.Fields), m.Fields)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LatestExport returns the most recently modified file matching pattern
// (doublestar syntax, e.g. "pathbuilder/**/amo_ecrm__v01_dev_pb*.xml").
func LatestExport(pattern string) (string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", pattern, err)
	}

	var (
		latest  string
		latestT int64
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if t := info.ModTime().UnixNano(); latest == "" || t > latestT {
			latest, latestT = m, t
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no pathbuilder export matches %q", pattern)
	}
	return latest, nil
}
