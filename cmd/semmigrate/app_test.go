package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semmigrate/vocabulary"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "semmigrate version "+Version)
}

func TestRootCommands(t *testing.T) {
	cmd := rootCmd()
	want := []string{"ingest", "retry", "stage", "sync", "affiliations", "update", "catalog", "version"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	sub, _, err := cmd.Find([]string{"sync", "authorities"})
	require.NoError(t, err)
	assert.Equal(t, "authorities", sub.Name())

	sub, _, err = cmd.Find([]string{"ingest", "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", sub.Name())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "record", "dre-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "dre-1", line["record"])

	_, err = newLogger(&buf, "verbose", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

const pathbuilderExport = `<?xml version="1.0"?>
<pathbuilderinterface>
  <path><id>g_research_data_item</id><is_group>1</is_group><bundle>b1f0</bundle><field></field></path>
  <path><id>f_title</id><is_group>0</is_group><bundle>b1f0</bundle><field>f9a2</field></path>
</pathbuilderinterface>`

func TestCatalogImport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	exportPath := filepath.Join(dir, "pathbuilder.xml")
	require.NoError(t, os.WriteFile(exportPath, []byte(pathbuilderExport), 0644))

	catalogDir := filepath.Join(dir, "catalog")
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("catalog:\n  dir: "+catalogDir+"\n"), 0644))

	out, err := execute(t, "catalog", "import", "--export", exportPath, "--config", cfgPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 bundles and 1 fields")

	data, err := os.ReadFile(filepath.Join(catalogDir, "bundles.json"))
	require.NoError(t, err)
	var bundles map[string]string
	require.NoError(t, json.Unmarshal(data, &bundles))
	assert.Equal(t, "b1f0", bundles["g_research_data_item"])
}

func TestStageRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "stage", "--format", "rdfxml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported format"))
}

func TestUpdateRequiresStep(t *testing.T) {
	_, err := execute(t, "update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--step")
}

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds([]string{"persons", "institutions"})
	require.NoError(t, err)
	assert.Equal(t, []vocabulary.Kind{vocabulary.Persons, vocabulary.Institutions}, kinds)

	_, err = parseKinds([]string{"planets"})
	assert.Error(t, err)
}
