// Package config provides configuration loading and management for semmigrate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/export"
	"github.com/c360studio/semmigrate/remote"
	"github.com/c360studio/semmigrate/staging"
	"github.com/c360studio/semmigrate/upload"
	"github.com/c360studio/semmigrate/vocabulary"
)

// Config represents the complete semmigrate configuration
type Config struct {
	SPARQL  RemoteConfig       `yaml:"sparql"`
	Store   RemoteConfig       `yaml:"store"`
	Retry   remote.RetryConfig `yaml:"retry"`
	Catalog CatalogConfig      `yaml:"catalog"`
	Mongo   MongoConfig        `yaml:"mongo"`
	Cache   CacheConfig        `yaml:"cache"`
	Upload  upload.Options     `yaml:"upload"`
	Easydb  EasydbConfig       `yaml:"easydb"`
	Staging staging.Options    `yaml:"staging"`
	Export  export.Namespace   `yaml:"export"`
	Metrics MetricsConfig      `yaml:"metrics"`
}

// RemoteConfig configures one of the two remote services.
type RemoteConfig struct {
	// URL is the SPARQL endpoint or the store's base URL
	URL string `yaml:"url"`
	// Username and Password enable basic auth; prefer the environment
	// overrides over writing them to a file
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// Timeout bounds one request
	Timeout time.Duration `yaml:"timeout"`
	// Headers are sent with every request
	Headers map[string]string `yaml:"headers,omitempty"`
}

// CatalogConfig locates the schema catalog documents.
type CatalogConfig struct {
	// Dir holds the bundle, field, language and query documents
	Dir   string        `yaml:"dir"`
	Files catalog.Files `yaml:"files"`
	// ExportPattern globs pathbuilder exports for `catalog import`
	ExportPattern string `yaml:"export_pattern"`
}

// MongoConfig configures the document-database source.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// Collections maps vocabulary kind names to their source collections
	Collections map[string]vocabulary.MongoCollection `yaml:"collections,omitempty"`
}

// CacheConfig configures the persistent resolution cache.
type CacheConfig struct {
	// NATSURL enables the JetStream KV cache; empty keeps the cache in memory
	NATSURL string        `yaml:"nats_url"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// EasydbConfig configures uploads of easydb exports.
type EasydbConfig struct {
	// ExistsTemplate looks up an easydb global object id in the store
	ExistsTemplate string `yaml:"exists_template"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Textfile is written at the end of each command when set
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SPARQL: RemoteConfig{
			URL:     "http://localhost:3030/wisski/sparql",
			Timeout: 30 * time.Second,
		},
		Store: RemoteConfig{
			URL:     "http://localhost:8080/wisski/api",
			Timeout: 60 * time.Second,
		},
		Retry: remote.DefaultRetryConfig(),
		Catalog: CatalogConfig{
			Dir:           "catalog",
			Files:         catalog.DefaultFiles(),
			ExportPattern: "pathbuilder*.xml",
		},
		Mongo: MongoConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "dre",
			Collection:  "item",
			Collections: vocabulary.DefaultMongoCollections(),
		},
		Cache: CacheConfig{
			NATSURL: "",
			Bucket:  "SEMMIGRATE_RESOLUTIONS",
			Timeout: 5 * time.Second,
		},
		Upload:  upload.DefaultOptions(),
		Easydb:  EasydbConfig{ExistsTemplate: "easydbID"},
		Staging: staging.DefaultOptions(),
		Export:  export.DefaultNamespace("http://localhost:8080/wisski"),
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.SPARQL.URL == "" {
		return fmt.Errorf("sparql.url is required")
	}
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Catalog.Dir == "" {
		return fmt.Errorf("catalog.dir is required")
	}
	if c.Catalog.Files.Bundles == "" || c.Catalog.Files.Fields == "" || c.Catalog.Files.Queries == "" {
		return fmt.Errorf("catalog.files must name the bundles, fields and queries documents")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1")
	}
	if c.Upload.Limit < 0 || c.Upload.PerCategory < 0 {
		return fmt.Errorf("upload limits must not be negative")
	}
	if c.Upload.PerCategory > 0 && c.Upload.CategoryPath == "" {
		return fmt.Errorf("upload.category_path is required with upload.per_category")
	}
	if c.Cache.NATSURL != "" && c.Cache.Bucket == "" {
		return fmt.Errorf("cache.bucket is required with cache.nats_url")
	}
	if len(c.Staging.HolderTemplates) == 0 {
		return fmt.Errorf("staging.holder_templates must not be empty")
	}
	return nil
}

// SPARQLClient returns the remote client settings for the lookup endpoint.
func (c *Config) SPARQLClient() remote.Config {
	return c.SPARQL.client("sparql", c.Retry)
}

// StoreClient returns the remote client settings for the target store.
func (c *Config) StoreClient() remote.Config {
	return c.Store.client("store", c.Retry)
}

func (r RemoteConfig) client(service string, retry remote.RetryConfig) remote.Config {
	return remote.Config{
		Service:  service,
		Timeout:  r.Timeout,
		Username: r.Username,
		Password: r.Password,
		Headers:  r.Headers,
		Retry:    retry,
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	c.SPARQL.merge(other.SPARQL)
	c.Store.merge(other.Store)

	// Retry
	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BackoffBase != 0 {
		c.Retry.BackoffBase = other.Retry.BackoffBase
	}
	if other.Retry.BackoffMultiplier != 0 {
		c.Retry.BackoffMultiplier = other.Retry.BackoffMultiplier
	}
	if other.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = other.Retry.MaxBackoff
	}

	// Catalog
	if other.Catalog.Dir != "" {
		c.Catalog.Dir = other.Catalog.Dir
	}
	setString(&c.Catalog.Files.Bundles, other.Catalog.Files.Bundles)
	setString(&c.Catalog.Files.Fields, other.Catalog.Files.Fields)
	setString(&c.Catalog.Files.Languages, other.Catalog.Files.Languages)
	setString(&c.Catalog.Files.Queries, other.Catalog.Files.Queries)
	setString(&c.Catalog.ExportPattern, other.Catalog.ExportPattern)

	// Mongo
	setString(&c.Mongo.URI, other.Mongo.URI)
	setString(&c.Mongo.Database, other.Mongo.Database)
	setString(&c.Mongo.Collection, other.Mongo.Collection)
	for kind, coll := range other.Mongo.Collections {
		if c.Mongo.Collections == nil {
			c.Mongo.Collections = make(map[string]vocabulary.MongoCollection)
		}
		c.Mongo.Collections[kind] = coll
	}

	// Cache
	setString(&c.Cache.NATSURL, other.Cache.NATSURL)
	setString(&c.Cache.Bucket, other.Cache.Bucket)
	if other.Cache.Timeout != 0 {
		c.Cache.Timeout = other.Cache.Timeout
	}

	// Upload
	setString(&c.Upload.KeyPath, other.Upload.KeyPath)
	setString(&c.Upload.ExistsTemplate, other.Upload.ExistsTemplate)
	setString(&c.Upload.CategoryPath, other.Upload.CategoryPath)
	setString(&c.Upload.ArtifactPath, other.Upload.ArtifactPath)
	if other.Upload.Limit != 0 {
		c.Upload.Limit = other.Upload.Limit
	}
	if other.Upload.PerCategory != 0 {
		c.Upload.PerCategory = other.Upload.PerCategory
	}

	// Easydb
	setString(&c.Easydb.ExistsTemplate, other.Easydb.ExistsTemplate)

	// Staging
	setString(&c.Staging.DateLayout, other.Staging.DateLayout)
	setString(&c.Staging.DigitalPhotoObjectType, other.Staging.DigitalPhotoObjectType)
	for code, label := range other.Staging.GenreAuthorities {
		if c.Staging.GenreAuthorities == nil {
			c.Staging.GenreAuthorities = make(map[string]string)
		}
		c.Staging.GenreAuthorities[code] = label
	}
	if len(other.Staging.HolderTemplates) > 0 {
		c.Staging.HolderTemplates = other.Staging.HolderTemplates
	}

	// Export
	setString(&c.Export.Bundle, other.Export.Bundle)
	setString(&c.Export.Field, other.Export.Field)
	setString(&c.Export.Item, other.Export.Item)

	// Metrics
	setString(&c.Metrics.Textfile, other.Metrics.Textfile)
}

func (r *RemoteConfig) merge(other RemoteConfig) {
	setString(&r.URL, other.URL)
	setString(&r.Username, other.Username)
	setString(&r.Password, other.Password)
	if other.Timeout != 0 {
		r.Timeout = other.Timeout
	}
	for k, v := range other.Headers {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[k] = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
