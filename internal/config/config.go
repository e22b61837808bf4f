// Package config provides configuration for the partwise CLI and plan service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/planner"
)

// Mode represents what the binary does.
type Mode string

const (
	// ModeDDL prints the declared partition DDL without touching a database.
	ModeDDL Mode = "ddl"
	// ModePlan reconciles the declared tables against the database once.
	ModePlan Mode = "plan"
	// ModeServe runs the gRPC plan service.
	ModeServe Mode = "serve"
)

// Config holds the configuration for all modes.
type Config struct {
	// Mode specifies what to run: ddl, plan, serve
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for the manifest and local storage
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Manifest configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Tables are the declared partitioned tables
	Tables []TableConfig `json:"tables" yaml:"tables"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	URL string `json:"url" yaml:"url"`

	// MaxConns is the maximum pool size
	MaxConns int32 `json:"max_conns" yaml:"max_conns"`

	// DefaultSchema is used for table names without a schema
	DefaultSchema string `json:"default_schema" yaml:"default_schema"`

	// ConnectTimeout bounds the initial connection and ping
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ManifestConfig holds plan retention configuration.
type ManifestConfig struct {
	// Retention is how long plans are kept; 0 keeps them forever
	Retention time.Duration `json:"retention" yaml:"retention"`

	// KeepLatest plans are never pruned regardless of age
	KeepLatest int `json:"keep_latest" yaml:"keep_latest"`
}

// jsonDuration reads a duration from JSON as either a string accepted by
// time.ParseDuration ("24h") or integer nanoseconds, matching what YAML
// files accept.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = jsonDuration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s: %w", data, err)
	}
	*d = jsonDuration(n)
	return nil
}

// UnmarshalJSON accepts connect_timeout as a duration string.
func (c *DatabaseConfig) UnmarshalJSON(data []byte) error {
	type plain DatabaseConfig
	aux := struct {
		*plain
		ConnectTimeout jsonDuration `json:"connect_timeout"`
	}{plain: (*plain)(c), ConnectTimeout: jsonDuration(c.ConnectTimeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ConnectTimeout = time.Duration(aux.ConnectTimeout)
	return nil
}

// UnmarshalJSON accepts retention as a duration string.
func (m *ManifestConfig) UnmarshalJSON(data []byte) error {
	type plain ManifestConfig
	aux := struct {
		*plain
		Retention jsonDuration `json:"retention"`
	}{plain: (*plain)(m), Retention: jsonDuration(m.Retention)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Retention = time.Duration(aux.Retention)
	return nil
}

// TableConfig declares the partitioning of one table.
type TableConfig struct {
	// Name is the table name, optionally schema-qualified
	Name string `json:"name" yaml:"name"`

	// IgnorePartitionsInMigration only compares the partition key columns
	IgnorePartitionsInMigration bool `json:"ignore_partitions_in_migration" yaml:"ignore_partitions_in_migration"`

	// Partitioning is the declared strategy
	Partitioning PartitioningConfig `json:"partitioning" yaml:"partitioning"`
}

// PartitioningConfig declares a strategy. Bound values are SQL literal
// text and are emitted verbatim, e.g. "'2024-01-01'" or "MINVALUE".
type PartitioningConfig struct {
	Strategy string        `json:"strategy" yaml:"strategy"`
	Columns  []string      `json:"columns" yaml:"columns"`
	Ranges   []RangeConfig `json:"ranges" yaml:"ranges"`
	Lists    []ListConfig  `json:"lists" yaml:"lists"`
	Modulus  int           `json:"modulus" yaml:"modulus"`
}

// RangeConfig is one declared range partition.
type RangeConfig struct {
	Suffix string `json:"suffix" yaml:"suffix"`
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
}

// ListConfig is one declared list partition.
type ListConfig struct {
	Suffix string   `json:"suffix" yaml:"suffix"`
	Values []string `json:"values" yaml:"values"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModePlan,
		DataDir: "./data/partwise",
		Database: DatabaseConfig{
			MaxConns:       4,
			DefaultSchema:  "public",
			ConnectTimeout: 10 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Manifest: ManifestConfig{
			KeepLatest: 10,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/partwise"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	if c.Database.DefaultSchema == "" {
		c.Database.DefaultSchema = "public"
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDDL, ModePlan, ModeServe:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be ddl, plan, or serve)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Mode != ModeDDL && c.Database.URL == "" {
		return fmt.Errorf("database.url is required in %s mode", c.Mode)
	}

	if c.Mode == ModeServe && c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when gRPC is enabled")
	}

	if c.Manifest.Retention < 0 || c.Manifest.KeepLatest < 0 {
		return fmt.Errorf("manifest.retention and manifest.keep_latest must not be negative")
	}

	if c.Mode != ModeServe && len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required in %s mode", c.Mode)
	}

	seen := make(map[string]bool)
	for i := range c.Tables {
		spec, err := c.Tables[i].Spec()
		if err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
		key := spec.Table.WithDefaultSchema(c.Database.DefaultSchema).String()
		if seen[key] {
			return fmt.Errorf("tables[%d]: %s is declared twice", i, key)
		}
		seen[key] = true
	}

	return nil
}

// Strategy builds the declared partition strategy of the table.
func (t *TableConfig) Strategy() (partition.Strategy, error) {
	p := t.Partitioning
	switch strings.ToLower(p.Strategy) {
	case "range":
		s, err := partition.NewRangeStrategy(p.Columns...)
		if err != nil {
			return nil, err
		}
		for _, r := range p.Ranges {
			if _, err := s.AddRange(r.Suffix, partition.Raw(r.From), partition.Raw(r.To)); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "list":
		s, err := partition.NewListStrategy(p.Columns...)
		if err != nil {
			return nil, err
		}
		for _, l := range p.Lists {
			values := make([]partition.Literal, len(l.Values))
			for i, v := range l.Values {
				values[i] = partition.Raw(v)
			}
			if _, err := s.AddList(l.Suffix, values...); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "hash":
		s, err := partition.NewHashStrategy(p.Columns...)
		if err != nil {
			return nil, err
		}
		if err := s.AddModulus(p.Modulus); err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("invalid partitioning strategy %q (must be range, list, or hash)", p.Strategy)
	}
}

// Spec converts the table declaration into a planner input.
func (t *TableConfig) Spec() (planner.TableSpec, error) {
	name, err := partition.ParseTableName(t.Name)
	if err != nil {
		return planner.TableSpec{}, err
	}
	strategy, err := t.Strategy()
	if err != nil {
		return planner.TableSpec{}, fmt.Errorf("table %s: %w", name, err)
	}
	return planner.TableSpec{
		Table:            name,
		Desired:          strategy,
		IgnorePartitions: t.IgnorePartitionsInMigration,
	}, nil
}

// TableSpecs converts every declared table into planner inputs.
func (c *Config) TableSpecs() ([]planner.TableSpec, error) {
	specs := make([]planner.TableSpec, 0, len(c.Tables))
	for i := range c.Tables {
		spec, err := c.Tables[i].Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PARTWISE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PARTWISE_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("PARTWISE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Database configuration
	if v := os.Getenv("PARTWISE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PARTWISE_DATABASE_MAX_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.MaxConns)
	}
	if v := os.Getenv("PARTWISE_DATABASE_DEFAULT_SCHEMA"); v != "" {
		cfg.Database.DefaultSchema = v
	}
	if v := os.Getenv("PARTWISE_DATABASE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.ConnectTimeout = d
		}
	}

	// gRPC configuration
	if v := os.Getenv("PARTWISE_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("PARTWISE_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("PARTWISE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("PARTWISE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PARTWISE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("PARTWISE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("PARTWISE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("PARTWISE_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Manifest configuration
	if v := os.Getenv("PARTWISE_MANIFEST_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Manifest.Retention = d
		}
	}
	if v := os.Getenv("PARTWISE_MANIFEST_KEEP_LATEST"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Manifest.KeepLatest)
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
