// Package config loads and validates Sombra's on-disk configuration.
// The on-disk format is YAML, matching the library the corpus already
// depends on for structured config files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

// SyncMode controls how aggressively the WAL is fsynced.
type SyncMode string

const (
	SyncFull        SyncMode = "full"
	SyncNormal      SyncMode = "normal"
	SyncGroupCommit SyncMode = "group_commit"
	SyncOff         SyncMode = "off"
)

// ChecksumMode toggles per-page CRC32 validation.
type ChecksumMode string

const (
	ChecksumOn  ChecksumMode = "on"
	ChecksumOff ChecksumMode = "off"
)

// Config holds every option recognized by Sombra (spec §6).
type Config struct {
	PageSize      int `yaml:"page_size"`
	CachePages    int `yaml:"cache_pages"`

	WALSyncMode        SyncMode `yaml:"wal_sync_mode"`
	WALSyncEveryN      int      `yaml:"wal_sync_every_n"`      // for Normal(N)
	WALGroupCommitMs   int      `yaml:"wal_group_commit_ms"`   // for GroupCommit(window_ms)

	AutoCheckpointWALBytes  int64 `yaml:"auto_checkpoint_wal_bytes"`
	AutoCheckpointInterval  time.Duration `yaml:"auto_checkpoint_interval_ms"`
	VacuumInterval          time.Duration `yaml:"vacuum_interval_ms"`

	MaxWALSizeBytes      int64 `yaml:"max_wal_size_bytes"`
	MaxTransactionPages  int   `yaml:"max_transaction_pages"`
	MaxDatabaseSizeBytes int64 `yaml:"max_database_size_bytes"`

	ReaderTimeout      time.Duration `yaml:"reader_timeout_ms"`
	TransactionTimeout time.Duration `yaml:"transaction_timeout_ms"`

	ChecksumMode ChecksumMode `yaml:"checksum_mode"`

	PropertyIndexEnabled   bool `yaml:"property_index_enabled"`
	DistinctNeighborsDefault bool `yaml:"distinct_neighbors_default"`

	VacuumRetention time.Duration `yaml:"vacuum_retention"`

	// MaxRecordSize is the configured per-record size limit (§4.3). The
	// record store does not read it; it rejects only a record that does
	// not fit in an empty page.
	MaxRecordSize int `yaml:"max_record_size"`
}

// Default returns Sombra's built-in defaults.
func Default() Config {
	return Config{
		PageSize:               8192,
		CachePages:             1024,
		WALSyncMode:            SyncFull,
		WALSyncEveryN:          100,
		WALGroupCommitMs:       10,
		AutoCheckpointWALBytes: 64 << 20,
		AutoCheckpointInterval: 30 * time.Second,
		VacuumInterval:         60 * time.Second,
		MaxWALSizeBytes:        512 << 20,
		MaxTransactionPages:    100000,
		MaxDatabaseSizeBytes:   0, // unlimited
		ReaderTimeout:          0, // unlimited
		TransactionTimeout:     0, // unlimited
		ChecksumMode:           ChecksumOn,
		PropertyIndexEnabled:   true,
		DistinctNeighborsDefault: true,
		VacuumRetention:        0,
		MaxRecordSize:          1 << 20,
	}
}

// Load reads a YAML config file and merges it over Default. A missing
// file is not an error — Default() alone is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, sombraerr.Wrap(sombraerr.Io, "config.Load", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, sombraerr.Wrap(sombraerr.InvalidArgument, "config.Load", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks internal consistency of a Config.
func (c Config) Validate() error {
	if c.PageSize < 4096 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		return sombraerr.Newf(sombraerr.InvalidArgument, "config.Validate",
			"page_size %d must be a power of two in [4096, 65536]", c.PageSize)
	}
	switch c.WALSyncMode {
	case SyncFull, SyncNormal, SyncGroupCommit, SyncOff:
	default:
		return sombraerr.Newf(sombraerr.InvalidArgument, "config.Validate", "unknown wal_sync_mode %q", c.WALSyncMode)
	}
	switch c.ChecksumMode {
	case ChecksumOn, ChecksumOff:
	default:
		return sombraerr.Newf(sombraerr.InvalidArgument, "config.Validate", "unknown checksum_mode %q", c.ChecksumMode)
	}
	return nil
}
