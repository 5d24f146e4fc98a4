// Package config loads tally settings from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/storage"
)

// EnvPrefix is the prefix for environment overrides, e.g. TALLY_DATABASE_PATH.
const EnvPrefix = "TALLY"

// EnvKeyReplacer maps nested keys onto environment names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Configuration keys.
const (
	KeyDatabasePath          = "database.path"
	KeyDatabaseMaxConns      = "database.max_conns"
	KeyDatabaseAcquire       = "database.acquire_timeout"
	KeyDatabaseBusy          = "database.busy_timeout"
	KeyServerAddr            = "server.addr"
	KeyServerReadTimeout     = "server.read_timeout"
	KeyServerWriteTimeout    = "server.write_timeout"
	KeyServerShutdownTimeout = "server.shutdown_timeout"
	KeyServerTLS             = "server.tls"
	KeyServerCertDir         = "server.cert_dir"
	KeyIngestMaxBytes        = "ingest.max_bytes"
	KeyLoggingLevel          = "logging.level"
	KeyLoggingFormat         = "logging.format"
)

// Defaults.
const (
	DefaultDatabasePath = "~/.local/share/tally/tally.db"
	DefaultServerAddr   = "127.0.0.1:3000"
	DefaultMaxBytes     = 2 << 20
	DefaultCertDir      = "~/.config/tally/certs"
)

// Config is the resolved application configuration.
type Config struct {
	Logging  LoggingConfig
	Database DatabaseConfig
	Server   ServerConfig
	Ingest   IngestConfig
}

// DatabaseConfig locates the ledger and sizes its pool.
type DatabaseConfig struct {
	Path           string
	MaxConns       int
	AcquireTimeout time.Duration
	BusyTimeout    time.Duration
}

// StorageOptions converts the pool settings for storage.NewSQLiteStorage.
func (d DatabaseConfig) StorageOptions() storage.Options {
	return storage.Options{
		MaxConns:       d.MaxConns,
		AcquireTimeout: d.AcquireTimeout,
		BusyTimeout:    d.BusyTimeout,
	}
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// TLS serves HTTPS with a self-signed certificate kept in CertDir.
	TLS     bool
	CertDir string
}

// IngestConfig bounds uploads.
type IngestConfig struct {
	MaxBytes int64
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyDatabaseMaxConns, storage.DefaultMaxConns)
	v.SetDefault(KeyDatabaseAcquire, storage.DefaultAcquireTimeout)
	v.SetDefault(KeyDatabaseBusy, storage.DefaultBusyTimeout)
	v.SetDefault(KeyServerAddr, DefaultServerAddr)
	v.SetDefault(KeyServerReadTimeout, 15*time.Second)
	v.SetDefault(KeyServerWriteTimeout, 15*time.Second)
	v.SetDefault(KeyServerShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyServerTLS, false)
	v.SetDefault(KeyServerCertDir, DefaultCertDir)
	v.SetDefault(KeyIngestMaxBytes, DefaultMaxBytes)
	v.SetDefault(KeyLoggingLevel, "info")
	v.SetDefault(KeyLoggingFormat, "console")
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			Path:           ExpandPath(v.GetString(KeyDatabasePath)),
			MaxConns:       v.GetInt(KeyDatabaseMaxConns),
			AcquireTimeout: v.GetDuration(KeyDatabaseAcquire),
			BusyTimeout:    v.GetDuration(KeyDatabaseBusy),
		},
		Server: ServerConfig{
			Addr:            v.GetString(KeyServerAddr),
			ReadTimeout:     v.GetDuration(KeyServerReadTimeout),
			WriteTimeout:    v.GetDuration(KeyServerWriteTimeout),
			ShutdownTimeout: v.GetDuration(KeyServerShutdownTimeout),
			TLS:             v.GetBool(KeyServerTLS),
			CertDir:         ExpandPath(v.GetString(KeyServerCertDir)),
		},
		Ingest: IngestConfig{
			MaxBytes: v.GetInt64(KeyIngestMaxBytes),
		},
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLoggingLevel),
			Format: v.GetString(KeyLoggingFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would leave the pool or server unusable.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, KeyDatabasePath+" is empty")
	}
	if c.Database.MaxConns <= 0 {
		problems = append(problems, KeyDatabaseMaxConns+" must be positive")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{KeyDatabaseAcquire, c.Database.AcquireTimeout},
		{KeyDatabaseBusy, c.Database.BusyTimeout},
		{KeyServerReadTimeout, c.Server.ReadTimeout},
		{KeyServerWriteTimeout, c.Server.WriteTimeout},
		{KeyServerShutdownTimeout, c.Server.ShutdownTimeout},
	} {
		if d.value <= 0 {
			problems = append(problems, d.key+" must be positive")
		}
	}
	if c.Ingest.MaxBytes <= 0 {
		problems = append(problems, KeyIngestMaxBytes+" must be positive")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, KeyServerAddr+" is empty")
	}
	if c.Server.TLS && strings.TrimSpace(c.Server.CertDir) == "" {
		problems = append(problems, KeyServerCertDir+" is empty")
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("%s %q is not console or json", KeyLoggingFormat, c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ExpandPath expands a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// Dir returns the directory holding the default config file.
func Dir() string {
	return ExpandPath("~/.config/tally")
}
