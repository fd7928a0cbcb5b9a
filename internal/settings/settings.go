// Package settings loads process configuration from the environment, with
// an optional .env file in the working directory.
package settings

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Persistence backends
const (
	PersistenceFile   = "file"
	PersistenceSQLite = "sqlite"
	PersistenceMemory = "memory"
)

// Settings holds everything the server reads from the environment. Command
// line flags override these values.
type Settings struct {
	Host      string `env:"HOST" envDefault:"localhost"`
	Port      int    `env:"PORT" envDefault:"8080"`
	ConfigDir string `env:"CONFIG_DIR" envDefault:"configs"`

	Persistence string `env:"PERSISTENCE" envDefault:"file"`
	SessionsDir string `env:"SESSIONS_DIR" envDefault:"sessions"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"sessions.db"`

	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"5s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	NgrokEnabled bool   `env:"NGROK_ENABLED"`
	NgrokDomain  string `env:"NGROK_DOMAIN"`
	// Both spellings of the token variable are accepted
	NgrokAuthToken    string `env:"NGROK_AUTHTOKEN"`
	NgrokAuthTokenAlt string `env:"NGROK_AUTH_TOKEN"`
}

// Load reads .env (if present) and then the environment
func Load() (*Settings, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are ignored.
// Variables already set in the environment win over file values.
func LoadFiles(files ...string) (*Settings, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if s.NgrokAuthToken == "" {
		s.NgrokAuthToken = s.NgrokAuthTokenAlt
	}
	return &s, s.Validate()
}

// Validate reports settings that cannot be used to start a server
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.ConfigDir == "" {
		return fmt.Errorf("config dir is required")
	}
	switch s.Persistence {
	case PersistenceFile:
		if s.SessionsDir == "" {
			return fmt.Errorf("sessions dir is required for file persistence")
		}
	case PersistenceSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite persistence")
		}
	case PersistenceMemory:
	default:
		return fmt.Errorf("unknown persistence %q (want file, sqlite or memory)", s.Persistence)
	}
	if s.SessionTTL <= 0 || s.CleanupInterval <= 0 || s.SyncInterval <= 0 {
		return fmt.Errorf("session ttl and routine intervals must be positive")
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", s.LogFormat)
	}
	return nil
}

// Addr is the host:port the HTTP server listens on
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Logger builds the process logger writing to w
func (s *Settings) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
