package db

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type SQLiteConfig struct {
	BusyTimeoutMs int
	WAL           bool
	ForeignKeys   bool
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Config struct {
	DSN         string
	Pool        PoolConfig
	SQLite      SQLiteConfig
	AutoMigrate bool
}

func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		SQLite: SQLiteConfig{
			BusyTimeoutMs: 5000,
			WAL:           true,
			ForeignKeys:   true,
		},
		AutoMigrate: true,
	}
}

// ResolveSQLiteDSN returns dsn when set. Otherwise it prefers an existing
// ~/.threadbot/threadbot.sqlite, then ./threadbot.sqlite, and finally creates
// ~/.threadbot for a new database.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn != "" {
		return dsn, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	homeDir := filepath.Join(home, ".threadbot")
	homeDB := filepath.Join(homeDir, "threadbot.sqlite")
	localDB := filepath.Clean("./threadbot.sqlite")

	if _, err := os.Stat(homeDB); err == nil {
		return homeDB, nil
	}
	if _, err := os.Stat(localDB); err == nil {
		return localDB, nil
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return "", err
	}
	return homeDB, nil
}

// withPragmas appends go-sqlite3 connection parameters to dsn.
func withPragmas(dsn string, cfg SQLiteConfig) string {
	var params []string
	if cfg.BusyTimeoutMs > 0 {
		params = append(params, "_busy_timeout="+strconv.Itoa(cfg.BusyTimeoutMs))
	}
	if cfg.WAL && !isMemoryDSN(dsn) {
		params = append(params, "_journal_mode=WAL")
	}
	if cfg.ForeignKeys {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
