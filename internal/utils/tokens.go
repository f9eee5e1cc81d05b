package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded
	// yet, e.g. during startup while the database is still coming up.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

var tokens struct {
	sync.RWMutex
	cache map[string]int
}

var tokenDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

func postgresDSN(cfg PostgresConfig) (string, error) {
	// Allow a full DSN in the host field.
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	hostPort := cfg.Host
	// Handle IPv6 or explicit host:port strings.
	if strings.HasPrefix(hostPort, "[") {
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	} else if strings.Count(hostPort, ":") >= 2 {
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	} else if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getTokenDB(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	tokenDB.Lock()
	defer tokenDB.Unlock()

	if tokenDB.db != nil && tokenDB.dsn == dsn {
		return tokenDB.db, nil
	}
	if tokenDB.db != nil {
		_ = tokenDB.db.Close()
		tokenDB.db = nil
		tokenDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small control-plane table; a handful of connections is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	tokenDB.db = db
	tokenDB.dsn = dsn
	return tokenDB.db, nil
}

func ensureTokensSchema(cfg PostgresConfig) error {
	db, err := getTokenDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `CREATE TABLE IF NOT EXISTS portal_tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_portal_tokens_created_at ON portal_tokens (created_at);`)
	return err
}

// LoadTokensFromPostgres reads all API tokens and their rate limits from
// Postgres into the in-memory cache.
func LoadTokensFromPostgres(cfg PostgresConfig) error {
	if err := ensureTokensSchema(cfg); err != nil {
		return err
	}

	db, err := getTokenDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit FROM portal_tokens;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]int)
	for rows.Next() {
		var token string
		var limit int
		if err := rows.Scan(&token, &limit); err != nil {
			return err
		}
		cache[token] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tokens.Lock()
	tokens.cache = cache
	tokens.Unlock()
	return nil
}

// LoadTokensFromMap replaces the in-memory token cache with the provided map.
// Intended for tests and local debugging.
func LoadTokensFromMap(m map[string]int) {
	cache := make(map[string]int, len(m))
	for k, v := range m {
		cache[k] = v
	}
	tokens.Lock()
	tokens.cache = cache
	tokens.Unlock()
}

// TokensReady reports whether the token cache has been initialized at least once.
func TokensReady() bool {
	tokens.RLock()
	defer tokens.RUnlock()
	return tokens.cache != nil
}

// ValidateToken checks whether the given token exists in the cache.
func ValidateToken(token string) bool {
	tokens.RLock()
	defer tokens.RUnlock()
	_, ok := tokens.cache[token]
	return ok
}

// GetRateLimit returns the configured rate limit for the given token, or 0
// when the token is unknown (which disables rate limiting for it).
func GetRateLimit(token string) int {
	tokens.RLock()
	defer tokens.RUnlock()
	if limit, ok := tokens.cache[token]; ok {
		return limit
	}
	return 0
}

// RefreshTokensPeriodicallyFromPostgres reloads the token list at the given
// interval until the stop channel is closed.
func RefreshTokensPeriodicallyFromPostgres(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadTokensFromPostgres(cfg); err != nil {
				Error("Failed to reload API tokens", "error", err)
			}
		case <-stop:
			return
		}
	}
}
