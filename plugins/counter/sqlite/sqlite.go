package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"rfpreq/pkg/contract"
)

// DefaultPath: 默认数据库文件。
const DefaultPath = "req_counters.db"

// Options: SQLite 计数器配置。
type Options struct {
	Path string `json:"path"`
	// BusyTimeoutMS: 跨进程写锁等待，默认 5000。
	BusyTimeoutMS int `json:"busy_timeout_ms"`
}

const schema = `CREATE TABLE IF NOT EXISTS req_counters (
	prefix TEXT PRIMARY KEY,
	seq    INTEGER NOT NULL
)`

const upsert = `INSERT INTO req_counters (prefix, seq) VALUES (?, 1)
	ON CONFLICT(prefix) DO UPDATE SET seq = seq + 1
	RETURNING seq`

// Store 以单条 UPSERT ... RETURNING 原子递增；单连接串行化本进程写入。
type Store struct {
	db *sql.DB
}

func Open(opts *Options) (*Store, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if strings.TrimSpace(o.Path) == "" {
		o.Path = DefaultPath
	}
	if o.BusyTimeoutMS <= 0 {
		o.BusyTimeoutMS = 5000
	}
	if dir := filepath.Dir(o.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
		}
	}
	db, err := sql.Open("sqlite", o.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", contract.ErrCounterStore, o.Path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.BusyTimeoutMS),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: init %s: %w", contract.ErrCounterStore, o.Path, err)
		}
	}
	return &Store{db: db}, nil
}

// GetAndIncrement 实现 contract.CounterStore。
func (s *Store) GetAndIncrement(ctx context.Context, key string) (int, error) {
	var seq int
	if err := s.db.QueryRowContext(ctx, upsert, key).Scan(&seq); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	return seq, nil
}

func (s *Store) Snapshot(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT prefix, seq FROM req_counters`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ contract.CounterStore = (*Store)(nil)
