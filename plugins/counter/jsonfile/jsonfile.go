package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rfpreq/internal/fsutil"
	"rfpreq/pkg/contract"
)

// DefaultPath: 默认计数文件。
const DefaultPath = "req_task_cat_counters.json"

// Options: JSON 文件计数器配置。
type Options struct {
	Path string `json:"path"`
}

// Store 将全部计数保存在单个 JSON 对象中；每次递增整体原子重写。
type Store struct {
	path string

	mu sync.Mutex
	m  map[string]int
}

// Open 加载已有文件；文件不存在视为空表。
func Open(opts *Options) (*Store, error) {
	p := DefaultPath
	if opts != nil && strings.TrimSpace(opts.Path) != "" {
		p = opts.Path
	}
	s := &Store{path: p, m: map[string]int{}}
	b, err := os.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", contract.ErrCounterStore, p, err)
	}
	return s, nil
}

// GetAndIncrement 实现 contract.CounterStore；落盘失败时回滚内存值。
func (s *Store) GetAndIncrement(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prev, had := s.m[key]
	s.m[key] = prev + 1
	if err := s.flushLocked(); err != nil {
		if had {
			s.m[key] = prev
		} else {
			delete(s.m, key)
		}
		return 0, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	return prev + 1, nil
}

func (s *Store) flushLocked() error {
	b, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return fsutil.WriteFileAtomic(s.path, b, 0o644)
}

func (s *Store) Snapshot(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

// Close 无需释放资源（每次递增已落盘）。
func (s *Store) Close() error { return nil }

var _ contract.CounterStore = (*Store)(nil)
