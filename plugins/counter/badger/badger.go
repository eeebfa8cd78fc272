package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"rfpreq/pkg/contract"
)

// DefaultDir: 默认数据目录。
const DefaultDir = "req_counters.badger"

// Options: BadgerDB 计数器配置。
type Options struct {
	Dir string `json:"dir"`
	// InMemory: 仅用于测试与演示，进程退出后计数丢失。
	InMemory bool `json:"in_memory"`
	// MaxConflictRetries: 事务冲突重试上限，默认 64。
	MaxConflictRetries int `json:"max_conflict_retries"`
}

var keyPrefix = []byte("ctr/")

// Store 以 Badger 事务实现读-加-写；SyncWrites 保证提交即落盘。
type Store struct {
	db      *badger.DB
	retries int
}

// Open 打开（或创建）数据目录。
func Open(opts *Options) (*Store, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if strings.TrimSpace(o.Dir) == "" && !o.InMemory {
		o.Dir = DefaultDir
	}
	if o.MaxConflictRetries <= 0 {
		o.MaxConflictRetries = 64
	}
	bo := badger.DefaultOptions(o.Dir)
	if o.InMemory {
		bo = badger.DefaultOptions("")
		bo.InMemory = true
	}
	bo.SyncWrites = true
	bo.Logger = nil
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger %s: %w", contract.ErrCounterStore, o.Dir, err)
	}
	return &Store{db: db, retries: o.MaxConflictRetries}, nil
}

func counterKey(key string) []byte {
	return append(append([]byte(nil), keyPrefix...), key...)
}

// GetAndIncrement 实现 contract.CounterStore；并发冲突时按乐观事务重试。
func (s *Store) GetAndIncrement(ctx context.Context, key string) (int, error) {
	k := counterKey(key)
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var next uint64
		err := s.db.Update(func(txn *badger.Txn) error {
			var cur uint64
			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					if len(val) != 8 {
						return fmt.Errorf("corrupt counter %q", key)
					}
					cur = binary.BigEndian.Uint64(val)
					return nil
				}); err != nil {
					return err
				}
			}
			next = cur + 1
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, next)
			return txn.Set(k, buf)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
		}
		return int(next), nil
	}
	return 0, fmt.Errorf("%w: %q: too many transaction conflicts", contract.ErrCounterStore, key)
}

func (s *Store) Snapshot(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), string(keyPrefix))
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					out[name] = int(binary.BigEndian.Uint64(val))
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrCounterStore, err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ contract.CounterStore = (*Store)(nil)
