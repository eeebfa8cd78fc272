package idgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"rfpreq/internal/diag"
	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// Options: ID 生成配置。
type Options struct {
	// CacheSize: 文本 → 代码缓存容量；默认 1024。
	CacheSize int `json:"cache_size"`
}

// Generator 生成 REQ-<TASK>-<CAT>-<NNNN>。
// 代码推导委托 Oracle；序号来自持久化计数器，同一前缀串行分配。
type Generator struct {
	oracle contract.Oracle
	store  contract.CounterStore
	cache  *lru.Cache[string, string]
	log    *diag.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(o contract.Oracle, store contract.CounterStore, opt Options, log *diag.Logger) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil counter store", contract.ErrInvalidInput)
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = 1024
	}
	cache, err := lru.New[string, string](opt.CacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = diag.Nop()
	}
	return &Generator{oracle: o, store: store, cache: cache, log: log, locks: map[string]*sync.Mutex{}}, nil
}

// derived: 单个片段的推导结果。
// ran=true 表示代码来自一次成功的 Oracle 调用（或其缓存）。
type derived struct {
	code string
	ran  bool
	err  error
}

// Generate 推导两个片段并分配序号。
// 两个片段都未能从 Oracle 得到且至少一次调用失败时，视为生成从未执行：
// 返回 SentinelID 与包裹 ErrOracle 的错误，不消耗序号。
// 计数器错误原样向上传播。
func (g *Generator) Generate(ctx context.Context, targetTask, categoryLarge string) (string, error) {
	task := g.code(ctx, targetTask)
	var cat derived
	if isSentinel(categoryLarge) {
		cat = derived{code: contract.SentinelCode}
	} else {
		cat = g.code(ctx, categoryLarge)
	}
	if !task.ran && !cat.ran && (task.err != nil || cat.err != nil) {
		diag.IncOp("idgen", "generate", "never_ran")
		return contract.SentinelID, fmt.Errorf("%w: id generation: %w", contract.ErrOracle, errors.Join(task.err, cat.err))
	}

	prefix := contract.Prefix(task.code, cat.code)
	l := g.lock(prefix)
	l.Lock()
	seq, err := g.store.GetAndIncrement(ctx, prefix)
	l.Unlock()
	if err != nil {
		diag.IncOp("idgen", "generate", "error")
		return "", err
	}
	diag.IncOp("idgen", "generate", "success")
	return contract.FormatID(task.code, cat.code, seq), nil
}

// Code 返回文本的三字母代码（空文本 XXX，失败 ERR）。
func (g *Generator) Code(ctx context.Context, text string) string {
	return g.code(ctx, text).code
}

func (g *Generator) code(ctx context.Context, text string) derived {
	key := strings.TrimSpace(text)
	if key == "" {
		return derived{code: contract.SentinelEmptyCode}
	}
	if c, ok := g.cache.Get(key); ok {
		diag.IncOp("idgen", "code", "cache_hit")
		return derived{code: c, ran: true}
	}
	if g.oracle == nil {
		return derived{code: contract.SentinelCode, err: fmt.Errorf("%w: no oracle", contract.ErrOracle)}
	}
	resp, err := g.oracle.Call(ctx, prompt.Code(key))
	if err != nil {
		g.log.WarnWithKV("idgen", string(diag.Classify(err)), "code derivation failed: "+err.Error(), diag.FileIDFrom(ctx), key, nil)
		return derived{code: contract.SentinelCode, err: err}
	}
	c := Normalize(resp.Text)
	if c != contract.SentinelCode {
		g.cache.Add(key, c)
	}
	return derived{code: c, ran: true}
}

// Normalize 仅保留 ASCII 字母并转大写，截断为 3 位；不足 3 位右补 X，无字母为 ERR。
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	switch n := b.Len(); {
	case n == 0:
		return contract.SentinelCode
	case n < 3:
		return b.String() + strings.Repeat("X", 3-n)
	default:
		return b.String()
	}
}

func isSentinel(s string) bool {
	switch strings.TrimSpace(s) {
	case contract.SentinelError, contract.SentinelUnclassified:
		return true
	}
	return false
}

func (g *Generator) lock(prefix string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[prefix]
	if !ok {
		l = &sync.Mutex{}
		g.locks[prefix] = l
	}
	return l
}
