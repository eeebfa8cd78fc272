package rate

import (
	"context"
	"sync"
	"time"

	"rfpreq/pkg/contract"
)

// LimitKey: 限流分组键（provider+凭据摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限（含输入+预期输出），0 表示不限制
	// MinInterval: 同一分组相邻两次放行的最小间隔。
	MinInterval time.Duration
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Stats: 诊断计数（累计）。
type Stats struct {
	Granted  int64
	Throttle int64         // 需要等待的放行次数
	Waited   time.Duration // 累计等待
}

// Gate: 令牌桶限流闸门（并发安全）。
type Gate struct {
	clk func() time.Time

	mu sync.Mutex
	m  map[LimitKey]*entry
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
// 未配置的 key 视为不限额。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = newEntry(lim, now)
	}
	return g
}

type entry struct {
	mu    sync.Mutex
	lim   Limits
	req   bucket // RPM 维度
	tok   bucket // TPM 维度
	next  time.Time
	stats Stats
}

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newEntry(lim Limits, now time.Time) *entry {
	return &entry{lim: lim, req: newBucket(lim.RPM, now), tok: newBucket(lim.TPM, now)}
}

func newBucket(capacity int, now time.Time) bucket {
	if capacity <= 0 {
		return bucket{}
	}
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || !now.After(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

func (b *bucket) canTake(n int) bool {
	return !b.enabled() || n <= 0 || b.level >= float64(n)
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= float64(n)
	if b.level < 0 {
		b.level = 0
	}
}

// waitFor 返回达到可消费 n 还需等待的时长。
func (b *bucket) waitFor(n int) time.Duration {
	if !b.enabled() || n <= 0 {
		return 0
	}
	deficit := float64(n) - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

func (b *bucket) avail() int {
	if !b.enabled() {
		return 0
	}
	switch {
	case b.level < 0:
		return 0
	case b.level > float64(b.cap):
		return b.cap
	default:
		return int(b.level)
	}
}

func (g *Gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(Limits{}, g.clk())
		g.m[key] = e
	}
	return e
}

func validAsk(e *entry, a Ask) bool {
	if a.Requests <= 0 || a.Tokens < 0 {
		return false
	}
	return e.lim.MaxTokensPerReq <= 0 || a.Tokens <= e.lim.MaxTokensPerReq
}

// tryLocked 在持有 e.mu 时尝试放行；失败时返回需要等待的时长。
func (e *entry) tryLocked(now time.Time, a Ask) (bool, time.Duration) {
	e.req.refill(now)
	e.tok.refill(now)
	wait := e.req.waitFor(a.Requests)
	if wt := e.tok.waitFor(a.Tokens); wt > wait {
		wait = wt
	}
	if gap := e.next.Sub(now); gap > wait {
		wait = gap
	}
	if wait > 0 {
		return false, wait
	}
	e.req.take(a.Requests)
	e.tok.take(a.Tokens)
	if e.lim.MinInterval > 0 {
		e.next = now.Add(e.lim.MinInterval)
	}
	e.stats.Granted++
	return true, 0
}

// Try: 非阻塞尝试；不足时返回 false。
func (g *Gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if !validAsk(e, a) {
		return false
	}
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	ok, _ := e.tryLocked(now, a)
	return ok
}

// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
func (g *Gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if !validAsk(e, a) {
		return contract.ErrInvalidInput
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	throttled := false
	t0 := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := g.clk()
		e.mu.Lock()
		ok, wait := e.tryLocked(now, a)
		if ok && throttled {
			e.stats.Throttle++
			e.stats.Waited += time.Since(t0)
		}
		e.mu.Unlock()
		if ok {
			return nil
		}
		throttled = true
		if wait < minSleep {
			wait = minSleep
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	// 分片为最多 200ms 的步长，及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// Snapshot: 返回当前可用请求/令牌的向下取整估值（仅诊断）。
func (g *Gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req.refill(now)
	e.tok.refill(now)
	return e.req.avail(), e.tok.avail()
}

// Stats: 返回分组的累计诊断计数。
func (g *Gate) Stats(key LimitKey) Stats {
	e := g.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
