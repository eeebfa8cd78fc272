package idgen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rfpreq/pkg/contract"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type memStore struct {
	mu  sync.Mutex
	m   map[string]int
	err error
}

func newMem() *memStore { return &memStore{m: map[string]int{}} }

func (s *memStore) GetAndIncrement(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.m[key]++
	return s.m[key], nil
}

func (s *memStore) Snapshot(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// codeOracle 按文本返回代码；down 时一律失败。
type codeOracle struct {
	codes map[string]string
	down  bool
	calls atomic.Int32
}

func (o *codeOracle) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	o.calls.Add(1)
	if req.Kind != contract.KindCode || req.MaxTokens != 10 {
		return contract.Response{}, contract.ErrInvalidInput
	}
	if o.down {
		return contract.Response{}, fmt.Errorf("%w: down", contract.ErrOracle)
	}
	for text, code := range o.codes {
		if strings.Contains(req.User, `"`+text+`"`) {
			return contract.Response{Text: code}, nil
		}
	}
	return contract.Response{Text: "SYS"}, nil
}

func newGen(t *testing.T, o contract.Oracle, s contract.CounterStore) *Generator {
	t.Helper()
	g, err := New(o, s, Options{}, nil)
	require.NoError(t, err)
	return g
}

// UT-ID-01: 正常路径 REQ-AUT-SEC-0001，并持久化前缀计数
func TestGenerateHappyPath(t *testing.T) {
	o := &codeOracle{codes: map[string]string{"인증": "AUT", "보안": "SEC"}}
	s := newMem()
	g := newGen(t, o, s)
	id, err := g.Generate(context.Background(), "인증", "보안")
	require.NoError(t, err)
	assert.Equal(t, "REQ-AUT-SEC-0001", id)
	id, err = g.Generate(context.Background(), "인증", "보안")
	require.NoError(t, err)
	assert.Equal(t, "REQ-AUT-SEC-0002", id)
	// 第二次命中缓存
	assert.Equal(t, int32(2), o.calls.Load())
	snap, _ := s.Snapshot(context.Background())
	assert.Equal(t, map[string]int{"AUT-SEC": 2}, snap)
}

// UT-ID-02: N 个并发请求得到连续且唯一的序号
func TestGenerateConcurrentConsecutive(t *testing.T) {
	o := &codeOracle{codes: map[string]string{"학습관리": "LMS", "학습": "EDU"}}
	g := newGen(t, o, newMem())
	const n = 64
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := g.Generate(context.Background(), "학습관리", "학습")
			if err != nil {
				t.Errorf("generate: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	sort.Strings(ids)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("REQ-LMS-EDU-%04d", i+1), id)
	}
}

// UT-ID-03: Oracle 整体不可用 → 哨兵 ID，不消耗序号
func TestGenerateOracleOutage(t *testing.T) {
	s := newMem()
	g := newGen(t, &codeOracle{down: true}, s)
	id, err := g.Generate(context.Background(), "인증", "보안")
	require.ErrorIs(t, err, contract.ErrOracle)
	assert.Equal(t, contract.SentinelID, id)
	snap, _ := s.Snapshot(context.Background())
	assert.Empty(t, snap)

	// 分类为哨兵 + 任务代码失败：同样视为未执行
	id, err = g.Generate(context.Background(), "인증", contract.SentinelError)
	require.Error(t, err)
	assert.Equal(t, contract.SentinelID, id)
}

// UT-ID-04: 哨兵分类不调用 Oracle；空文本为 XXX
func TestGenerateSentinelAndEmpty(t *testing.T) {
	o := &codeOracle{codes: map[string]string{"인증": "AUT"}}
	g := newGen(t, o, newMem())
	id, err := g.Generate(context.Background(), "인증", contract.SentinelUnclassified)
	require.NoError(t, err)
	assert.Equal(t, "REQ-AUT-ERR-0001", id)
	assert.Equal(t, int32(1), o.calls.Load())

	id, err = g.Generate(context.Background(), "  ", contract.SentinelError)
	require.NoError(t, err)
	assert.Equal(t, "REQ-XXX-ERR-0001", id)
	assert.True(t, contract.ValidID(id))
}

// UT-ID-05: 计数器错误向上传播
func TestGenerateCounterError(t *testing.T) {
	s := newMem()
	s.err = fmt.Errorf("%w: disk full", contract.ErrCounterStore)
	_, err := newGen(t, &codeOracle{}, s).Generate(context.Background(), "a", "b")
	require.ErrorIs(t, err, contract.ErrCounterStore)
	assert.False(t, errors.Is(err, contract.ErrOracle))
}

// 失败结果不进入缓存
func TestCodeFailureNotCached(t *testing.T) {
	o := &codeOracle{down: true}
	g := newGen(t, o, newMem())
	assert.Equal(t, contract.SentinelCode, g.Code(context.Background(), "인증"))
	o.down = false
	assert.Equal(t, "SYS", g.Code(context.Background(), "인증"))
	assert.Equal(t, int32(2), o.calls.Load())
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"LMS":       "LMS",
		" lms\n":    "LMS",
		"결과: CRM":   "CRM",
		"AB":        "ABX",
		"q":         "QXX",
		"123":       contract.SentinelCode,
		"":          contract.SentinelCode,
		"S-Y-S-TEM": "SYS",
		"Étude":     "TUD",
	} {
		assert.Equal(t, want, Normalize(in), in)
	}
	_, err := New(nil, nil, Options{}, nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
