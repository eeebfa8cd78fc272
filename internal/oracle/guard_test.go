package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rfpreq/internal/rate"
	"rfpreq/pkg/contract"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type statusErr struct{ code int }

func (e statusErr) Error() string           { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) UpstreamStatus() int     { return e.code }
func (e statusErr) UpstreamMessage() string { return "upstream says no" }

// UT-ORC-01: 网络错误重试后成功
func TestGuardRetriesNetwork(t *testing.T) {
	var calls atomic.Int32
	next := contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		if calls.Add(1) < 3 {
			return contract.Response{}, &net.DNSError{Err: "temporary", IsTemporary: true}
		}
		return contract.Response{Text: "LMS"}, nil
	})
	g := NewGuard(next, Options{MaxRetries: 2, Backoff: time.Millisecond})
	resp, err := g.Call(context.Background(), contract.Request{Kind: contract.KindCode})
	require.NoError(t, err)
	assert.Equal(t, "LMS", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

// UT-ORC-02: 响应无效不重试，错误包裹 ErrOracle
func TestGuardNoRetryOnInvalid(t *testing.T) {
	var calls atomic.Int32
	next := contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		calls.Add(1)
		return contract.Response{}, statusErr{code: 400}
	})
	g := NewGuard(next, Options{MaxRetries: 3, Backoff: time.Millisecond})
	_, err := g.Call(context.Background(), contract.Request{Kind: contract.KindRefine})
	require.ErrorIs(t, err, contract.ErrOracle)
	assert.Equal(t, int32(1), calls.Load())
	kv := upstreamKV(fmt.Errorf("wrap: %w", statusErr{code: 400}))
	assert.Equal(t, "400", kv["http_status"])
	assert.Equal(t, "upstream says no", kv["upstream_msg"])
	assert.Nil(t, upstreamKV(errors.New("plain")))
}

// UT-ORC-03: 单次调用超时表现为可捕获的 ErrOracle，而不是挂起
func TestGuardTimeout(t *testing.T) {
	next := contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		<-ctx.Done()
		return contract.Response{}, ctx.Err()
	})
	g := NewGuard(next, Options{Timeout: 20 * time.Millisecond, MaxRetries: 2})
	start := time.Now()
	_, err := g.Call(context.Background(), contract.Request{Kind: contract.KindClassify})
	require.ErrorIs(t, err, contract.ErrOracle)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	if time.Since(start) > time.Second {
		t.Fatalf("超时未及时返回")
	}
}

// UT-ORC-04: 限流闸门错误直接返回
func TestGuardGateError(t *testing.T) {
	var calls atomic.Int32
	next := contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		calls.Add(1)
		return contract.Response{Text: "x"}, nil
	})
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {MaxTokensPerReq: 1}}, nil)
	g := NewGuard(next, Options{Gate: gate, GateKey: "k"})
	_, err := g.Call(context.Background(), contract.Request{Kind: contract.KindExtract, User: "긴 입력 텍스트"})
	require.ErrorIs(t, err, contract.ErrOracle)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.Equal(t, int32(0), calls.Load())
}

// UT-ORC-05: 限流错误可重试
func TestGuardRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	next := contract.OracleFunc(func(ctx context.Context, req contract.Request) (contract.Response, error) {
		if calls.Add(1) == 1 {
			return contract.Response{}, fmt.Errorf("http 429: %w", contract.ErrRateLimited)
		}
		return contract.Response{Text: "ok"}, nil
	})
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {RPM: 600}}, nil)
	g := NewGuard(next, Options{Gate: gate, GateKey: "k", MaxRetries: 1, Backoff: time.Millisecond})
	resp, err := g.Call(context.Background(), contract.Request{Kind: contract.KindImportance})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int64(2), gate.Stats("k").Granted)
}

// 父 ctx 取消后不再重试
func TestGuardParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	next := contract.OracleFunc(func(_ context.Context, req contract.Request) (contract.Response, error) {
		calls.Add(1)
		cancel()
		return contract.Response{}, &net.DNSError{Err: "x"}
	})
	g := NewGuard(next, Options{MaxRetries: 5, Backoff: time.Millisecond})
	_, err := g.Call(ctx, contract.Request{Kind: contract.KindDifficulty})
	require.ErrorIs(t, err, contract.ErrOracle)
	assert.Equal(t, int32(1), calls.Load())
	_, err = NewGuard(nil, Options{}).Call(context.Background(), contract.Request{})
	require.ErrorIs(t, err, contract.ErrOracle)
}
