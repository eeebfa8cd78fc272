package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rfpreq/internal/diag"
	"rfpreq/internal/prompt"
	"rfpreq/internal/rate"
	"rfpreq/pkg/contract"
)

// Waiter: 限流闸门的最小依赖（*rate.Gate 满足）。
type Waiter interface {
	Wait(ctx context.Context, a rate.Ask) error
}

// Options: 守卫层配置。
type Options struct {
	// Gate 为空时不限流。
	Gate    Waiter
	GateKey rate.LimitKey
	// Timeout: 单次调用超时；<=0 不设置。
	Timeout time.Duration
	// MaxRetries: 可重试错误（网络/限流）的最大重试次数。
	MaxRetries int
	// Backoff: 重试基准退避，按尝试次数线性增长；<=0 时为 200ms。
	Backoff       time.Duration
	BytesPerToken int
	Logger        *diag.Logger
}

// Guard 包装任意 Oracle：限流 → 超时 → 调用 → 重试；
// 对外暴露的错误一律包裹 contract.ErrOracle，调用点据此降级为哨兵值。
type Guard struct {
	next contract.Oracle
	opt  Options
	est  prompt.TokenEstimator
}

// NewGuard 构造守卫。
func NewGuard(next contract.Oracle, opt Options) *Guard {
	if opt.Backoff <= 0 {
		opt.Backoff = 200 * time.Millisecond
	}
	if opt.MaxRetries < 0 {
		opt.MaxRetries = 0
	}
	if opt.Logger == nil {
		opt.Logger = diag.Nop()
	}
	return &Guard{next: next, opt: opt, est: prompt.MakeEstimator(opt.BytesPerToken)}
}

// Call 实现 contract.Oracle。
func (g *Guard) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	if g.next == nil {
		return contract.Response{}, fmt.Errorf("%w: no backend", contract.ErrOracle)
	}
	fileID := diag.FileIDFrom(ctx)
	item := string(req.Kind)
	tokens := prompt.EstimateRequest(g.est, req)
	attempts := g.opt.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if g.opt.Gate != nil {
			if err := g.opt.Gate.Wait(ctx, rate.Ask{Key: g.opt.GateKey, Requests: 1, Tokens: tokens}); err != nil {
				code := diag.Classify(err)
				g.opt.Logger.ErrorWith("gate", string(code), "wait failed", nil, fileID, item)
				diag.IncError("gate", string(code))
				// Gate 错误不重试（通常为取消或输入非法）
				return contract.Response{}, fmt.Errorf("%w: gate: %w", contract.ErrOracle, err)
			}
		}
		timer := g.opt.Logger.StartWithKV("oracle", "call", fileID, item, map[string]string{
			"tokens":  strconv.Itoa(tokens),
			"attempt": strconv.Itoa(attempt + 1),
		})
		resp, err := g.callOnce(ctx, req)
		if err == nil {
			timer.Finish("call", int64(len(resp.Text)))
			diag.IncOp("oracle", item, "success")
			return resp, nil
		}
		lastErr = err
		code := diag.Classify(err)
		g.opt.Logger.ErrorWithKV("oracle", string(code), "call failed", timer.Since(), fileID, item, upstreamKV(err))
		diag.IncOp("oracle", item, "error")
		diag.IncError("oracle", string(code))
		if ctx.Err() != nil {
			break
		}
		if attempt+1 < attempts && shouldRetry(err) {
			if sleepWithCtx(ctx, time.Duration(attempt+1)*g.opt.Backoff) != nil {
				break
			}
			continue
		}
		break
	}
	return contract.Response{}, fmt.Errorf("%w: %s: %w", contract.ErrOracle, req.Kind, lastErr)
}

func (g *Guard) callOnce(ctx context.Context, req contract.Request) (contract.Response, error) {
	if g.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opt.Timeout)
		defer cancel()
	}
	return g.next.Call(ctx, req)
}

// shouldRetry: 根据错误类型判断是否重试。
// - 取消/超时：不重试；
// - 预算/限流：重试（交由 Gate 控制速率）；
// - 网络类错误：重试；
// - 其他：不重试（响应无效由调用点降级）。
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return diag.Retryable(diag.Classify(err))
}

// upstreamKV 若为上游 HTTP 错误，附带状态码/消息片段。
func upstreamKV(err error) map[string]string {
	var ue contract.UpstreamError
	if !errors.As(err, &ue) {
		return nil
	}
	kv := map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
	if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
		if r := []rune(m); len(r) > 200 {
			m = string(r[:200])
		}
		kv["upstream_msg"] = m
	}
	return kv
}

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
