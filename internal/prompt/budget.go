package prompt

import "rfpreq/pkg/contract"

// TokenEstimator 近似估算文本 token 数。
type TokenEstimator func(s string) int

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 3（韩文 UTF-8 每字 3 字节，约 1 token）。
func MakeEstimator(bytesPerToken int) TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 3
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// EstimateRequest 估算一次请求的 token 占用（输入 + 预期输出上限）。
// 用于限流闸门的 TPM 记账。
func EstimateRequest(est TokenEstimator, req contract.Request) int {
	n := est(req.System) + est(req.User)
	if req.MaxTokens > 0 {
		n += req.MaxTokens
	}
	return n
}
