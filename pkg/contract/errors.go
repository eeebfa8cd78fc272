package contract

import "errors"

// Oracle 相关错误分类（用于上层降级/重试判定）。
var (
	// ErrOracle: 与文本补全服务交互的任何失败（网络/鉴权/限流/解析）。
	// 调用点必须在本地降级为哨兵值，不得向上原样传播。
	ErrOracle = errors.New("oracle call failed")
	// ErrRateLimited: 上游限流（HTTP 429 等）。
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid: 上游响应无法解析或缺少必需字段。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrInvalidInput: 请求参数非法（上游 4xx 或本地校验失败）。
	ErrInvalidInput = errors.New("invalid input")
)

// 流水线阶段错误分类。
var (
	// ErrRequirementDropped: Refiner 无法从候选句得到有效草稿；记录日志后跳过该句。
	ErrRequirementDropped = errors.New("requirement dropped")
	// ErrCounterStore: 计数器存储读写失败（持久化不可用）。
	ErrCounterStore = errors.New("counter store failure")
)

// Writer/路径相关最小错误分类。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
