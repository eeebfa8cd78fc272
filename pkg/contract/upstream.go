package contract

// UpstreamError 承载 Oracle 上游错误的最小诊断信息（HTTP 状态码与消息片段）。
// 守卫层据此记录结构化日志字段并判定是否重试。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
