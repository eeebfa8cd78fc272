package contract

import "context"

// Kind: 调用阶段标识，用于日志、限流记账与 mock 路由。
type Kind string

const (
	KindExtract    Kind = "extract"
	KindRefine     Kind = "refine"
	KindClassify   Kind = "classify"
	KindImportance Kind = "importance"
	KindDifficulty Kind = "difficulty"
	KindCode       Kind = "code"
)

// Request: 单次文本补全请求。
// WantJSON=true 时要求上游以严格 JSON 对象返回（若后端支持）。
// Temperature<0 表示使用后端默认；MaxTokens<=0 表示不限制。
type Request struct {
	Kind        Kind
	System      string
	User        string
	WantJSON    bool
	Temperature float64
	MaxTokens   int
}

// Response: 上游原始文本，原样返回，不做清洗。
type Response struct {
	Text string
}

// Oracle: 无状态、带延迟、偶发失败的文本补全函数。
// 单次调用、同步返回；应尊重 ctx 取消/超时。
type Oracle interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// OracleFunc 允许以函数实现 Oracle（测试与装饰器常用）。
type OracleFunc func(ctx context.Context, req Request) (Response, error)

func (f OracleFunc) Call(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }
