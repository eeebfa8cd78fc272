package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"rfpreq/pkg/contract"
)

// Options: OpenAI 兼容 chat/completions 后端配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string `json:"model"`           // 为空则使用 gpt-4o
	APIKeyEnv      string `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int    `json:"timeout_seconds"` // client 级超时（秒），守卫层另有单次超时
	// 第三方兼容：
	EndpointPath       string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`        // 追加/覆盖请求头（Azure/OpenRouter 等）
	// DisableJSONMode: 后端不支持 response_format 时关闭（仍依赖提示词约束 JSON）。
	DisableJSONMode bool `json:"disable_json_mode"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4o"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 120
	}
}

type Client struct {
	url         string
	apiKey      string
	model       string
	extraH      map[string]string
	disableAuth bool
	noJSONMode  bool
	do          func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端（严格解码，拒绝未知字段）。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("openai: %w: missing api key (%s)", contract.ErrInvalidInput, opts.APIKeyEnv)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	return &Client{
		url:         fullURL,
		apiKey:      key,
		model:       opts.Model,
		extraH:      opts.ExtraHeaders,
		disableAuth: opts.DisableDefaultAuth,
		noJSONMode:  opts.DisableJSONMode,
		do:          hc.Do,
	}, nil
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaResponseFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaReq struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误，便于分类与重试。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// statusError 携带 4xx 诊断信息，同时归类为输入无效/限流。
type statusError struct {
	status int
	msg    string
	kind   error
}

func (e statusError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e statusError) Unwrap() error           { return e.kind }
func (e statusError) UpstreamStatus() int     { return e.status }
func (e statusError) UpstreamMessage() string { return e.msg }

func (c *Client) encode(req contract.Request) ([]byte, error) {
	body := oaReq{Model: c.model, MaxTokens: req.MaxTokens}
	if req.Temperature >= 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if s := strings.TrimSpace(req.System); s != "" {
		body.Messages = append(body.Messages, oaMessage{Role: "system", Content: req.System})
	}
	if strings.TrimSpace(req.User) == "" {
		return nil, contract.ErrInvalidInput
	}
	body.Messages = append(body.Messages, oaMessage{Role: "user", Content: req.User})
	if req.WantJSON && !c.noJSONMode {
		body.ResponseFormat = &oaResponseFormat{Type: "json_object"}
	}
	return json.Marshal(&body)
}

// Call: 单次调用，同步返回。
func (c *Client) Call(ctx context.Context, r contract.Request) (contract.Response, error) {
	body, err := c.encode(r)
	if err != nil {
		if errors.Is(err, contract.ErrInvalidInput) {
			return contract.Response{}, err
		}
		return contract.Response{}, fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return contract.Response{}, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Response{}, ctx.Err()
		}
		return contract.Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return contract.Response{}, statusError{status: resp.StatusCode, msg: msg, kind: contract.ErrRateLimited}
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5:
			return contract.Response{}, upstreamError{status: resp.StatusCode, msg: msg}
		default:
			return contract.Response{}, statusError{status: resp.StatusCode, msg: msg, kind: contract.ErrInvalidInput}
		}
	}
	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return contract.Response{}, fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || strings.TrimSpace(or.Choices[0].Message.Content) == "" {
		return contract.Response{}, contract.ErrResponseInvalid
	}
	return contract.Response{Text: or.Choices[0].Message.Content}, nil
}

var _ contract.Oracle = (*Client)(nil)
