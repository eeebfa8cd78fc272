package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"rfpreq/pkg/contract"
)

// Options: Google Gemini（genai SDK）后端配置。
type Options struct {
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// BaseURL: 覆盖 API 端点（代理/测试）；为空使用 SDK 默认。
	BaseURL string `json:"base_url"`
	// ResponseMIMEType: WantJSON 时使用的 MIME，默认 application/json。
	ResponseMIMEType string `json:"response_mime_type"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
}

// Client 封装 genai.Models。
type Client struct {
	models   *genai.Models
	model    string
	respMIME string
}

// New 从原样 JSON 选项构造客户端（严格解码，拒绝未知字段）。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key (%s)", contract.ErrInvalidInput, opts.APIKeyEnv)
	}
	cfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(opts.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{models: client.Models, model: opts.Model, respMIME: opts.ResponseMIMEType}, nil
}

func (c *Client) config(req contract.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature >= 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.WantJSON {
		cfg.ResponseMIMEType = c.respMIME
	}
	return cfg
}

// Call: 单次调用，同步返回。
func (c *Client) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	if strings.TrimSpace(req.User) == "" {
		return contract.Response{}, contract.ErrInvalidInput
	}
	contents := []*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, c.model, contents, c.config(req))
	if err != nil {
		if ctx.Err() != nil {
			return contract.Response{}, ctx.Err()
		}
		return contract.Response{}, classify(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return contract.Response{}, fmt.Errorf("gemini: empty candidate: %w", contract.ErrResponseInvalid)
	}
	return contract.Response{Text: text}, nil
}

// apiError 将 genai.APIError 映射到本地错误分类，并暴露 HTTP 诊断信息。
type apiError struct {
	status int
	msg    string
	kind   error
}

func (e apiError) Error() string           { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e apiError) Unwrap() error           { return e.kind }
func (e apiError) UpstreamStatus() int     { return e.status }
func (e apiError) UpstreamMessage() string { return e.msg }

// netError: 5xx/408 归为网络类（实现 net.Error）。
type netError struct{ apiError }

func (e netError) Timeout() bool   { return e.status == http.StatusRequestTimeout }
func (e netError) Temporary() bool { return true }

func classify(err error) error {
	var ae genai.APIError
	if !errors.As(err, &ae) {
		var pae *genai.APIError
		if !errors.As(err, &pae) || pae == nil {
			return err
		}
		ae = *pae
	}
	base := apiError{status: ae.Code, msg: ae.Message}
	switch {
	case ae.Code == http.StatusTooManyRequests:
		base.kind = contract.ErrRateLimited
		return base
	case ae.Code == http.StatusRequestTimeout || ae.Code/100 == 5:
		return netError{base}
	default:
		base.kind = contract.ErrInvalidInput
		return base
	}
}

var _ contract.Oracle = (*Client)(nil)
