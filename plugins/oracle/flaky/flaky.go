package flaky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"rfpreq/pkg/contract"
	"rfpreq/plugins/oracle/mock"
)

// Options 定义可选项。
type Options struct {
	// Schedule: 按调用序号循环的结果序列，元素为 fail|garble|pass。
	// 默认 ["fail","garble","pass"]：首次限流、第二次不可解析、之后按 mock 正常返回。
	// 序列耗尽后保持 pass。
	Schedule []string `json:"schedule"`
	// Mock: 透传给内部 mock 的配置。
	Mock json.RawMessage `json:"mock,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的 Oracle 实现，用于验证重试与降级路径。
type Client struct {
	schedule []string
	inner    *mock.Client
	logPath  string
	count    atomic.Int64
}

// New 构造 Client。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("flaky options: %w", err)
		}
	}
	if len(o.Schedule) == 0 {
		o.Schedule = []string{"fail", "garble", "pass"}
	}
	for _, s := range o.Schedule {
		switch s {
		case "fail", "garble", "pass":
		default:
			return nil, fmt.Errorf("flaky: %w: schedule step %q", contract.ErrInvalidInput, s)
		}
	}
	inner, err := mock.New(o.Mock)
	if err != nil {
		return nil, err
	}
	return &Client{schedule: o.Schedule, inner: inner, logPath: o.LogPath}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Calls 返回累计调用次数。
func (c *Client) Calls() int64 { return c.count.Load() }

// Call 实现 contract.Oracle。
func (c *Client) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	n := c.count.Add(1)
	step := "pass"
	if int(n) <= len(c.schedule) {
		step = c.schedule[n-1]
	}
	c.log(fmt.Sprintf("%d %s %s", n, req.Kind, step))
	switch step {
	case "fail":
		return contract.Response{}, contract.ErrRateLimited
	case "garble":
		return contract.Response{Text: strings.Repeat("~", 8)}, nil
	default:
		return c.inner.Call(ctx, req)
	}
}

var _ contract.Oracle = (*Client)(nil)
