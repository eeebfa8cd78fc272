package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// Options: 离线调试配置（全部可选）。
type Options struct {
	// Keywords: 抽取阶段判定为需求句的关键词；默认 해야/하여야/지원/shall/must。
	Keywords []string `json:"keywords"`
	// TargetTask: 精炼阶段固定回填的 대상업무。
	TargetTask string `json:"target_task"`
	// Classification: 形如 "보안/인증/해당 없음"。
	Classification string `json:"classification"`
	Importance     string `json:"importance"` // 상|중|하
	Difficulty     string `json:"difficulty"` // 상|중|하
	// Codes: 文本 → 三字母代码；未命中返回 DefaultCode。
	Codes       map[string]string `json:"codes"`
	DefaultCode string            `json:"default_code"`
	// FailKinds: 这些阶段的调用一律返回网络类错误。
	FailKinds []string `json:"fail_kinds"`
	// LatencyMS: 每次调用的模拟延迟（尊重 ctx）。
	LatencyMS int `json:"latency_ms"`
}

func (o *Options) defaults() {
	if len(o.Keywords) == 0 {
		o.Keywords = []string{"해야", "하여야", "지원", "shall", "must"}
	}
	if o.TargetTask == "" {
		o.TargetTask = "시스템 운영"
	}
	if o.Classification == "" {
		o.Classification = "공통/시스템 운영/해당 없음"
	}
	if o.Importance == "" {
		o.Importance = "중"
	}
	if o.Difficulty == "" {
		o.Difficulty = "하"
	}
	if o.DefaultCode == "" {
		o.DefaultCode = "SYS"
	}
}

// Client: 按 Kind 路由的确定性 Oracle，不发起任何网络请求。
type Client struct {
	opt   Options
	fail  map[contract.Kind]bool
	delay time.Duration

	mu    sync.Mutex
	calls map[contract.Kind]int
}

// New 构造 mock（严格解码）。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	o.defaults()
	if strings.Count(o.Classification, "/") != 2 {
		return nil, fmt.Errorf("mock: %w: classification must be 대/중/소", contract.ErrInvalidInput)
	}
	c := &Client{opt: o, fail: map[contract.Kind]bool{}, calls: map[contract.Kind]int{}}
	for _, k := range o.FailKinds {
		c.fail[contract.Kind(strings.TrimSpace(k))] = true
	}
	if o.LatencyMS > 0 {
		c.delay = time.Duration(o.LatencyMS) * time.Millisecond
	}
	return c, nil
}

// Calls 返回某阶段的累计调用次数。
func (c *Client) Calls(k contract.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[k]
}

// Outage 是 FailKinds 命中时返回的错误（网络类，可重试）。
type Outage struct{ Kind contract.Kind }

func (e Outage) Error() string   { return fmt.Sprintf("mock: %s unavailable", e.Kind) }
func (e Outage) Timeout() bool   { return false }
func (e Outage) Temporary() bool { return true }

func (c *Client) Call(ctx context.Context, req contract.Request) (contract.Response, error) {
	c.mu.Lock()
	c.calls[req.Kind]++
	c.mu.Unlock()
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return contract.Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return contract.Response{}, err
	}
	if c.fail[req.Kind] {
		return contract.Response{}, Outage{Kind: req.Kind}
	}
	switch req.Kind {
	case contract.KindExtract:
		return contract.Response{Text: c.extract(req.User)}, nil
	case contract.KindRefine:
		return c.refine(req.User)
	case contract.KindClassify:
		parts := strings.Split(c.opt.Classification, "/")
		return contract.Response{Text: fmt.Sprintf("대분류: %s\n중분류: %s\n소분류: %s", parts[0], parts[1], parts[2])}, nil
	case contract.KindImportance:
		return contract.Response{Text: "중요도: " + c.opt.Importance}, nil
	case contract.KindDifficulty:
		return contract.Response{Text: "난이도: " + c.opt.Difficulty}, nil
	case contract.KindCode:
		text := between(req.User, "[텍스트]\n\"", "\"")
		if code, ok := c.opt.Codes[strings.TrimSpace(text)]; ok {
			return contract.Response{Text: code}, nil
		}
		return contract.Response{Text: c.opt.DefaultCode}, nil
	}
	return contract.Response{}, fmt.Errorf("mock: %w: unknown kind %q", contract.ErrInvalidInput, req.Kind)
}

// extract: 含关键词的行即候选句。
func (c *Client) extract(user string) string {
	text := between(user, "--- 텍스트 시작 ---\n", "\n--- 텍스트 끝 ---")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, kw := range c.opt.Keywords {
			if strings.Contains(strings.ToLower(line), strings.ToLower(kw)) {
				out = append(out, line)
				break
			}
		}
	}
	if len(out) == 0 {
		return prompt.NoRequirements
	}
	return strings.Join(out, "\n")
}

func (c *Client) refine(user string) (contract.Response, error) {
	sentence := strings.TrimSpace(between(user, "[요구사항 문장]\n", "\n\n[원문 청크]"))
	if sentence == "" {
		return contract.Response{}, fmt.Errorf("mock: %w: no sentence", contract.ErrInvalidInput)
	}
	page, _ := strconv.Atoi(between(user, "(RFP ", " 페이지)"))
	name := []rune(sentence)
	if len(name) > 30 {
		name = name[:30]
	}
	kind := "기능"
	if strings.Contains(sentence, "성능") || strings.Contains(sentence, "보안") {
		kind = "비기능"
	}
	obj := map[string]any{
		"요구사항명":     string(name),
		"type":      kind,
		"요구사항 상세설명": sentence,
		"대상업무":      c.opt.TargetTask,
		"RFP":       page,
		"요건처리 상세":   sentence,
		"출처 문장":     sentence,
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return contract.Response{}, err
	}
	return contract.Response{Text: string(b)}, nil
}

// between 返回 s 中首个 start 之后、其后首个 end 之前的片段；缺失时为空。
func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

var _ contract.Oracle = (*Client)(nil)
