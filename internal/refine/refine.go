package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"rfpreq/internal/diag"
	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// Refiner 将候选句在其 Chunk 上下文中精炼为结构化草稿。
type Refiner struct {
	oracle contract.Oracle
	log    *diag.Logger
}

func New(o contract.Oracle, log *diag.Logger) *Refiner {
	if log == nil {
		log = diag.Nop()
	}
	return &Refiner{oracle: o, log: log}
}

// 响应字段（键名与提示词一致）。
const (
	keyName        = "요구사항명"
	keyType        = "type"
	keyDescription = "요구사항 상세설명"
	keyTargetTask  = "대상업무"
	keyRFP         = "RFP"
	keyProcessing  = "요건처리 상세"
	keySource      = "출처 문장"
)

// Refine 返回草稿；任何失败都包裹 contract.ErrRequirementDropped，由调用方记录并跳过。
// RawText 恒为输入句，SourcePage 恒为 Chunk 页码。
func (r *Refiner) Refine(ctx context.Context, cand contract.Candidate, ch contract.Chunk) (contract.Draft, error) {
	resp, err := r.oracle.Call(ctx, prompt.Refine(cand.Text, ch.Text, ch.SourcePage))
	if err != nil {
		diag.IncOp("refine", "candidate", "error")
		return contract.Draft{}, fmt.Errorf("%w: %w", contract.ErrRequirementDropped, err)
	}
	fields, err := Parse(resp.Text)
	if err != nil {
		diag.IncOp("refine", "candidate", "invalid")
		return contract.Draft{}, fmt.Errorf("%w: %w", contract.ErrRequirementDropped, err)
	}
	for _, k := range []string{keyName, keyDescription, keyTargetTask} {
		if strings.TrimSpace(fields[k]) == "" {
			diag.IncOp("refine", "candidate", "invalid")
			return contract.Draft{}, fmt.Errorf("%w: %w: missing %q", contract.ErrRequirementDropped, contract.ErrResponseInvalid, k)
		}
	}
	if src := strings.TrimSpace(fields[keySource]); src != "" && src != strings.TrimSpace(cand.Text) {
		r.log.DebugStart("refine", "source sentence rewritten by oracle", diag.FileIDFrom(ctx), strconv.Itoa(ch.Index), nil)
	}
	diag.IncOp("refine", "candidate", "success")
	return contract.Draft{
		Name:             strings.TrimSpace(fields[keyName]),
		Type:             contract.ParseRequirementType(fields[keyType]),
		Description:      strings.TrimSpace(fields[keyDescription]),
		TargetTask:       strings.TrimSpace(fields[keyTargetTask]),
		ProcessingDetail: strings.TrimSpace(fields[keyProcessing]),
		SourcePage:       ch.SourcePage,
		RFPPage:          strings.TrimSpace(fields[keyRFP]),
		RawText:          cand.Text,
	}, nil
}

// Parse 解析精炼响应：容忍代码围栏，展开单元素数组；值统一转为字符串。
func Parse(text string) (map[string]string, error) {
	body := stripFence(strings.TrimSpace(text))
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", contract.ErrResponseInvalid)
	}
	if strings.HasPrefix(body, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(body), &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", contract.ErrResponseInvalid, err)
		}
		if len(arr) != 1 {
			return nil, fmt.Errorf("%w: expected one object, got %d", contract.ErrResponseInvalid, len(arr))
		}
		body = string(arr[0])
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrResponseInvalid, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.TrimSpace(k)] = scalar(v)
	}
	return out, nil
}

// scalar 将 JSON 值转为文本：字符串取值，数字/布尔原样，null 为空，其余保留紧凑 JSON。
func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	t := string(bytes.TrimSpace(v))
	if t == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err == nil {
		return buf.String()
	}
	return t
}

// stripFence 去掉 ```json ... ``` 包裹。
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
