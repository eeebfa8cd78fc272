package jsonpages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"rfpreq/pkg/contract"
)

// Source 读取外部抽取器产出的 JSON 页数组：
//
//	[{"page":1,"text":"..."},{"page":2,"text":"..."}]
//
// 也接受纯字符串数组（页码按位置自 1 起）。
type Source struct{}

func New() *Source { return &Source{} }

type page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Pages 实现 contract.PageSource；页码须自 1 起严格递增。
func (s *Source) Pages(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrInvalidInput, fileID, err)
	}
	out := make([]contract.Page, 0, len(raws))
	prev := 0
	for i, raw := range raws {
		var p page
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			p = page{Page: i + 1, Text: str}
		} else {
			dec := json.NewDecoder(strings.NewReader(string(raw)))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("%w: %s page #%d: %v", contract.ErrInvalidInput, fileID, i, err)
			}
		}
		if p.Page <= prev {
			return nil, fmt.Errorf("%w: %s page numbers must increase from 1 (got %d after %d)", contract.ErrInvalidInput, fileID, p.Page, prev)
		}
		prev = p.Page
		out = append(out, contract.Page{Number: p.Page, Text: strings.ReplaceAll(p.Text, "\r\n", "\n")})
	}
	return out, nil
}

var _ contract.PageSource = (*Source)(nil)
