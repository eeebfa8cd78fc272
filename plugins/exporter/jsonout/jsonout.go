package jsonout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"rfpreq/pkg/contract"
)

// Options: JSON 数组导出配置。
type Options struct {
	// Indent: 缩进空格数，默认 2；0 以下输出紧凑 JSON。
	Indent *int `json:"indent,omitempty"`
}

// Exporter 将需求列表导出为单个 JSON 数组（空列表为 []）。
type Exporter struct {
	indent string
}

func New(opts *Options) *Exporter {
	n := 2
	if opts != nil && opts.Indent != nil {
		n = *opts.Indent
	}
	if n < 0 {
		n = 0
	}
	return &Exporter{indent: strings.Repeat(" ", n)}
}

func (e *Exporter) Name() string { return "json" }
func (e *Exporter) Ext() string  { return "json" }

func (e *Exporter) Export(ctx context.Context, reqs []contract.Requirement) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []contract.Requirement{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if e.indent != "" {
		enc.SetIndent("", e.indent)
	}
	if err := enc.Encode(reqs); err != nil {
		return nil, err
	}
	return &buf, nil
}

var _ contract.Exporter = (*Exporter)(nil)
