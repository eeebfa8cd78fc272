package text

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"rfpreq/pkg/contract"
)

// Options: 纯文本页源配置。
type Options struct {
	// PageBreak: 页分隔符，默认换页符 "\f"（pdftotext 的输出约定）。
	PageBreak string `json:"page_break"`
	// MaxBytes: 单文件读取上限，0 表示不限制。
	MaxBytes int64 `json:"max_bytes"`
}

// Source 将纯文本按分页符拆为页序列。
type Source struct {
	brk string
	max int64
}

func New(opts *Options) *Source {
	s := &Source{brk: "\f"}
	if opts != nil {
		if opts.PageBreak != "" {
			s.brk = opts.PageBreak
		}
		s.max = opts.MaxBytes
	}
	return s
}

// Pages 实现 contract.PageSource。无分页符时整个文件视为第 1 页。
func (s *Source) Pages(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.max > 0 {
		r = io.LimitReader(r, s.max+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	if s.max > 0 && int64(len(b)) > s.max {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrInvalidInput, fileID, s.max)
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", contract.ErrInvalidInput, fileID)
	}
	// 去除 BOM，统一换行
	txt := strings.TrimPrefix(string(b), "\ufeff")
	txt = strings.ReplaceAll(txt, "\r\n", "\n")
	if txt == "" {
		return nil, nil
	}
	parts := strings.Split(txt, s.brk)
	// 结尾分页符不产生额外空页
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]contract.Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, contract.Page{Number: i + 1, Text: p})
	}
	return pages, nil
}

var _ contract.PageSource = (*Source)(nil)
