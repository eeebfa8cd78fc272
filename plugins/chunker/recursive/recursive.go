package recursive

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"rfpreq/pkg/contract"
)

// Options 为递归字符切分器的配置。
type Options struct {
	// ChunkSize: 单个 Chunk 的最大字符（rune）数，默认 4000。
	ChunkSize int `json:"chunk_size"`
	// ChunkOverlap: 相邻 Chunk 的最大重叠字符数，默认 200，须满足 0 <= overlap < size。
	ChunkOverlap int `json:"chunk_overlap"`
	// Separators: 由粗到细的分隔符；空串表示按字符切分。
	Separators []string `json:"separators"`
}

// DefaultSeparators: 段落 → 行 → 句 → 词 → 字符。
var DefaultSeparators = []string{"\n\n\n", "\n\n", "\n", ". ", " ", ""}

// Chunker 实现 contract.Chunker。
type Chunker struct {
	size    int
	overlap int
	seps    []string
}

// New 校验并构造切分器；opts 为 nil 时使用默认值。
func New(opts *Options) (*Chunker, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 4000
	}
	if opts == nil || (opts.ChunkOverlap == 0 && opts.ChunkSize == 0) {
		o.ChunkOverlap = 200
	}
	if o.ChunkSize < 1 || o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d", contract.ErrInvalidInput, o.ChunkSize, o.ChunkOverlap)
	}
	seps := o.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	} else if seps[len(seps)-1] != "" {
		// 保证最终可退化到字符级
		seps = append(append([]string(nil), seps...), "")
	}
	return &Chunker{size: o.ChunkSize, overlap: o.ChunkOverlap, seps: seps}, nil
}

// span: 页文本中的半开字节区间 [s,e)。
type span struct{ s, e int }

// Chunk 按页切分；Chunk.Index 在整个文档内连续。
func (c *Chunker) Chunk(pages []contract.Page) []contract.Chunk {
	var out []contract.Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		for _, sp := range c.split(p.Text, span{0, len(p.Text)}, c.seps) {
			sp = trimSpan(p.Text, sp)
			if sp.s >= sp.e {
				continue
			}
			out = append(out, contract.Chunk{
				Index:      len(out),
				Text:       p.Text[sp.s:sp.e],
				SourcePage: p.Number,
				Start:      sp.s,
				End:        sp.e,
			})
		}
	}
	return out
}

func (c *Chunker) runes(text string, sp span) int {
	return utf8.RuneCountInString(text[sp.s:sp.e])
}

// split 选择区间内首个出现的分隔符切片，过长片段以更细分隔符递归。
func (c *Chunker) split(text string, seg span, seps []string) []span {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text[seg.s:seg.e], s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}
	pieces := cut(text, seg, sep)

	var out, good []span
	for _, p := range pieces {
		if c.runes(text, p) < c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(text, good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(text, p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(text, good)...)
	}
	return out
}

// cut 按分隔符切分，分隔符保留在前一片段末尾；sep 为空时逐字符切分。
func cut(text string, seg span, sep string) []span {
	var out []span
	if sep == "" {
		for i := seg.s; i < seg.e; {
			_, w := utf8.DecodeRuneInString(text[i:seg.e])
			out = append(out, span{i, i + w})
			i += w
		}
		return out
	}
	start := seg.s
	for start < seg.e {
		j := strings.Index(text[start:seg.e], sep)
		if j < 0 {
			out = append(out, span{start, seg.e})
			break
		}
		end := start + j + len(sep)
		out = append(out, span{start, end})
		start = end
	}
	return out
}

// merge 将连续小片段合并为不超过 size 的窗口，窗口尾部最多 overlap 个字符回带到下一窗口。
func (c *Chunker) merge(text string, pieces []span) []span {
	var out []span
	var cur []span
	total := 0
	for _, p := range pieces {
		l := c.runes(text, p)
		if total+l > c.size && len(cur) > 0 {
			out = append(out, span{cur[0].s, cur[len(cur)-1].e})
			for total > c.overlap || (total+l > c.size && total > 0) {
				total -= c.runes(text, cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l
	}
	if len(cur) > 0 {
		out = append(out, span{cur[0].s, cur[len(cur)-1].e})
	}
	return out
}

// trimSpan 去除首尾空白（仍为原文连续子串）。
func trimSpan(text string, sp span) span {
	for sp.s < sp.e {
		r, w := utf8.DecodeRuneInString(text[sp.s:sp.e])
		if !unicode.IsSpace(r) {
			break
		}
		sp.s += w
	}
	for sp.e > sp.s {
		r, w := utf8.DecodeLastRuneInString(text[sp.s:sp.e])
		if !unicode.IsSpace(r) {
			break
		}
		sp.e -= w
	}
	return sp
}

var _ contract.Chunker = (*Chunker)(nil)
