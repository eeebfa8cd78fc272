package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"rfpreq/internal/diag"
	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// Options: 抽取阶段配置。
type Options struct {
	// MinChunkChars: 去除首尾空白后短于该字符数的 Chunk 不调用 Oracle；默认 50。
	MinChunkChars int `json:"min_chunk_chars"`
}

// Extractor 从单个 Chunk 中识别候选需求句。
type Extractor struct {
	oracle   contract.Oracle
	minChars int
	log      *diag.Logger
}

func New(o contract.Oracle, opt Options, log *diag.Logger) *Extractor {
	if opt.MinChunkChars <= 0 {
		opt.MinChunkChars = 50
	}
	if log == nil {
		log = diag.Nop()
	}
	return &Extractor{oracle: o, minChars: opt.MinChunkChars, log: log}
}

// Extract 返回候选句（保持出现顺序）；Oracle 失败时返回空并记录日志，不向上传播。
func (e *Extractor) Extract(ctx context.Context, ch contract.Chunk) []contract.Candidate {
	text := strings.TrimSpace(ch.Text)
	if utf8.RuneCountInString(text) < e.minChars {
		diag.IncOp("extract", "chunk", "skipped")
		return nil
	}
	fileID := diag.FileIDFrom(ctx)
	resp, err := e.oracle.Call(ctx, prompt.Extract(ch.Text))
	if err != nil {
		e.log.WarnWithKV("extract", string(diag.Classify(err)), "extraction failed: "+err.Error(), fileID, "", map[string]string{
			"chunk": strconv.Itoa(ch.Index),
			"page":  strconv.Itoa(ch.SourcePage),
		})
		diag.IncOp("extract", "chunk", "error")
		return nil
	}
	out := Parse(resp.Text)
	diag.IncOp("extract", "chunk", "success")
	return out
}

var listMarker = regexp.MustCompile(`^(?:[-*•·]\s*|\d{1,3}[.)]\s+)`)

// Parse 将 Oracle 文本拆为候选句：每行一条，去列表符号，块内去重；
// 无需求哨兵（大小写不敏感）返回空。
func Parse(text string) []contract.Candidate {
	t := strings.TrimSpace(text)
	if t == "" || strings.EqualFold(t, prompt.NoRequirements) {
		return nil
	}
	seen := map[string]struct{}{}
	var out []contract.Candidate
	for _, line := range strings.Split(t, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || strings.EqualFold(line, prompt.NoRequirements) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, contract.Candidate{Text: line})
	}
	return out
}
