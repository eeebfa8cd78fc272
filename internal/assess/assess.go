package assess

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"rfpreq/internal/diag"
	"rfpreq/internal/prompt"
	"rfpreq/pkg/contract"
)

// Assessment: 三个维度的合并结果；失败维度以哨兵值占位。
type Assessment struct {
	CategoryLarge  string
	CategoryMedium string
	CategorySmall  string
	Importance     contract.Level
	Difficulty     contract.Level
	// Failures: 各维度失败说明，写入 error_processing。
	Failures []string
}

// Assessor 并发执行分类、重要度、难度三次评估。
type Assessor struct {
	oracle contract.Oracle
	log    *diag.Logger
}

func New(o contract.Oracle, log *diag.Logger) *Assessor {
	if log == nil {
		log = diag.Nop()
	}
	return &Assessor{oracle: o, log: log}
}

// Classification: 三级分类结果。
type Classification struct{ Large, Medium, Small string }

// Assess 总是返回完整的 Assessment；单维度失败不影响其余维度。
func (a *Assessor) Assess(ctx context.Context, d contract.Draft) Assessment {
	var (
		cls       Classification
		imp, diff contract.Level
		fails     [3]string
	)
	var g errgroup.Group
	g.Go(func() error {
		cls, fails[0] = guard("classification", func() (Classification, error) { return a.classify(ctx, d) },
			Classification{contract.SentinelError, contract.SentinelError, contract.SentinelError})
		return nil
	})
	g.Go(func() error {
		imp, fails[1] = guard("importance", func() (contract.Level, error) {
			return a.level(ctx, prompt.Importance(d), "중요도")
		}, contract.LevelError)
		return nil
	})
	g.Go(func() error {
		diff, fails[2] = guard("difficulty", func() (contract.Level, error) {
			return a.level(ctx, prompt.Difficulty(d), "난이도")
		}, contract.LevelError)
		return nil
	})
	_ = g.Wait()

	out := Assessment{
		CategoryLarge:  cls.Large,
		CategoryMedium: cls.Medium,
		CategorySmall:  cls.Small,
		Importance:     imp,
		Difficulty:     diff,
	}
	fileID := diag.FileIDFrom(ctx)
	for _, f := range fails {
		if f == "" {
			continue
		}
		out.Failures = append(out.Failures, f)
		a.log.WarnWithKV("assess", "oracle", f, fileID, d.Name, nil)
	}
	return out
}

// guard 执行单个维度：错误或 panic 时返回 fallback 与失败说明。
func guard[T any](aspect string, fn func() (T, error), fallback T) (v T, failure string) {
	defer func() {
		if r := recover(); r != nil {
			v, failure = fallback, fmt.Sprintf("%s: panic: %v", aspect, r)
			diag.IncOp("assess", aspect, "panic")
		}
	}()
	v, err := fn()
	if err != nil {
		diag.IncOp("assess", aspect, "error")
		return fallback, fmt.Sprintf("%s: %v", aspect, err)
	}
	diag.IncOp("assess", aspect, "success")
	return v, ""
}

func (a *Assessor) classify(ctx context.Context, d contract.Draft) (Classification, error) {
	resp, err := a.oracle.Call(ctx, prompt.Classify(d))
	if err != nil {
		return Classification{}, err
	}
	return ParseClassification(resp.Text), nil
}

func (a *Assessor) level(ctx context.Context, req contract.Request, label string) (contract.Level, error) {
	resp, err := a.oracle.Call(ctx, req)
	if err != nil {
		return "", err
	}
	lv, ok := ParseLevel(resp.Text, label)
	if !ok {
		return "", fmt.Errorf("%w: no %s in %q", contract.ErrResponseInvalid, label, clip(resp.Text, 80))
	}
	return lv, nil
}

// ParseClassification 读取 대분류/중분류/소분류 行；缺失行为 미분류，소분류 的 해당 없음 归一为 N/A。
func ParseClassification(text string) Classification {
	c := Classification{contract.SentinelUnclassified, contract.SentinelUnclassified, contract.SentinelUnclassified}
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := labeled(line)
		if !ok {
			continue
		}
		switch key {
		case "대분류":
			c.Large = orUnclassified(val)
		case "중분류":
			c.Medium = orUnclassified(val)
		case "소분류":
			if strings.ReplaceAll(val, " ", "") == "해당없음" {
				c.Small = contract.SentinelNA
			} else {
				c.Small = orUnclassified(val)
			}
		}
	}
	return c
}

// ParseLevel 读取 "<label>: <상|중|하>" 行。
func ParseLevel(text, label string) (contract.Level, bool) {
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := labeled(line)
		if !ok || key != label {
			continue
		}
		if lv, ok := contract.ParseLevel(val); ok {
			return lv, true
		}
		// 容忍 "상 (Critical)" 之类的附注
		if f := strings.FieldsFunc(val, func(r rune) bool { return r == ' ' || r == '(' }); len(f) > 0 {
			return contract.ParseLevel(f[0])
		}
	}
	return "", false
}

// labeled 解析 "键: 值"，容忍 markdown 列表/加粗与全角冒号。
func labeled(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
	line = strings.ReplaceAll(line, "**", "")
	line = strings.Replace(line, "：", ":", 1)
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.Trim(strings.TrimSpace(v), `"'<>`), true
}

func orUnclassified(s string) string {
	if s == "" {
		return contract.SentinelUnclassified
	}
	return s
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
