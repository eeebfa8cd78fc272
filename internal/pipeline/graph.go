package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rfpreq/internal/assess"
	"rfpreq/internal/diag"
	"rfpreq/pkg/contract"
)

// graphState: 单个草稿在图中流转的状态。
type graphState struct {
	draft      contract.Draft
	assessment assess.Assessment
	id         string
	failures   []string
	record     contract.Requirement
}

// node: 图中的命名节点，按声明顺序执行。
type node struct {
	name string
	run  func(ctx context.Context, st *graphState) error
}

// graph: assess → generate_id → combine。
func (p *Processor) graph() []node {
	return []node{
		{"assess", func(ctx context.Context, st *graphState) error {
			st.assessment = p.stages.Assessor.Assess(ctx, st.draft)
			st.failures = append(st.failures, st.assessment.Failures...)
			return nil
		}},
		{"generate_id", func(ctx context.Context, st *graphState) error {
			id, err := p.stages.IDs.Generate(ctx, st.draft.TargetTask, st.assessment.CategoryLarge)
			switch {
			case err == nil:
				st.id = id
			case id == contract.SentinelID && errors.Is(err, contract.ErrOracle):
				// 代码推导从未成功：保留评估结果，仅 ID 降级
				st.id = contract.SentinelID
				st.failures = append(st.failures, "generate_id: "+err.Error())
			default:
				return err
			}
			return nil
		}},
		{"combine", func(ctx context.Context, st *graphState) error {
			st.record = combine(st.draft, st.assessment, st.id, st.failures)
			return nil
		}},
	}
}

// runGraph 执行单个图实例；任何节点错误或 panic 在边界处转为哨兵记录，记录总会产出。
func (p *Processor) runGraph(ctx context.Context, d contract.Draft, item string) (rec contract.Requirement) {
	fileID := diag.FileIDFrom(ctx)
	timer := p.log.StartWith("graph", "instance", fileID, item)
	current := ""
	defer func() {
		if r := recover(); r != nil {
			rec = failed(d, fmt.Sprintf("%s: panic: %v", current, r))
			p.log.ErrorWith("graph", string(diag.CodeInvariant), "node panicked: "+current, timer.Since(), fileID, item)
			diag.IncOp("graph", current, "panic")
		}
	}()
	st := &graphState{draft: d}
	for _, n := range p.graph() {
		current = n.name
		if err := n.run(ctx, st); err != nil {
			code := diag.Classify(err)
			p.log.ErrorWith("graph", string(code), n.name+" failed: "+err.Error(), timer.Since(), fileID, item)
			diag.IncOp("graph", n.name, "error")
			diag.IncError("graph", string(code))
			return failed(d, fmt.Sprintf("%s: %v", n.name, err))
		}
	}
	timer.Finish("instance", 1)
	diag.IncOp("graph", "instance", "success")
	return st.record
}

// combine 纯合并，不做 I/O。
func combine(d contract.Draft, a assess.Assessment, id string, failures []string) contract.Requirement {
	return contract.Requirement{
		ID:               id,
		Type:             d.Type,
		Name:             d.Name,
		Description:      d.Description,
		TargetTask:       d.TargetTask,
		ProcessingDetail: d.ProcessingDetail,
		SourcePage:       d.SourcePage,
		RawText:          d.RawText,
		CategoryLarge:    a.CategoryLarge,
		CategoryMedium:   a.CategoryMedium,
		CategorySmall:    a.CategorySmall,
		Importance:       a.Importance,
		Difficulty:       a.Difficulty,
		ErrorProcessing:  strings.Join(failures, "; "),
	}
}

// failed: 图实例整体失败时的记录；草稿字段与溯源保留，评估字段全部为 Error。
func failed(d contract.Draft, reason string) contract.Requirement {
	return combine(d, assess.Assessment{
		CategoryLarge:  contract.SentinelError,
		CategoryMedium: contract.SentinelError,
		CategorySmall:  contract.SentinelError,
		Importance:     contract.LevelError,
		Difficulty:     contract.LevelError,
	}, contract.SentinelID, []string{reason})
}
