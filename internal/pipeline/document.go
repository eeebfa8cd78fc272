package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rfpreq/internal/assess"
	"rfpreq/internal/diag"
	"rfpreq/pkg/contract"
)

// 阶段依赖（由 internal/extract、refine、assess、idgen 实现）。
type (
	Extractor interface {
		Extract(ctx context.Context, ch contract.Chunk) []contract.Candidate
	}
	Refiner interface {
		Refine(ctx context.Context, cand contract.Candidate, ch contract.Chunk) (contract.Draft, error)
	}
	Assessor interface {
		Assess(ctx context.Context, d contract.Draft) assess.Assessment
	}
	IDGenerator interface {
		Generate(ctx context.Context, targetTask, categoryLarge string) (string, error)
	}
)

// Stages 聚合单文档处理所需的阶段组件。
type Stages struct {
	Chunker   contract.Chunker
	Extractor Extractor
	Refiner   Refiner
	Assessor  Assessor
	IDs       IDGenerator
}

// Status: 文档处理结论。
type Status string

const (
	StatusOK Status = "ok"
	// StatusNoRequirements: 无可抽取文本或未得到任何草稿（显式结果，而非错误）。
	StatusNoRequirements Status = "no_requirements"
)

// Result: 单文档处理结果；Requirements 按文档顺序排列。
type Result struct {
	Requirements []contract.Requirement
	Chunks       int
	Candidates   int
	// Dropped: 精炼失败被跳过的候选句数。
	Dropped int
	Status  Status
}

// ProgressFunc: 阶段进度回调（stage 为 extract|assess）。
type ProgressFunc func(stage string, done, total, errs int)

// Processor 是单点并发层：阶段组件均为同步实现，并发与背压仅在此管理。
type Processor struct {
	stages      Stages
	concurrency int
	log         *diag.Logger
	progress    ProgressFunc
}

// NewProcessor 校验组件并构造处理器；concurrency<=0 时为 3。
func NewProcessor(st Stages, concurrency int, log *diag.Logger) (*Processor, error) {
	if st.Chunker == nil || st.Extractor == nil || st.Refiner == nil || st.Assessor == nil || st.IDs == nil {
		return nil, errors.New("pipeline: missing stages")
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = diag.Nop()
	}
	return &Processor{stages: st, concurrency: concurrency, log: log}, nil
}

// OnProgress 注册进度回调（可为空）。
func (p *Processor) OnProgress(fn ProgressFunc) { p.progress = fn }

func (p *Processor) report(stage string, done, total, errs int) {
	if p.progress != nil {
		p.progress(stage, done, total, errs)
	}
}

// ProcessDocument: chunk → extract/refine（按 Chunk 并发）→ 每个草稿一个图实例（有界并发）。
// 仅 ctx 取消作为错误返回；其余失败均降级为哨兵值或被计入 Dropped。
func (p *Processor) ProcessDocument(ctx context.Context, pages []contract.Page) (Result, error) {
	fileID := diag.FileIDFrom(ctx)
	t0 := time.Now()

	ctimer := p.log.StartWith("chunker", "chunk", fileID, "")
	chunks := p.stages.Chunker.Chunk(pages)
	ctimer.Finish("chunk", int64(len(chunks)))
	res := Result{Chunks: len(chunks), Status: StatusNoRequirements}
	if len(chunks) == 0 {
		return res, nil
	}

	drafts, cands, dropped, err := p.draftAll(ctx, chunks)
	res.Candidates, res.Dropped = cands, dropped
	if err != nil {
		return res, err
	}
	if len(drafts) == 0 {
		return res, nil
	}

	reqs, err := p.assessAll(ctx, drafts)
	if err != nil {
		return res, err
	}
	if verr := contract.ValidateRequirements(reqs); verr != nil {
		p.log.ErrorWith("pipeline", string(diag.Classify(verr)), verr.Error(), nil, fileID, "")
		diag.IncError("pipeline", string(diag.Classify(verr)))
	}
	res.Requirements = reqs
	res.Status = StatusOK
	diag.ObserveDuration("pipeline", "document", time.Since(t0).Milliseconds())
	return res, nil
}

// draftAll 按 Chunk 并发抽取并精炼；结果按 (chunk, 句序) 排列。
func (p *Processor) draftAll(ctx context.Context, chunks []contract.Chunk) ([]contract.Draft, int, int, error) {
	fileID := diag.FileIDFrom(ctx)
	perChunk := make([][]contract.Draft, len(chunks))
	var cands, dropped, done atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := strconv.Itoa(ch.Index)
			found := p.stages.Extractor.Extract(ctx, ch)
			cands.Add(int64(len(found)))
			out := make([]contract.Draft, 0, len(found))
			for _, c := range found {
				d, err := p.stages.Refiner.Refine(ctx, c, ch)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					dropped.Add(1)
					p.log.WarnWithKV("refine", string(diag.Classify(err)), "candidate dropped: "+err.Error(), fileID, item, map[string]string{
						"page": strconv.Itoa(ch.SourcePage),
					})
					continue
				}
				out = append(out, d)
			}
			perChunk[i] = out
			p.report("extract", int(done.Add(1)), len(chunks), int(dropped.Load()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, int(cands.Load()), int(dropped.Load()), err
	}
	var drafts []contract.Draft
	for _, ds := range perChunk {
		drafts = append(drafts, ds...)
	}
	return drafts, int(cands.Load()), int(dropped.Load()), nil
}

// assessAll 在有界池上运行图实例；结果按草稿下标写回，保证文档顺序。
func (p *Processor) assessAll(ctx context.Context, drafts []contract.Draft) ([]contract.Requirement, error) {
	out := make([]contract.Requirement, len(drafts))
	var mu sync.Mutex
	done, degraded := 0, 0

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, d := range drafts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := p.runGraph(ctx, d, fmt.Sprintf("draft-%d", i))
			out[i] = rec
			mu.Lock()
			done++
			if rec.Degraded() {
				degraded++
			}
			n, e := done, degraded
			mu.Unlock()
			p.report("assess", n, len(drafts), e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// 取消发生在最后一个实例之后也视为中断
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
