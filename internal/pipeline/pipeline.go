package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"rfpreq/internal/diag"
	"rfpreq/pkg/contract"
)

// - 逐文件处理：Reader 按文件回调，文件内部由 Processor 管理并发。
// - 首错返回：页解码、导出、写出失败即终止运行（与其它文件无关的降级只发生在阶段内部）。
// - 空文档：仍写出合法的空工件（"[]"、仅表头 CSV）。

// Components 聚合运行所需的组件。
type Components struct {
	Reader    contract.Reader
	Pages     contract.PageSource
	Processor *Processor
	Exporters []contract.Exporter
	Writer    contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// Terminal: 终端提示（可选）。
	Terminal *diag.Terminal
}

// Summary: 运行汇总。
type Summary struct {
	Files        int
	Requirements int
	Degraded     int
}

// Run 执行完整流水线：Reader → PageSource → ProcessDocument → Exporter* → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	var sum Summary
	if err := sanity(comp, set); err != nil {
		return sum, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	term := set.Terminal
	comp.Processor.OnProgress(term.FileProgress)

	perFile := func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		fid := string(fileID)
		fctx := diag.WithFileID(ctx, fid)

		ptimer := logger.StartWith("pages", "decode", fid, "")
		pages, err := comp.Pages.Pages(fctx, fileID, rc)
		if err != nil {
			logFailure(logger, "pages", "decode failed", fid, err)
			return fmt.Errorf("pages %s: %w", fid, err)
		}
		ptimer.Finish("decode", int64(len(pages)))

		term.FileStart(fid, len(pages))
		fileStart := time.Now()
		ok := false
		nreq, ndeg := 0, 0
		defer func() { term.FileFinish(ok, nreq, ndeg, time.Since(fileStart)) }()

		dtimer := logger.StartWith("pipeline", "document", fid, "")
		res, err := comp.Processor.ProcessDocument(fctx, pages)
		if err != nil {
			logFailure(logger, "pipeline", "document aborted", fid, err)
			return fmt.Errorf("process %s: %w", fid, err)
		}
		dtimer.Finish(string(res.Status), int64(len(res.Requirements)))
		logger.DebugStart("pipeline", "document_stats", fid, "", map[string]string{
			"chunks":     fmt.Sprint(res.Chunks),
			"candidates": fmt.Sprint(res.Candidates),
			"dropped":    fmt.Sprint(res.Dropped),
			"status":     string(res.Status),
		})

		for _, ex := range comp.Exporters {
			if err := export(fctx, comp.Writer, ex, fileID, res.Requirements, logger); err != nil {
				return err
			}
		}
		nreq = len(res.Requirements)
		for _, r := range res.Requirements {
			if r.Degraded() {
				ndeg++
			}
		}
		sum.Files++
		sum.Requirements += nreq
		sum.Degraded += ndeg
		ok = true
		return nil
	}

	rtimer := logger.Start("reader", "iterate")
	if err := comp.Reader.Iterate(ctx, set.Inputs, perFile); err != nil {
		logFailure(logger, "reader", "iterate failed", "", err)
		return sum, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(sum.Files))
	diag.IncOp("reader", "finish", "success")
	return sum, nil
}

func export(ctx context.Context, w contract.Writer, ex contract.Exporter, fileID contract.FileID, reqs []contract.Requirement, logger *diag.Logger) error {
	fid := string(fileID)
	art := contract.ArtifactFor(fileID, ex.Ext())
	etimer := logger.StartWith("exporter", ex.Name(), fid, string(art))
	r, err := ex.Export(ctx, reqs)
	if err != nil {
		logFailure(logger, "exporter", ex.Name()+" failed", fid, err)
		return fmt.Errorf("exporter %s: %w", ex.Name(), err)
	}
	etimer.Finish("export", int64(len(reqs)))

	wtimer := logger.StartWith("writer", "write", fid, string(art))
	if err := w.Write(ctx, art, r); err != nil {
		logFailure(logger, "writer", "write failed", fid, err)
		return fmt.Errorf("writer write %s: %w", art, err)
	}
	wtimer.Finish("write", 1)
	diag.IncOp("writer", "finish", "success")
	return nil
}

func logFailure(logger *diag.Logger, comp, msg, fileID string, err error) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), msg+": "+err.Error(), nil, fileID, "")
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Pages == nil || c.Processor == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(c.Exporters) == 0 {
		return errors.New("pipeline: no exporters")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}
