package csvout

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"rfpreq/pkg/contract"
)

// Header: 固定列顺序（下游兼容契约）。
var Header = []string{
	"ID", "Type", "Name", "Description", "TargetTask", "ProcessingDetail",
	"CategoryLarge", "CategoryMedium", "CategorySmall", "Importance", "Difficulty",
	"SourcePage", "RawText",
}

// Options: CSV 导出配置。
type Options struct {
	// BOM: 输出 UTF-8 BOM（便于表格软件识别编码），默认关闭。
	BOM bool `json:"bom"`
	// CRLF: 使用 \r\n 行尾。
	CRLF bool `json:"crlf"`
}

type Exporter struct {
	bom  bool
	crlf bool
}

func New(opts *Options) *Exporter {
	if opts == nil {
		return &Exporter{}
	}
	return &Exporter{bom: opts.BOM, crlf: opts.CRLF}
}

func (e *Exporter) Name() string { return "csv" }
func (e *Exporter) Ext() string  { return "csv" }

func row(r contract.Requirement) []string {
	return []string{
		r.ID, string(r.Type), r.Name, r.Description, r.TargetTask, r.ProcessingDetail,
		r.CategoryLarge, r.CategoryMedium, r.CategorySmall, string(r.Importance), string(r.Difficulty),
		strconv.Itoa(r.SourcePage), r.RawText,
	}
}

// Export 输出表头与每条记录；空列表仅含表头。
func (e *Exporter) Export(ctx context.Context, reqs []contract.Requirement) (io.Reader, error) {
	var buf bytes.Buffer
	if e.bom {
		buf.WriteString("\ufeff")
	}
	w := csv.NewWriter(&buf)
	w.UseCRLF = e.crlf
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.Write(row(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &buf, nil
}

var _ contract.Exporter = (*Exporter)(nil)
