package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"rfpreq/pkg/contract"
)

// Exporter 每行一条 JSON 记录（边车工件，便于流式消费与 grep）。
type Exporter struct{}

func New() *Exporter { return &Exporter{} }

func (e *Exporter) Name() string { return "jsonl" }
func (e *Exporter) Ext() string  { return "jsonl" }

func (e *Exporter) Export(ctx context.Context, reqs []contract.Requirement) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := enc.Encode(reqs[i]); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}

var _ contract.Exporter = (*Exporter)(nil)
