package contract

import (
	"context"
	"io"
)

// Exporter: 将最终需求列表序列化为单个工件。
// 约束：
//  1. 保持输入顺序；
//  2. 列/字段的顺序与存在性是对下游的兼容契约；
//  3. 空列表也产出合法工件（如 "[]" 或仅表头）。
type Exporter interface {
	Name() string
	// Ext: 工件扩展名（不含点），Writer 以 "<base>.<ext>" 命名。
	Ext() string
	Export(ctx context.Context, reqs []Requirement) (io.Reader, error)
}
