package contract

import (
	"context"
	"io"
)

// PageSource: 将单文件字节流解码为有序页序列。
// 约束：
// 1) 页码自 1 起、不重叠、严格递增；
// 2) 允许空页（由 Chunker 跳过）；
// 3) 仅做 CRLF→LF 的最小必要归一，不做业务清洗。
type PageSource interface {
	Pages(ctx context.Context, fileID FileID, r io.Reader) ([]Page, error)
}
