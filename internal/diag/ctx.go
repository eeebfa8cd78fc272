package diag

import "context"

type fileIDKey struct{}

// WithFileID 在 ctx 中携带当前文档标识，供深层组件写入日志 file_id。
func WithFileID(ctx context.Context, fileID string) context.Context {
	return context.WithValue(ctx, fileIDKey{}, fileID)
}

// FileIDFrom 取回文档标识；不存在时返回空串。
func FileIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(fileIDKey{}).(string)
	return s
}
