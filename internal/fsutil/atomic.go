package fsutil

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
)

// DefaultBufSize: 写缓冲区默认大小。
const DefaultBufSize = 64 * 1024

// WriteAtomic 以“同目录临时文件 → fsync → 替换 → 目录 fsync”写入 dest。
// 任一步失败时删除临时文件，dest 保持原样。
func WriteAtomic(ctx context.Context, dest string, r io.Reader, perm os.FileMode, bufSize int) error {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	// 目标权限：尽量与期望一致
	_ = os.Chmod(tmpPath, perm)

	bw := bufio.NewWriterSize(tmp, bufSize)
	if _, err := io.Copy(bw, ReaderWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// WriteFileAtomic 为 []byte 版本。
func WriteFileAtomic(dest string, data []byte, perm os.FileMode) error {
	return WriteAtomic(context.Background(), dest, bytes.NewReader(data), perm, len(data)+1)
}

// ReaderWithCtx 在每次 Read 前检查 ctx 是否已取消。
func ReaderWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
