package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
)

func write(t *testing.T, p, s string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
}

func collect(t *testing.T, r *FileSystem, roots ...string) (ids []string, bodies map[string]string) {
	t.Helper()
	bodies = map[string]string{}
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		ids = append(ids, string(id))
		bodies[string(id)] = string(b)
		return nil
	})
	require.NoError(t, err)
	return ids, bodies
}

// 单文件 root 不受扩展名过滤
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "제안요청서.hwp.txt")
	write(t, fp, "시스템은 로그인 기능을 제공해야 한다.")
	ids, bodies := collect(t, New(nil), fp)
	require.Equal(t, []string{string(contract.NormalizeFileID(fp))}, ids)
	assert.Equal(t, "시스템은 로그인 기능을 제공해야 한다.", bodies[ids[0]])

	other := filepath.Join(dir, "notes.md")
	write(t, other, "x")
	ids, _ = collect(t, New(nil), other)
	assert.Len(t, ids, 1)
}

// 目录扫描：字典序、扩展名过滤、隐藏与排除目录
func TestIterateDirectory(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.txt"), "b")
	write(t, filepath.Join(dir, "a.JSON"), "[]")
	write(t, filepath.Join(dir, "c.pdf"), "%PDF")
	write(t, filepath.Join(dir, ".hidden.txt"), "h")
	write(t, filepath.Join(dir, "sub", "d.txt"), "d")
	write(t, filepath.Join(dir, "skip", "e.txt"), "e")
	write(t, filepath.Join(dir, ".git", "f.txt"), "f")

	ids, _ := collect(t, New(&Options{ExcludeDirNames: []string{"SKIP"}}), dir)
	want := []string{
		string(contract.NormalizeFileID(filepath.Join(dir, "a.JSON"))),
		string(contract.NormalizeFileID(filepath.Join(dir, "b.txt"))),
		string(contract.NormalizeFileID(filepath.Join(dir, "sub", "d.txt"))),
	}
	assert.Equal(t, want, ids)

	ids, _ = collect(t, New(&Options{Extensions: []string{"pdf"}, IncludeHidden: true}), dir)
	assert.Equal(t, []string{string(contract.NormalizeFileID(filepath.Join(dir, "c.pdf")))}, ids)
}

// 多个 root 按给定顺序
func TestIterateRootsOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "z.txt")
	b := filepath.Join(dir, "a.txt")
	write(t, a, "1")
	write(t, b, "2")
	ids, _ := collect(t, New(nil), a, b)
	assert.Equal(t, []string{string(contract.NormalizeFileID(a)), string(contract.NormalizeFileID(b))}, ids)
}

func TestIterateSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink requires privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real", "t.txt")
	write(t, target, "ok")
	scan := filepath.Join(dir, "scan")
	require.NoError(t, os.MkdirAll(scan, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(scan, "l.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), filepath.Join(scan, "dirlink.txt")))

	ids, bodies := collect(t, New(nil), scan)
	require.Len(t, ids, 1)
	assert.Equal(t, "ok", bodies[ids[0]])
}

func TestIterateErrors(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{"-", "a.txt"}, func(contract.FileID, io.ReadCloser) error { return nil })
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	err = r.Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "missing.txt")}, func(contract.FileID, io.ReadCloser) error { return nil })
	require.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Iterate(ctx, []string{"."}, func(contract.FileID, io.ReadCloser) error { return nil }), context.Canceled)

	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "a")
	write(t, filepath.Join(dir, "b.txt"), "b")
	stop := errors.New("stop")
	calls := 0
	err = r.Iterate(context.Background(), []string{dir}, func(_ contract.FileID, rc io.ReadCloser) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestIterateStdin(t *testing.T) {
	old := os.Stdin
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	os.Stdin = pr
	t.Cleanup(func() { os.Stdin = old; _ = pr.Close() })
	go func() {
		_, _ = pw.Write([]byte("시스템은 백업을 지원해야 한다."))
		_ = pw.Close()
	}()
	ids, bodies := collect(t, New(nil), "-")
	require.Equal(t, []string{string(StdinID)}, ids)
	assert.Equal(t, "시스템은 백업을 지원해야 한다.", bodies["stdin"])
}
