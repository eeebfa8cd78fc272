package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// 原子写入并替换已有工件
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "docs/rfp.json", bytes.NewBufferString("[]")))
	require.NoError(t, w.Write(context.Background(), "docs/rfp.json", bytes.NewBufferString(`[{"id":"REQ-AUT-SEC-0001"}]`)))
	b, err := os.ReadFile(filepath.Join(dir, "rfp.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "REQ-AUT-SEC-0001")
	noTmp(t, dir)
}

// 非扁平保留层级；越界路径拒绝
func TestWriteNestedAndInvalid(t *testing.T) {
	dir := t.TempDir()
	flat := false
	w, _ := New(&Options{OutputDir: dir, Flat: &flat})
	require.NoError(t, w.Write(context.Background(), "sub/rfp.csv", bytes.NewBufferString("ID\n")))
	_, err := os.Stat(filepath.Join(dir, "sub", "rfp.csv"))
	require.NoError(t, err)
	err = w.Write(context.Background(), "../bad.csv", bytes.NewBufferString("x"))
	require.ErrorIs(t, err, contract.ErrPathInvalid)
}

// 非原子写入
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &a})
	require.NoError(t, w.Write(context.Background(), "out.jsonl", strings.NewReader("{}\n")))
	b, _ := os.ReadFile(filepath.Join(dir, "out.jsonl"))
	assert.Equal(t, "{}\n", string(b))
}

// NoClobber 拒绝覆盖
func TestNoClobber(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir, NoClobber: true})
	require.NoError(t, w.Write(context.Background(), "a.json", strings.NewReader("1")))
	err := w.Write(context.Background(), "a.json", strings.NewReader("2"))
	require.ErrorIs(t, err, ErrExists)
	b, _ := os.ReadFile(filepath.Join(dir, "a.json"))
	assert.Equal(t, "1", string(b))
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// 取消、拷贝失败与参数缺失
func TestWriteFailures(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Write(ctx, "a.json", strings.NewReader("x")), context.Canceled)
	require.Error(t, w.Write(context.Background(), "a.json", errReader{}))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)

	_, err := New(nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&Options{OutputDir: " "})
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

// 非扁平模式：工件路径必须落在 output_dir 内
func TestMapPathTree(t *testing.T) {
	dir := t.TempDir()
	flat := false
	w, err := New(&Options{OutputDir: dir, Flat: &flat})
	require.NoError(t, err)

	got, err := w.mapPath("docs/2024/rfp.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docs", "2024", "rfp.json"), got)

	abs := filepath.Join(t.TempDir(), "rfp.json")
	for _, id := range []string{abs, "..", ".", "../rfp.csv"} {
		_, err := w.mapPath(contract.ArtifactID(id))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, id)
	}
}
