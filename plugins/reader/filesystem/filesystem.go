package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rfpreq/pkg/contract"
)

// Options: RFP 输入源配置。
type Options struct {
	// BufSize: 读缓冲区大小，默认 64KiB。
	BufSize int `json:"buf_size,omitempty"`
	// Extensions: 目录扫描时接受的扩展名（含点，大小写不敏感），默认 .txt/.json。
	// 显式给出的单文件 root 不受过滤。
	Extensions []string `json:"extensions,omitempty"`
	// ExcludeDirNames: 扫描时跳过的目录基名。
	ExcludeDirNames []string `json:"exclude_dir_names,omitempty"`
	// IncludeHidden: 是否扫描以 "." 开头的文件与目录。
	IncludeHidden bool `json:"include_hidden,omitempty"`
}

// DefaultExtensions: 与内置 PageSource 对应的输入扩展名。
var DefaultExtensions = []string{".txt", ".json"}

// StdinID: 从标准输入读取时的 FileID。
const StdinID contract.FileID = "stdin"

type FileSystem struct {
	bufSize    int
	exts       map[string]struct{}
	excludeDir map[string]struct{}
	hidden     bool
}

func New(opts *Options) *FileSystem {
	r := &FileSystem{
		bufSize:    64 * 1024,
		exts:       lowerSet(DefaultExtensions),
		excludeDir: map[string]struct{}{},
	}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if len(opts.Extensions) > 0 {
		norm := make([]string, 0, len(opts.Extensions))
		for _, e := range opts.Extensions {
			e = strings.TrimSpace(e)
			if e != "" && !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			norm = append(norm, e)
		}
		r.exts = lowerSet(norm)
	}
	r.excludeDir = lowerSet(opts.ExcludeDirNames)
	r.hidden = opts.IncludeHidden
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 按稳定顺序（roots 顺序 + 目录内字典序）对每个输入文档调用 yield。
// roots 为空或仅为 "-" 时读取 STDIN；"-" 不得与其他 root 混用。
// yield 负责关闭 rc；yield 返回错误时立即终止。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(StdinID, r.buffered(io.NopCloser(os.Stdin)))
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other roots", contract.ErrInvalidInput)
		}
	}
	for _, root := range roots {
		if err := r.iterateRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateRoot(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil
		}
		return r.open(root, yield)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, skip := r.excludeDir[strings.ToLower(name)]; skip || (!r.hidden && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !r.hidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if _, ok := r.exts[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		// WalkDir 不跟随符号链接：仅接受指向常规文件的链接
		if d.Type()&fs.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil || !t.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		return r.open(p, yield)
	})
}

func (r *FileSystem) open(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	rc := r.buffered(f)
	if err := yield(contract.NormalizeFileID(p), rc); err != nil {
		_ = rc.Close()
		return err
	}
	return nil
}

type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

func (r *FileSystem) buffered(rc io.ReadCloser) io.ReadCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(rc, r.bufSize), c: rc}
}

func lowerSet(in []string) map[string]struct{} {
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}
