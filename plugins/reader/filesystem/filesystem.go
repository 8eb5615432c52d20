// Package filesystem 提供基于文件系统与 STDIN 的 Reader：单文件、目录递归或 "-"。
package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ftprep/pkg/contract"
)

const defaultBufSize = 64 * 1024

// Options 为 FileSystem Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames 目录递归时跳过的目录基名（大小写不敏感），不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// SkipHidden 目录递归时跳过以 "." 开头的条目。
	SkipHidden bool `json:"skip_hidden"`
}

// FileSystem 实现 contract.Reader。顺序稳定，内部不并发。
type FileSystem struct {
	bufSize    int
	skipHidden bool
	excludeDir map[string]struct{}
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: defaultBufSize, excludeDir: map[string]struct{}{}}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	r.skipHidden = opts.SkipHidden
	for _, name := range opts.ExcludeDirNames {
		name = strings.Trim(name, `/\ `)
		if name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	return r
}

// Iterate 按 roots 顺序依次产出输入；roots 为空或仅为 "-" 时读取 STDIN（FileID 为 "stdin"）。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(os.Stdin, r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other inputs", contract.ErrInvalidInput)
		}
	}
	for _, root := range roots {
		if err := r.iterateRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

// iterateRoot 处理显式给出的输入：跟随符号链接；目录则遍历，
// 常规文件、FIFO 与字符设备直接读取，其余类型返回 ErrInvalidInput。
func (r *FileSystem) iterateRoot(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return r.walkDir(ctx, root, yield)
	case mode.IsRegular(), mode&fs.ModeNamedPipe != 0, mode&fs.ModeCharDevice != 0:
		return r.emit(root, yield)
	}
	return fmt.Errorf("%w: %s: unsupported file type %s", contract.ErrInvalidInput, root, mode.Type())
}

// walkDir 字典序，先子目录后文件；不跟随目录符号链接，跳过 FIFO、设备等非常规条目。
func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []fs.DirEntry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.skipHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() {
			files = append(files, e)
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			ok, err := regularTarget(p)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		case !e.Type().IsRegular():
			// 设备、FIFO 等
			continue
		}
		if err := r.emit(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) emit(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

func regularTarget(p string) (bool, error) {
	t, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return t.Mode().IsRegular(), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
