package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"ftprep/pkg/contract"
)

// Options: 文件输出配置。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Ext: 追加到输出文件名的扩展名，默认 ".tsv"。
	Ext string `json:"ext"`
	// Atomic: 同目录临时文件 + rename。nil 表示默认 true。
	// 开启时，中途失败的输入不会留下半截文件。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 仅保留输入文件基名，不保留目录层级。nil 表示默认 true。
	Flat *bool `json:"flat,omitempty"`
	// PermFile/PermDir: 为 0 表示 0o644/0o755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将每个输入的结果写到 OutputDir 下独立的文件。
type FS struct {
	root    string
	ext     string
	atomic  bool
	flat    bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int

	// claimed 记录本 Writer 已写出的目标及其来源 id；不同 id 映射到同一目标视为冲突。
	mu      sync.Mutex
	claimed map[string]contract.ArtifactID
}

var _ contract.Writer = (*FS)(nil)

// New 创建文件系统 Writer。OutputDir 为空返回 os.ErrInvalid。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	w := &FS{
		root:    opts.OutputDir,
		ext:     ".tsv",
		atomic:  true,
		flat:    true,
		permF:   0o644,
		permD:   0o755,
		bufSize: 64 * 1024,
		claimed: make(map[string]contract.ArtifactID),
	}
	if opts.Ext != "" {
		w.ext = opts.Ext
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.Flat != nil {
		w.flat = *opts.Flat
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	return w, nil
}

// Write 将 r 的全部字节写入 id 映射出的目标文件。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := w.claim(dest, id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// claim 登记 dest；同一 id 重复写入允许覆盖，不同 id 撞名返回 ErrPathInvalid。
func (w *FS) claim(dest string, id contract.ArtifactID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.claimed[dest]; ok && prev != id {
		return fmt.Errorf("%w: %q and %q both map to %s (set flat=false to keep directories)", contract.ErrPathInvalid, prev, id, dest)
	}
	w.claimed[dest] = id
	return nil
}

// mapPath: Clean + Join + 越界校验，最后追加扩展名。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(w.root, rel+w.ext), nil
	}
	switch {
	case rel == "." || rel == "..":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel), filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel+w.ext), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriterSize(f, w.bufSize)
	_, err = io.Copy(bw, readerWithCtx(ctx, r))
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	return err
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err = io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	// Windows 上 os.Rename 使用 MoveFileEx(REPLACE_EXISTING)，同样覆盖目标
	if err = os.Rename(tmpPath, dest); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力同步父目录元数据；Windows 不支持目录 fsync。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
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
