package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftprep/pkg/contract"
)

func collect(t *testing.T, r *FileSystem, roots []string) (ids []string, data map[string]string) {
	t.Helper()
	data = map[string]string{}
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		ids = append(ids, string(id))
		data[string(id)] = string(b)
		return nil
	})
	require.NoError(t, err)
	return ids, data
}

func writeFile(t *testing.T, p, s string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
}

// TestIterateSingleFile 读取单文件
func TestIterateSingleFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "galaxy_sample")
	writeFile(t, fp, "1|aGVsbG8=\n")
	ids, data := collect(t, New(nil), []string{fp})
	require.Len(t, ids, 1)
	assert.Equal(t, string(contract.NormalizeFileID(fp)), ids[0])
	assert.Equal(t, "1|aGVsbG8=\n", data[ids[0]])
}

// 目录：字典序，先子目录后文件。
func TestIterateDirOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b"), "b")
	writeFile(t, filepath.Join(dir, "a"), "a")
	writeFile(t, filepath.Join(dir, "z", "c"), "c")
	ids, _ := collect(t, New(nil), []string{dir})
	var base []string
	for _, id := range ids {
		rel, err := filepath.Rel(filepath.ToSlash(dir), id)
		require.NoError(t, err)
		base = append(base, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"z/c", "a", "b"}, base)
}

// 多个 root 按给定顺序处理。
func TestIterateRootsOrder(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	writeFile(t, a, "1")
	writeFile(t, b, "2")
	ids, _ := collect(t, New(nil), []string{b, a})
	require.Len(t, ids, 2)
	assert.Equal(t, "b", filepath.Base(ids[0]))
	assert.Equal(t, "a", filepath.Base(ids[1]))
}

// TestExcludeDir 跳过目录（大小写不敏感）
func TestExcludeDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep"), "k")
	writeFile(t, filepath.Join(dir, "Skip", "bad"), "b")
	ids, _ := collect(t, New(&Options{ExcludeDirNames: []string{"skip/", ""}}), []string{dir})
	require.Len(t, ids, 1)
	assert.Equal(t, "keep", filepath.Base(ids[0]))
}

func TestSkipHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".hidden"), "h")
	writeFile(t, filepath.Join(dir, ".git", "x"), "x")
	writeFile(t, filepath.Join(dir, "shown"), "s")
	ids, _ := collect(t, New(&Options{SkipHidden: true}), []string{dir})
	require.Len(t, ids, 1)
	assert.Equal(t, "shown", filepath.Base(ids[0]))

	ids, _ = collect(t, New(nil), []string{dir})
	assert.Len(t, ids, 3)
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{"-", "a"}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestIterateMissing(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func withStdin(t *testing.T, content string) {
	t.Helper()
	old := os.Stdin
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	os.Stdin = pr
	t.Cleanup(func() { os.Stdin = old; _ = pr.Close() })
	go func() {
		_, _ = pw.Write([]byte(content))
		_ = pw.Close()
	}()
}

// roots 为空或为 "-" 时读取 STDIN
func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		withStdin(t, "1|aA==\n")
		ids, data := collect(t, New(nil), roots)
		require.Equal(t, []string{"stdin"}, ids)
		assert.Equal(t, "1|aA==\n", data["stdin"])
	}
}

// yield 失败时立即返回该错误。
func TestIterateYieldError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "a")
	writeFile(t, filepath.Join(dir, "b"), "b")
	boom := errors.New("boom")
	n := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(contract.FileID, io.ReadCloser) error {
		n++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a")
	writeFile(t, fp, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBufferedCloserDefault(t *testing.T) {
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	bc := newBufferedCloser(f, 0)
	assert.Equal(t, defaultBufSize, bc.Size())
	assert.NoError(t, bc.Close())
}
