package native

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftprep/pkg/contract"
)

// overInt32 超出 C int 范围；64 位平台上才可表示为 int。
var overInt32 int64 = math.MaxInt32 + 1

// 未加载真实库的句柄：所有断言均在进入原生调用前触发。
func detached() *Library { return &Library{path: "detached.so", open: true} }

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "fasttext.so"))
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrLibraryUnavailable)

	_, err = Open("  ")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestNewDefaultsToRelativeLibrary(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	_, err := New(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrLibraryUnavailable)
	assert.Contains(t, err.Error(), DefaultLibrary)
}

func TestLoadModelPreflight(t *testing.T) {
	ctx := context.Background()
	l := detached()

	err := l.LoadModel(ctx, filepath.Join(t.TempDir(), "model.bin"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.ErrorIs(t, l.LoadModel(ctx, t.TempDir(), 0), contract.ErrInvalidInput)
	assert.ErrorIs(t, l.LoadModel(ctx, "model.bin", -1), contract.ErrInvalidInput)
	assert.ErrorIs(t, l.LoadModel(ctx, "", 0), contract.ErrInvalidInput)
	if math.MaxInt > math.MaxInt32 {
		assert.ErrorIs(t, l.LoadModel(ctx, "model.bin", int(overInt32)), contract.ErrInvalidInput)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, l.LoadModel(canceled, "model.bin", 0), context.Canceled)
}

func TestCallsBeforeLoadModel(t *testing.T) {
	ctx := context.Background()
	l := detached()

	_, err := l.PreProcess(ctx, "text")
	assert.ErrorIs(t, err, contract.ErrModelNotLoaded)

	_, err = l.Predict(ctx, "text", 1, 0)
	assert.ErrorIs(t, err, contract.ErrModelNotLoaded)

	_, err = l.Predict(ctx, "text", 0, 0)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	if math.MaxInt > math.MaxInt32 {
		_, err = l.Predict(ctx, "text", int(overInt32), 0)
		assert.ErrorIs(t, err, contract.ErrInvalidInput)
		_, err = l.Predict(ctx, "text", 1, int(overInt32))
		assert.ErrorIs(t, err, contract.ErrInvalidInput)
	}
}

func TestClosedLibrary(t *testing.T) {
	ctx := context.Background()
	l := detached()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.False(t, l.HasPredict())

	model := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(model, []byte("bin"), 0o644))
	assert.ErrorIs(t, l.LoadModel(ctx, model, 0), contract.ErrLibraryUnavailable)

	_, err := l.PreProcess(ctx, "x")
	assert.ErrorIs(t, err, contract.ErrLibraryUnavailable)
}
