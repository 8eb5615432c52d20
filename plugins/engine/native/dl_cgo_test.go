//go:build cgo && linux

package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftprep/pkg/contract"
)

// 系统 libc 可被 dlopen，但不导出 LoadModel：应在解析符号阶段失败并释放句柄。
func TestOpenLibraryWithoutSymbols(t *testing.T) {
	_, err := Open("libc.so.6")
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrLibraryUnavailable)
	assert.Contains(t, err.Error(), symLoadModel)
}

func TestDlOpenErrorCarriesDetail(t *testing.T) {
	_, err := dlOpen("/nonexistent/fasttext.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlopen")
	assert.Contains(t, err.Error(), "/nonexistent/fasttext.so")
}
