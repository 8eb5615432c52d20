//go:build !cgo || !(linux || darwin || freebsd)

package native

import (
	"fmt"
	"runtime"

	"ftprep/pkg/contract"
)

// symbols 在无 cgo 或不支持 dlopen 的平台上为空壳。
type symbols struct{}

func dlOpen(path string) (symbols, error) {
	return symbols{}, fmt.Errorf("%w: %s: dlopen not available on %s/%s without cgo", contract.ErrLibraryUnavailable, path, runtime.GOOS, runtime.GOARCH)
}

func (symbols) hasPredict() bool                        { return false }
func (symbols) loadModel(string, int)                   {}
func (symbols) preProcess(string) (string, bool)        { return "", false }
func (symbols) predict(string, int, int) (string, bool) { return "", false }
func (symbols) close() error                            { return nil }
