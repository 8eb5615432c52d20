//go:build cgo && (linux || darwin || freebsd)

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdio.h>
#include <stdlib.h>

typedef void (*ft_load_model_fn)(char*, int);
typedef const char* (*ft_preprocess_fn)(char*, int);
typedef const char* (*ft_predict_fn)(char*, int, int);

static void* ft_dlopen(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char* ft_dlerror(void) {
	return dlerror();
}

// Clear dlerror, resolve, and report the error (if any) alongside the symbol.
static void* ft_dlsym(void* h, const char* name, char** err) {
	dlerror();
	void* p = dlsym(h, name);
	char* e = dlerror();
	if (err) *err = e;
	return e ? NULL : p;
}

static int ft_dlclose(void* h) {
	return dlclose(h);
}

// The library prints diagnostics with stdio; flush so they are not lost on exit.
static void ft_load_model(void* fn, char* path, int idx) {
	((ft_load_model_fn)fn)(path, idx);
	fflush(stdout);
}

static const char* ft_preprocess(void* fn, char* text, int length) {
	const char* r = ((ft_preprocess_fn)fn)(text, length);
	fflush(stdout);
	return r;
}

static const char* ft_predict(void* fn, char* text, int k, int idx) {
	const char* r = ((ft_predict_fn)fn)(text, k, idx);
	fflush(stdout);
	return r;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"ftprep/pkg/contract"
)

// symbols 持有 dlopen 句柄与已解析的函数指针。
type symbols struct {
	handle    unsafe.Pointer
	loadFn    unsafe.Pointer
	preFn     unsafe.Pointer
	predictFn unsafe.Pointer
}

func dlerr() string {
	if e := C.ft_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

func dlOpen(path string) (symbols, error) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	h := C.ft_dlopen(cs)
	if h == nil {
		return symbols{}, fmt.Errorf("%w: dlopen(%q): %s", contract.ErrLibraryUnavailable, path, dlerr())
	}
	s := symbols{handle: unsafe.Pointer(h)}
	var err error
	if s.loadFn, err = dlSym(s.handle, symLoadModel); err != nil {
		_ = s.close()
		return symbols{}, err
	}
	if s.preFn, err = dlSym(s.handle, symPreProcess); err != nil {
		_ = s.close()
		return symbols{}, err
	}
	// Predict 为可选导出
	if p, perr := dlSym(s.handle, symPredict); perr == nil {
		s.predictFn = p
	}
	return s, nil
}

func dlSym(h unsafe.Pointer, name string) (unsafe.Pointer, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var cerr *C.char
	p := C.ft_dlsym(h, cs, &cerr)
	if cerr != nil {
		return nil, fmt.Errorf("%w: dlsym(%q): %s", contract.ErrLibraryUnavailable, name, C.GoString(cerr))
	}
	if p == nil {
		return nil, fmt.Errorf("%w: dlsym(%q): nil symbol", contract.ErrLibraryUnavailable, name)
	}
	return p, nil
}

func (s symbols) hasPredict() bool { return s.predictFn != nil }

func (s symbols) loadModel(path string, idx int) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	C.ft_load_model(s.loadFn, cs, C.int(idx))
}

func (s symbols) preProcess(text string) (string, bool) {
	cs := C.CString(text)
	defer C.free(unsafe.Pointer(cs))
	r := C.ft_preprocess(s.preFn, cs, C.int(len(text)))
	if r == nil {
		return "", false
	}
	return C.GoString(r), true
}

func (s symbols) predict(text string, k, idx int) (string, bool) {
	cs := C.CString(text)
	defer C.free(unsafe.Pointer(cs))
	r := C.ft_predict(s.predictFn, cs, C.int(k), C.int(idx))
	if r == nil {
		return "", false
	}
	return C.GoString(r), true
}

func (s symbols) close() error {
	if s.handle == nil {
		return nil
	}
	if C.ft_dlclose(s.handle) != 0 {
		return fmt.Errorf("dlclose: %s", dlerr())
	}
	return nil
}
