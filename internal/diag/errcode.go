package diag

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"io/fs"

	"ftprep/pkg/contract"
)

// Code 是错误分类代码，仅用于日志与指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeMalformed Code = "malformed"
	CodeNative    Code = "native"
	CodeIO        Code = "io"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
)

// Classify 依据哨兵错误与标准库错误类型归类，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	var b64 base64.CorruptInputError
	if errors.Is(err, contract.ErrMalformedRecord) || errors.As(err, &b64) {
		return CodeMalformed
	}
	if errors.Is(err, contract.ErrNativeCall) ||
		errors.Is(err, contract.ErrLibraryUnavailable) ||
		errors.Is(err, contract.ErrModelNotLoaded) {
		return CodeNative
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return CodeIO
	}
	return CodeUnknown
}
