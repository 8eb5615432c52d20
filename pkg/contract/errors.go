package contract

import "errors"

// 最小错误分类（用于上层诊断与退出码判定）。
var (
	// ErrMalformedRecord: 输入行不满足 `id|base64|...`（缺分隔符、base64 非法、空行）。
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidInput: 调用参数非法（如负的模型槽位、空路径）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelNotLoaded: 在 LoadModel 成功之前调用了 PreProcess/Predict。
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrNativeCall: 原生函数返回失败（例如 NULL 指针）。
	ErrNativeCall = errors.New("native call failed")
	// ErrLibraryUnavailable: 原生库无法加载或缺少导出符号。
	ErrLibraryUnavailable = errors.New("native library unavailable")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
