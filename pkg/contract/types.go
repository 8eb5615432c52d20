package contract

// FileID: 逻辑输入ID（通常为路径，需规范化，跨平台一致；STDIN 为 "stdin"）。
type FileID string

// Index: 单个输入内稳定递增的行序号（0..n-1）。
type Index int64

// Meta: 可选的轻量元信息。约定键 "line" 为源文件行号（自 1 起），流水线用于错误定位。
type Meta map[string]string

// Record: 原子输入片段，对应输入文件中的一行 `id|base64(text)|...`。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增；
// - ID 为第一个字段原样（不做去重/校验）；
// - Text 为第二个字段 base64 解码后的字节，逐字节保真（Go string 可承载任意字节）。
type Record struct {
	Index  Index
	FileID FileID
	ID     string
	Text   string
	Meta   Meta // 可为 nil
}

// Result: 单条 Record 经引擎处理后的结果。
// Prediction 仅在启用预测（k>0）时非空。
type Result struct {
	Record     Record
	Processed  string
	Prediction string
}
