package contract

import (
	"context"
	"io"
)

// Splitter: 将单个输入的字节流按行拆分为有序 Record，并逐条回调 yield。
// 约束：
// 1) 惰性：读一行、产出一条，不整体缓冲；
// 2) Index 严格递增且稳定，不重排、不丢弃；
// 3) 格式错误的行返回 ErrMalformedRecord（包裹行号），整体终止；
// 4) yield 返回错误时立即停止并原样上抛；
// 5) 无内部并发。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader, yield func(Record) error) error
}
