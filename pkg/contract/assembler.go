package contract

import "context"

// Assembler: 将单条 Result 装配为输出字节（一行或多行，含换行）。
// 约束：
//  1. 纯计算，不做 I/O；
//  2. 不修改 ID/文本内容，仅负责排版；
//  3. 不引入跨记录状态。
type Assembler interface {
	Assemble(ctx context.Context, res Result) ([]byte, error)
}

// StagedAssembler: 可选扩展，把一条记录的输出拆成两段。
// AssembleRecord 只依赖原始记录，在引擎调用之前写出；AssembleResult 写出引擎结果部分。
// 两段按序拼接须与 Assemble 的输出一致。
type StagedAssembler interface {
	Assembler
	AssembleRecord(ctx context.Context, rec Record) ([]byte, error)
	AssembleResult(ctx context.Context, res Result) ([]byte, error)
}
