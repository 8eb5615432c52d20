package tsv

import (
	"context"

	"ftprep/pkg/contract"
)

// Options: TSV 装配器配置。
type Options struct {
	// Separator: 字段分隔符，默认 "\t"。
	Separator string `json:"separator"`
	// HideOriginal: 不输出 `id<SEP>原文` 行，仅保留处理结果。默认 false。
	HideOriginal bool `json:"hide_original"`
}

type assembler struct {
	sep          string
	hideOriginal bool
}

// New 创建 TSV 装配器；opts 为 nil 时使用默认值。
func New(opts *Options) (contract.Assembler, error) {
	a := &assembler{sep: "\t"}
	if opts != nil {
		if opts.Separator != "" {
			a.sep = opts.Separator
		}
		a.hideOriginal = opts.HideOriginal
	}
	return a, nil
}

// Assemble 依次输出：
//
//	id<SEP>原文
//	id<SEP>处理结果
//	id<SEP>预测（仅 Prediction 非空时）
func (a *assembler) Assemble(ctx context.Context, res contract.Result) ([]byte, error) {
	head, err := a.AssembleRecord(ctx, res.Record)
	if err != nil {
		return nil, err
	}
	tail, err := a.AssembleResult(ctx, res)
	if err != nil {
		return nil, err
	}
	return append(head, tail...), nil
}

// AssembleRecord 输出原文行；HideOriginal 时为空。
func (a *assembler) AssembleRecord(ctx context.Context, rec contract.Record) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.hideOriginal {
		return nil, nil
	}
	return a.line(make([]byte, 0, len(rec.ID)+len(a.sep)+len(rec.Text)+1), rec.ID, rec.Text), nil
}

// AssembleResult 输出处理结果行与可选的预测行。
func (a *assembler) AssembleResult(ctx context.Context, res contract.Result) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := res.Record.ID
	buf := make([]byte, 0, 2*(len(id)+len(a.sep)+1)+len(res.Processed)+len(res.Prediction))
	buf = a.line(buf, id, res.Processed)
	if res.Prediction != "" {
		buf = a.line(buf, id, res.Prediction)
	}
	return buf, nil
}

func (a *assembler) line(buf []byte, id, text string) []byte {
	buf = append(buf, id...)
	buf = append(buf, a.sep...)
	buf = append(buf, text...)
	return append(buf, '\n')
}

var _ contract.StagedAssembler = (*assembler)(nil)
