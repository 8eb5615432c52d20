package galaxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ftprep/pkg/contract"
)

// Options 为 galaxy 行格式 Splitter 的可选配置。
type Options struct {
	// Encoding: 第二字段的 base64 变体：std（默认，带填充）、raw_std、url、raw_url。
	Encoding string `json:"encoding"`
	// SkipBlank: 跳过空白行。默认 false，即空行视为格式错误并终止。
	SkipBlank bool `json:"skip_blank"`
	// BufSize 为读缓冲区大小（字节）。默认 64KiB；单行长度不受此限制。
	BufSize int `json:"buf_size"`
}

// Splitter 解析 `id|base64(text)|...` 行格式，第三个及之后的字段忽略。
type Splitter struct {
	enc       *base64.Encoding
	skipBlank bool
	bufSize   int
}

// lineSpace 与常见脚本语言 strip() 的 ASCII 空白集合一致。
const lineSpace = " \t\n\r\v\f"

// New 创建 galaxy Splitter。未知编码名返回错误。
func New(opts *Options) (*Splitter, error) {
	s := &Splitter{enc: base64.StdEncoding, bufSize: 64 * 1024}
	if opts == nil {
		return s, nil
	}
	switch strings.ToLower(strings.TrimSpace(opts.Encoding)) {
	case "", "std":
		s.enc = base64.StdEncoding
	case "raw_std":
		s.enc = base64.RawStdEncoding
	case "url":
		s.enc = base64.URLEncoding
	case "raw_url":
		s.enc = base64.RawURLEncoding
	default:
		return nil, fmt.Errorf("galaxy: unknown encoding %q", opts.Encoding)
	}
	s.skipBlank = opts.SkipBlank
	if opts.BufSize > 0 {
		s.bufSize = opts.BufSize
	}
	return s, nil
}

var _ contract.Splitter = (*Splitter)(nil)

// Split 逐行读取并产出 Record。任一格式错误立即返回，不跳过。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader, yield func(contract.Record) error) error {
	br := bufio.NewReaderSize(r, s.bufSize)
	var idx contract.Index
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, rerr := br.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return rerr
		}
		if raw == "" && rerr != nil {
			// EOF 且无残留
			return nil
		}
		lineNo++
		line := strings.Trim(raw, lineSpace)
		if line == "" && s.skipBlank {
			if rerr != nil {
				return nil
			}
			continue
		}
		rec, err := s.parse(fileID, idx, lineNo, line)
		if err != nil {
			return err
		}
		if err := yield(rec); err != nil {
			return err
		}
		idx++
		if rerr != nil {
			return nil
		}
	}
}

func (s *Splitter) parse(fileID contract.FileID, idx contract.Index, lineNo int, line string) (contract.Record, error) {
	fields := strings.SplitN(line, "|", 3)
	if len(fields) < 2 {
		return contract.Record{}, fmt.Errorf("%w: %s line %d: expected id|base64 fields", contract.ErrMalformedRecord, fileID, lineNo)
	}
	text, err := s.enc.DecodeString(fields[1])
	if err != nil {
		return contract.Record{}, fmt.Errorf("%w: %s line %d: %w", contract.ErrMalformedRecord, fileID, lineNo, err)
	}
	return contract.Record{
		Index:  idx,
		FileID: fileID,
		ID:     fields[0],
		Text:   string(text),
		Meta:   contract.Meta{"line": strconv.Itoa(lineNo)},
	}, nil
}
