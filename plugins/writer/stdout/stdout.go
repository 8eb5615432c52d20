package stdout

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"ftprep/pkg/contract"
)

// Options: 标准输出 Writer 配置。
type Options struct {
	// BufSize: 写缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `json:"buf_size"`
}

// Stdout 将所有工件按到达顺序透传到同一输出流（默认进程 stdout）。
// 多个工件共享一个流，因此 Write 之间互斥。
type Stdout struct {
	mu      sync.Mutex
	w       io.Writer
	bufSize int
}

var _ contract.Writer = (*Stdout)(nil)

// New 创建写向 os.Stdout 的 Writer。
func New(opts *Options) *Stdout { return NewTo(os.Stdout, opts) }

// NewTo 创建写向任意 io.Writer 的实例（测试与嵌入使用）。
func NewTo(w io.Writer, opts *Options) *Stdout {
	bs := 64 * 1024
	if opts != nil && opts.BufSize > 0 {
		bs = opts.BufSize
	}
	return &Stdout{w: w, bufSize: bs}
}

// Write 复制 r 的全部字节；工件结束时 Flush，出错时尽量冲刷已产出的行。
func (s *Stdout) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bw := bufio.NewWriterSize(s.w, s.bufSize)
	_, err := io.Copy(bw, &ctxReader{ctx: ctx, r: r})
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
