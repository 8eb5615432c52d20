package galaxy

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftprep/pkg/contract"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func collect(t *testing.T, s *Splitter, in string) ([]contract.Record, error) {
	t.Helper()
	var out []contract.Record
	err := s.Split(context.Background(), "galaxy_sample", strings.NewReader(in), func(r contract.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// TestSplitWellFormed 覆盖多字段、CRLF、无结尾换行。
func TestSplitWellFormed(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	in := "a1|" + b64("你好 world") + "|extra|x\r\n" +
		"  b2|" + b64("tab\tinside") + "  \n" +
		"c3|" + b64("")
	recs, err := collect(t, s, in)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "a1", recs[0].ID)
	assert.Equal(t, "你好 world", recs[0].Text)
	assert.Equal(t, "b2", recs[1].ID)
	assert.Equal(t, "tab\tinside", recs[1].Text)
	assert.Equal(t, "c3", recs[2].ID)
	assert.Equal(t, "", recs[2].Text)
	for i, r := range recs {
		assert.Equal(t, contract.Index(i), r.Index)
		assert.Equal(t, contract.FileID("galaxy_sample"), r.FileID)
	}
	assert.Equal(t, "2", recs[1].Meta["line"])
}

// TestSplitByteExact 解码结果逐字节保真（含非 UTF-8 与 NUL）。
func TestSplitByteExact(t *testing.T) {
	s, _ := New(nil)
	payload := []byte{0x00, 0xff, 0xfe, 'x', 0x80, '\n'}
	recs, err := collect(t, s, "id|"+base64.StdEncoding.EncodeToString(payload)+"\n")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, payload, []byte(recs[0].Text))
}

// TestSplitMalformed 格式错误必须终止，而非跳过。
func TestSplitMalformed(t *testing.T) {
	s, _ := New(nil)
	cases := []struct {
		name string
		in   string
		good int
	}{
		{"缺分隔符", "a|" + b64("x") + "\nnodelimiter\nc|" + b64("z") + "\n", 1},
		{"非法base64", "a|" + b64("x") + "\nb|***\n", 1},
		{"空行", "a|" + b64("x") + "\n\nc|" + b64("z") + "\n", 1},
		{"首行即错", "only-id\n", 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := collect(t, s, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contract.ErrMalformedRecord), "err=%v", err)
			assert.Len(t, recs, tt.good)
		})
	}
}

// TestSplitBase64ErrorWrapped base64 解码错误被包裹，可用 errors.As 取出。
func TestSplitBase64ErrorWrapped(t *testing.T) {
	s, _ := New(nil)
	_, err := collect(t, s, "a|abc\n")
	var cie base64.CorruptInputError
	require.ErrorAs(t, err, &cie)
	assert.Contains(t, err.Error(), "line 1")
}

// TestSplitSkipBlank 显式开启时空行被跳过，Index 不受影响。
func TestSplitSkipBlank(t *testing.T) {
	s, err := New(&Options{SkipBlank: true})
	require.NoError(t, err)
	recs, err := collect(t, s, "\n a|"+b64("x")+"\n \t \nb|"+b64("y")+"\n\n")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, contract.Index(1), recs[1].Index)
	assert.Equal(t, "4", recs[1].Meta["line"])
}

// TestSplitEncodings 覆盖 base64 变体与未知编码。
func TestSplitEncodings(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff})
	s, err := New(&Options{Encoding: "raw_url"})
	require.NoError(t, err)
	recs, err := collect(t, s, "a|"+raw+"\n")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff}, []byte(recs[0].Text))

	_, err = New(&Options{Encoding: "base32"})
	assert.Error(t, err)
}

// TestSplitYieldError yield 的错误原样上抛并停止读取。
func TestSplitYieldError(t *testing.T) {
	s, _ := New(nil)
	stop := errors.New("stop")
	n := 0
	err := s.Split(context.Background(), "f", strings.NewReader("a|"+b64("1")+"\nb|"+b64("2")+"\n"), func(contract.Record) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

// TestSplitCanceled ctx 取消后尽快返回。
func TestSplitCanceled(t *testing.T) {
	s, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Split(ctx, "f", strings.NewReader("a|"+b64("1")+"\n"), func(contract.Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSplitReadError(t *testing.T) {
	s, _ := New(nil)
	err := s.Split(context.Background(), "f", errReader{}, func(contract.Record) error { return nil })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
