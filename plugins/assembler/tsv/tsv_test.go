package tsv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftprep/pkg/contract"
)

func res(id, text, processed, pred string) contract.Result {
	return contract.Result{Record: contract.Record{ID: id, Text: text}, Processed: processed, Prediction: pred}
}

func TestAssembleDefault(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	b, err := a.Assemble(context.Background(), res("42", "原文 text", "原 文 text", ""))
	require.NoError(t, err)
	assert.Equal(t, "42\t原文 text\n42\t原 文 text\n", string(b))
}

func TestAssemblePredictionAndOptions(t *testing.T) {
	a, err := New(&Options{Separator: " | ", HideOriginal: true})
	require.NoError(t, err)
	b, err := a.Assemble(context.Background(), res("7", "x", "y", "__label__a 0.9"))
	require.NoError(t, err)
	assert.Equal(t, "7 | y\n7 | __label__a 0.9\n", string(b))
}

func TestAssembleEmptyFields(t *testing.T) {
	a, _ := New(nil)
	b, err := a.Assemble(context.Background(), res("", "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "\t\n\t\n", string(b))
}

func TestAssembleCanceled(t *testing.T) {
	a, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Assemble(ctx, res("i", "t", "p", ""))
	assert.ErrorIs(t, err, context.Canceled)
}

// 分段装配拼接后与 Assemble 一致；原文段不依赖引擎结果。
func TestAssembleStaged(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	st, ok := a.(contract.StagedAssembler)
	require.True(t, ok)
	ctx := context.Background()
	r := res("9", "原文", "原 文", "__label__x 1")

	head, err := st.AssembleRecord(ctx, r.Record)
	require.NoError(t, err)
	assert.Equal(t, "9\t原文\n", string(head))
	tail, err := st.AssembleResult(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "9\t原 文\n9\t__label__x 1\n", string(tail))

	whole, err := a.Assemble(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, string(head)+string(tail), string(whole))

	hidden, _ := New(&Options{HideOriginal: true})
	head, err = hidden.(contract.StagedAssembler).AssembleRecord(ctx, r.Record)
	require.NoError(t, err)
	assert.Empty(t, head)
}
