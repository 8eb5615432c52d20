package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ftprep/internal/diag"
	"ftprep/pkg/contract"
)

// - 引擎单线程：所有 LoadModel/PreProcess/Predict 调用发生在同一生产者协程内，严格按输入顺序；
// - 单点并发：每个输入仅有「生产者 → io.Pipe → Writer」两端并行，只重叠输出 I/O；
// - 首错终止：任一端出错即记录首错并关闭管道、取消整体；不重试、不跳过。

const outBufSize = 64 * 1024

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Splitter  contract.Splitter
	Engine    contract.Engine
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	// Model 与 ModelIndex 传给 Engine.LoadModel，整个进程只调用一次。
	Model      string
	ModelIndex int
	// PredictK>0 时对每条处理结果追加 top-k 预测；要求 Engine 实现 contract.Predictor。
	PredictK int
	// EngineName 仅用于终端提示。
	EngineName string
	// Terminal 可选；nil 表示不输出状态。
	Terminal *diag.Terminal
}

// Stats 为一次运行的汇总。
type Stats struct {
	Files   int
	Records int64
}

// Run 执行：LoadModel → Reader → (Splitter → PreProcess → [Predict] → Assembler) → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Stats, error) {
	var st Stats
	if err := sanity(comp, set); err != nil {
		return st, fmt.Errorf("sanity: %w", err)
	}
	var predictor contract.Predictor
	if set.PredictK > 0 {
		p, ok := comp.Engine.(contract.Predictor)
		if !ok {
			return st, fmt.Errorf("sanity: %w: engine does not support predict", contract.ErrInvalidInput)
		}
		if pp, ok := comp.Engine.(contract.PredictSupport); ok && !pp.HasPredict() {
			return st, fmt.Errorf("sanity: %w: engine %s does not export Predict", contract.ErrLibraryUnavailable, set.EngineName)
		}
		predictor = p
	}

	runStart := time.Now()
	set.Terminal.RunStart(set.EngineName, len(set.Inputs))
	ok := false
	defer func() { set.Terminal.RunFinish(ok, time.Since(runStart)) }()

	if err := loadModel(ctx, comp.Engine, set, logger); err != nil {
		return st, err
	}

	r := &runner{comp: comp, set: set, predictor: predictor, logger: logger}
	var fileErr error
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		n, err := r.runFile(ctx, fileID, rc)
		st.Files++
		st.Records += n
		fileErr = err
		return err
	})
	if err != nil {
		if fileErr == nil {
			// Reader 自身失败（输入缺失、混用 "-" 等）
			code := diag.Classify(err)
			logger.Error("reader", code, err.Error(), &runStart)
			diag.IncOp("reader", "iterate", "error")
			diag.IncError("reader", code)
		}
		return st, err
	}
	ok = true
	return st, nil
}

func loadModel(ctx context.Context, eng contract.Engine, set Settings, logger *diag.Logger) error {
	t0 := time.Now()
	timer := logger.Start("engine", "load_model")
	if err := eng.LoadModel(ctx, set.Model, set.ModelIndex); err != nil {
		code := diag.Classify(err)
		logger.ErrorWithKV("engine", code, err.Error(), &t0, "", map[string]string{"model": set.Model})
		diag.IncOp("engine", "load_model", "error")
		diag.IncError("engine", code)
		return fmt.Errorf("load model %s: %w", set.Model, err)
	}
	timer.Finish("model loaded", 0)
	diag.IncOp("engine", "load_model", "success")
	diag.ObserveDuration("engine", "load_model", time.Since(t0))
	return nil
}

type runner struct {
	comp      Components
	set       Settings
	predictor contract.Predictor
	logger    *diag.Logger
}

// runFile 处理单个输入：生产者经 io.Pipe 流式喂给 Writer，二者由 errgroup 管理。
// 返回已写入管道的记录数与首个错误。
func (r *runner) runFile(ctx context.Context, fileID contract.FileID, src io.Reader) (int64, error) {
	t0 := time.Now()
	timer := r.logger.StartWith("pipeline", "input", string(fileID))
	r.set.Terminal.FileStart(string(fileID))

	var (
		once  sync.Once
		first error
		comp  = "pipeline"
		n     int64
	)
	fail := func(c string, err error) error {
		if err != nil {
			once.Do(func() { first, comp = err, c })
		}
		return err
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := fail("writer", r.comp.Writer.Write(gctx, contract.ArtifactID(fileID), pr))
		_ = pr.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		var c string
		var err error
		n, c, err = r.produce(gctx, fileID, src, pw)
		err = fail(c, err)
		_ = pw.CloseWithError(err)
		return err
	})
	_ = g.Wait()

	diag.AddRecords(string(fileID), int(n))
	r.set.Terminal.FileFinish(first == nil, time.Since(t0))
	if first != nil {
		code := diag.Classify(first)
		r.logger.ErrorWithKV(comp, code, first.Error(), &t0, string(fileID), map[string]string{"records": strconv.FormatInt(n, 10)})
		diag.IncOp(comp, "input", "error")
		diag.IncError(comp, code)
		return n, first
	}
	timer.Finish("input done", n)
	diag.IncOp("pipeline", "input", "success")
	diag.ObserveDuration("pipeline", "input", time.Since(t0))
	return n, nil
}

// produce 逐条处理并写出；出错前已装配的行先冲刷到管道，再返回错误与出错组件名。
func (r *runner) produce(ctx context.Context, fileID contract.FileID, src io.Reader, w io.Writer) (n int64, comp string, err error) {
	bw := bufio.NewWriterSize(w, outBufSize)
	defer func() {
		if ferr := bw.Flush(); err == nil && ferr != nil {
			comp, err = "writer", ferr
		}
	}()

	staged, _ := r.comp.Assembler.(contract.StagedAssembler)
	comp = "splitter"
	var next contract.Index
	err = r.comp.Splitter.Split(ctx, fileID, src, func(rec contract.Record) error {
		// Splitter 不得跳过、重排记录或混入其他输入
		if rec.Index != next || rec.FileID != fileID {
			comp = "splitter"
			return fmt.Errorf("%w: %s: got record %d of %q, want record %d", contract.ErrInvariantViolation, fileID, rec.Index, rec.FileID, next)
		}
		next++
		// 原文行先于引擎调用写出：引擎在第 N 条失败时，第 N 条原文仍在输出中
		if staged != nil {
			head, err := staged.AssembleRecord(ctx, rec)
			if err != nil {
				comp = "assembler"
				return fmt.Errorf("assemble %s record %d: %w", fileID, rec.Index, err)
			}
			if _, err := bw.Write(head); err != nil {
				comp = "writer"
				return err
			}
		}
		res, c, err := r.process(ctx, rec)
		if err != nil {
			comp = c
			return err
		}
		var b []byte
		if staged != nil {
			b, err = staged.AssembleResult(ctx, res)
		} else {
			b, err = r.comp.Assembler.Assemble(ctx, res)
		}
		if err != nil {
			comp = "assembler"
			return fmt.Errorf("assemble %s record %d: %w", fileID, rec.Index, err)
		}
		if _, err := bw.Write(b); err != nil {
			comp = "writer"
			return err
		}
		n++
		r.set.Terminal.FileProgress(n)
		return nil
	})
	if err == nil {
		comp = ""
	}
	return n, comp, err
}

// process 对单条记录调用引擎；返回出错组件名用于日志归类。
func (r *runner) process(ctx context.Context, rec contract.Record) (contract.Result, string, error) {
	res := contract.Result{Record: rec}
	r.logger.DebugStart("engine", "preprocess", string(rec.FileID), map[string]string{
		"index": strconv.FormatInt(int64(rec.Index), 10),
		"id":    rec.ID,
		"line":  rec.Meta["line"],
	})
	t0 := time.Now()
	out, err := r.comp.Engine.PreProcess(ctx, rec.Text)
	if err != nil {
		return res, "engine", fmt.Errorf("preprocess %s record %d (id %q)%s: %w", rec.FileID, rec.Index, rec.ID, atLine(rec), err)
	}
	diag.ObserveDuration("engine", "preprocess", time.Since(t0))
	diag.IncOp("engine", "preprocess", "success")
	res.Processed = out

	if r.predictor != nil {
		pred, err := r.predictor.Predict(ctx, out, r.set.PredictK, r.set.ModelIndex)
		if err != nil {
			return res, "engine", fmt.Errorf("predict %s record %d (id %q)%s: %w", rec.FileID, rec.Index, rec.ID, atLine(rec), err)
		}
		diag.IncOp("engine", "predict", "success")
		res.Prediction = pred
	}
	return res, "", nil
}

// atLine 取 Splitter 记录的源行号（Meta["line"]），用于错误定位。
func atLine(rec contract.Record) string {
	if l := rec.Meta["line"]; l != "" {
		return " at line " + l
	}
	return ""
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Engine == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	if s.ModelIndex < 0 || s.PredictK < 0 {
		return fmt.Errorf("%w: model_index and predict_k must be >= 0", contract.ErrInvalidInput)
	}
	return nil
}
