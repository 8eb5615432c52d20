package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "ftprep/internal/config"
	"ftprep/internal/diag"
	"ftprep/internal/pipeline"
)

// 退出码：0 成功；1 运行期失败（格式错误、原生调用、I/O）；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

const configFileName = "ftprep.json"

var (
	version     = "dev"
	pipelineRun = pipeline.Run
)

// exitError 携带退出码；err 为 nil 时不再打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, a ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	code := exitConfig
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.err == nil {
			return code
		}
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(os.Stderr, "ftprep:")
	fmt.Fprintf(os.Stderr, " %v\n", err)
	return code
}

// rootOptions 为 CLI 旗标；只有显式给出的旗标才覆盖配置。
type rootOptions struct {
	config      string
	library     string
	model       string
	modelIndex  int
	predictK    int
	engine      string
	writer      string
	outputDir   string
	logLevel    string
	metricsFile string
	status      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ftprep [inputs...]",
		Short: "Preprocess galaxy-format text through a native fastText library",
		Long: `ftprep reads "id|base64(text)|..." lines, decodes each text, runs it through
the PreProcess routine of a native fastText library and prints two TSV lines
per record: the original text and the preprocessed text.

Inputs are files, directories or "-" for stdin (default: ./galaxy_sample).
Configuration layers: defaults < ftprep.json / FTPREP_CONFIG_JSON < FTPREP_* env < flags.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Flags(), opts, args)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &exitError{code: exitConfig, err: err}
	})

	f := cmd.Flags()
	f.StringVar(&opts.config, "config", "", "config file (JSON); defaults to ./"+configFileName+" when present")
	f.StringVar(&opts.library, "library", "", "path of the native preprocessing library (default ./fasttext.so)")
	f.StringVar(&opts.model, "model", "", "model file passed to LoadModel (default ./model.bin)")
	f.IntVar(&opts.modelIndex, "model-index", 0, "model slot passed to LoadModel")
	f.IntVar(&opts.predictK, "predict-k", 0, "append top-k predictions per record (0 disables)")
	f.StringVar(&opts.engine, "engine", "", "engine implementation: native|mock")
	f.StringVar(&opts.writer, "writer", "", "writer implementation: stdout|fs")
	f.StringVar(&opts.outputDir, "output-dir", "", "output directory for the fs writer")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format at exit")
	f.BoolVar(&opts.status, "status", true, "status line on stderr")

	cmd.AddCommand(newInitConfigCmd(), newVersionCmd())
	return cmd
}

func runPipeline(flags *pflag.FlagSet, opts *rootOptions, args []string) error {
	start := time.Now()
	corrID := diag.NewCorrID()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := loadDotEnv(".env"); err != nil {
		return fail(exitConfig, "load .env: %w", err)
	}

	cfg, err := resolveConfig(flags, opts, args, os.Environ())
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(os.Stderr, cfg)
		return &exitError{code: exitConfig, err: err}
	}

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("cli", diag.Classify(err), err.Error(), &start)
		return fail(exitConfig, "output directory not writable: %w", err)
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("cli", diag.Classify(err), err.Error(), &start)
		return fail(exitConfig, "assemble: %w", err)
	}
	// 原生库句柄在进程退出前显式释放
	defer comp.Engine.Close()

	set.Terminal = diag.NewTerminal(os.Stderr, opts.status)
	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs":      strings.Join(cfg.Inputs, ","),
		"library":     cfg.Library,
		"model":       cfg.Model,
		"model_index": strconv.Itoa(cfg.ModelIndex),
		"predict_k":   strconv.Itoa(cfg.PredictK),
		"reader":      cfg.Components.Reader,
		"splitter":    cfg.Components.Splitter,
		"engine":      cfg.Components.Engine,
		"assembler":   cfg.Components.Assembler,
		"writer":      cfg.Components.Writer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timer := logger.Start("pipeline", "run")
	st, runErr := pipelineRun(ctx, comp, set, logger)
	if cfg.MetricsFile != "" {
		if err := diag.WriteTextfile(cfg.MetricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "ftprep: write metrics: %v\n", err)
		}
	}
	if runErr != nil {
		code := diag.Classify(runErr)
		logger.ErrorWithKV("pipeline", code, "first error", &start, "", map[string]string{
			"files":   strconv.Itoa(st.Files),
			"records": strconv.FormatInt(st.Records, 10),
		})
		diag.IncOp("pipeline", "run", "error")
		diag.IncError("pipeline", code)
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: exitRuntime}
		}
		return &exitError{code: exitRuntime, err: runErr}
	}
	timer.Finish("run", st.Records)
	diag.IncOp("pipeline", "run", "success")
	diag.ObserveDuration("pipeline", "run", time.Since(start))
	return nil
}

// resolveConfig 按 Defaults < JSON < ENV < CLI 合并。
func resolveConfig(flags *pflag.FlagSet, opts *rootOptions, args, environ []string) (cfgpkg.Config, error) {
	getenv := func(k string) string {
		for _, kv := range environ {
			if key, val, ok := strings.Cut(kv, "="); ok && key == k {
				return val
			}
		}
		return ""
	}

	cfg := cfgpkg.Defaults()

	path := opts.config
	if path == "" {
		path = getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat(configFileName); err == nil {
			path = configFileName
		}
	}
	rawJSON := []byte(getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"))
	if path != "" || len(rawJSON) > 0 {
		base, err := cfgpkg.LoadJSON(path, rawJSON)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(environ)
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	over := cfgpkg.NewOverlay()
	if len(args) > 0 {
		over.Inputs = args
	}
	over.Library = opts.library
	over.Model = opts.model
	if flags.Changed("model-index") {
		if opts.modelIndex < 0 {
			return cfg, errors.New("--model-index must be >= 0")
		}
		over.ModelIndex = opts.modelIndex
	}
	if flags.Changed("predict-k") {
		if opts.predictK < 0 {
			return cfg, errors.New("--predict-k must be >= 0")
		}
		over.PredictK = opts.predictK
	}
	over.Components.Engine = opts.engine
	over.Components.Writer = opts.writer
	over.Logging.Level = opts.logLevel
	over.MetricsFile = opts.metricsFile
	cfg = cfgpkg.Merge(cfg, over)

	if strings.TrimSpace(opts.outputDir) != "" {
		// 仅替换 output_dir，保留其余 writer 选项
		raw, err := cfgpkg.WithOption(cfg.Options.Writer, "output_dir", strings.TrimSpace(opts.outputDir))
		if err != nil {
			return cfg, err
		}
		cfg.Options.Writer = raw
		if cfg.Components.Writer == "stdout" && !flags.Changed("writer") {
			cfg.Components.Writer = "fs"
		}
	}
	return cfg, nil
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "effective config:\n%s\n", b)
	return err
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a runnable " + configFileName + " and .env template (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(exitConfig, "init-config: %w", err)
			}
			p := filepath.Join(dir, configFileName)
			if err := writeConfig(p, cfgpkg.DefaultTemplateConfig()); err != nil {
				return fail(exitConfig, "init-config: %w", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ftprep: .env template skipped: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Fprintln(w, version)
				return nil
			}
			fmt.Fprintf(w, "ftprep version %s\n", version)
			fmt.Fprintf(w, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	cmd.Flags().Bool("short", false, "print version string only")
	return cmd
}

// writeConfig 写出缩进 JSON；path 为 "-" 时写 stdout。不覆盖已存在文件。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadDotEnv 将 path 中的变量注入进程环境；已存在的变量不覆盖，文件不存在不算错误。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeDotEnv 生成 .env 模板；已存在则跳过。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# ftprep .env template (generated by init-config)\n")
	b.WriteString("# precedence: flags > env (.env) > JSON config; empty values are ignored\n\n")
	keys := [][]string{
		{"# config source", "CONFIG_FILE", "CONFIG_JSON"},
		{"# runtime", "INPUTS", "LIBRARY", "MODEL", "MODEL_INDEX", "PREDICT_K", "LOG_LEVEL", "LOG_DIR", "METRICS_FILE"},
		{"# components", "COMPONENTS_READER", "COMPONENTS_SPLITTER", "COMPONENTS_ENGINE", "COMPONENTS_ASSEMBLER", "COMPONENTS_WRITER"},
		{"# component options (raw JSON objects)", "OPTIONS_READER_JSON", "OPTIONS_SPLITTER_JSON", "OPTIONS_ENGINE_JSON", "OPTIONS_ASSEMBLER_JSON", "OPTIONS_WRITER_JSON"},
	}
	for _, group := range keys {
		b.WriteString(group[0] + "\n")
		for _, k := range group[1:] {
			b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
		}
		b.WriteString("\n")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// preflightCheckOutputDir 在 fs writer 下于启动前检查输出目录可写：
// 目录存在则试写临时文件；不存在则检查父目录可创建子目录。其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if strings.TrimSpace(cfg.Components.Writer) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 交给装配阶段报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("not a directory: %s", dir)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("parent is not a directory: %s", parent)
	}
	tmp, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmp)
}
