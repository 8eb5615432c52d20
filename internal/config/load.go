package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix 为所有覆盖项环境变量的前缀。
const EnvPrefix = "FTPREP_"

// Defaults 返回零配置即可复现的默认值：
// 读取 ./galaxy_sample，dlopen ./fasttext.so，加载 ./model.bin 槽位 0，两行 TSV 写到 stdout。
func Defaults() Config {
	return Config{
		Inputs:     []string{"galaxy_sample"},
		Library:    "./fasttext.so",
		Model:      "./model.bin",
		ModelIndex: 0,
		PredictK:   0,
		Logging:    Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:    "fs",
			Splitter:  "galaxy",
			Engine:    "native",
			Assembler: "tsv",
			Writer:    "stdout",
		},
	}
}

// Unset 作为整型覆盖项「未设置」的标记；0 对 model_index/predict_k 有语义，不能用作缺省。
const Unset = -1

// NewOverlay 返回所有整型字段为 Unset 的空覆盖层。
func NewOverlay() Config {
	return Config{ModelIndex: Unset, PredictK: Unset}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if cfg.ModelIndex < 0 || cfg.PredictK < 0 {
		return cfg, errors.New("config: model_index and predict_k must be >= 0")
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 字符串空值与整型 Unset 不覆盖；Options 按组件整体替换，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	setStr(&out.Library, over.Library)
	setStr(&out.Model, over.Model)
	if over.ModelIndex >= 0 {
		out.ModelIndex = over.ModelIndex
	}
	if over.PredictK >= 0 {
		out.PredictK = over.PredictK
	}
	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.Logging.Dir, over.Logging.Dir)
	setStr(&out.MetricsFile, over.MetricsFile)

	setStr(&out.Components.Reader, over.Components.Reader)
	setStr(&out.Components.Splitter, over.Components.Splitter)
	setStr(&out.Components.Engine, over.Components.Engine)
	setStr(&out.Components.Assembler, over.Components.Assembler)
	setStr(&out.Components.Writer, over.Components.Writer)

	setRaw(&out.Options.Reader, over.Options.Reader)
	setRaw(&out.Options.Splitter, over.Options.Splitter)
	setRaw(&out.Options.Engine, over.Options.Engine)
	setRaw(&out.Options.Assembler, over.Options.Assembler)
	setRaw(&out.Options.Writer, over.Options.Writer)
	return out
}

// EnvOverlay 从环境变量构建覆盖层。前缀 FTPREP_，支持：
// INPUTS(逗号分隔), LIBRARY, MODEL, MODEL_INDEX, PREDICT_K, LOG_LEVEL, LOG_DIR, METRICS_FILE,
// COMPONENTS_{READER,SPLITTER,ENGINE,ASSEMBLER,WRITER}, OPTIONS_<组件>_JSON。
// CONFIG_FILE/CONFIG_JSON 由调用方处理；其他键忽略。
func EnvOverlay(environ []string) (Config, error) {
	over := NewOverlay()
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch nk := strings.TrimPrefix(key, EnvPrefix); nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "LIBRARY":
			over.Library = val
		case "MODEL":
			over.Model = val
		case "MODEL_INDEX", "PREDICT_K":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return over, fmt.Errorf("config: %s=%q: want non-negative integer", key, val)
			}
			if nk == "MODEL_INDEX" {
				over.ModelIndex = n
			} else {
				over.PredictK = n
			}
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "METRICS_FILE":
			over.MetricsFile = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = val
		case "COMPONENTS_ENGINE":
			over.Components.Engine = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_SPLITTER_JSON":
			over.Options.Splitter = json.RawMessage(val)
		case "OPTIONS_ENGINE_JSON":
			over.Options.Engine = json.RawMessage(val)
		case "OPTIONS_ASSEMBLER_JSON":
			over.Options.Assembler = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		}
	}
	return over, nil
}

// WithOption 在组件 Options 对象上设置单个键（保留其他键），用于 CLI 旗标与库路径注入。
func WithOption(raw json.RawMessage, key string, val any) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("config: options must be a JSON object: %w", err)
		}
		if m == nil {
			// 原文为 null
			m = map[string]json.RawMessage{}
		}
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	m[key] = b
	return json.Marshal(m)
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

func setRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
