package config

import (
	"errors"
	"fmt"
	"strings"

	"ftprep/internal/pipeline"
	"ftprep/pkg/contract"
	"ftprep/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他输入混用
	dash := false
	for _, r := range cfg.Inputs {
		switch strings.TrimSpace(r) {
		case "":
			return errors.New("config: input path cannot be empty")
		case "-":
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other inputs")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return errors.New("config: model not set")
	}
	if cfg.ModelIndex < 0 {
		return errors.New("config: model_index must be >= 0")
	}
	if cfg.PredictK < 0 {
		return errors.New("config: predict_k must be >= 0")
	}
	d := Defaults().Components
	if err := registered("reader", effName(cfg.Components.Reader, d.Reader), registry.Names(registry.Reader)); err != nil {
		return err
	}
	if err := registered("splitter", effName(cfg.Components.Splitter, d.Splitter), registry.Names(registry.Splitter)); err != nil {
		return err
	}
	engine := effName(cfg.Components.Engine, d.Engine)
	if err := registered("engine", engine, registry.Names(registry.Engine)); err != nil {
		return err
	}
	if err := registered("assembler", effName(cfg.Components.Assembler, d.Assembler), registry.Names(registry.Assembler)); err != nil {
		return err
	}
	if err := registered("writer", effName(cfg.Components.Writer, d.Writer), registry.Names(registry.Writer)); err != nil {
		return err
	}
	if engine == "native" && strings.TrimSpace(cfg.Library) == "" {
		return errors.New("config: library not set for native engine")
	}
	return nil
}

func registered(kind, name string, names []string) error {
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("config: %s %q not registered (available: %s)", kind, name, strings.Join(names, ", "))
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 引擎最后构造（native 会 dlopen）；返回的 Engine 由调用方 Close。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg); err != nil {
		return comp, pipeline.Settings{}, err
	}

	d := Defaults().Components
	rn := effName(cfg.Components.Reader, d.Reader)
	sn := effName(cfg.Components.Splitter, d.Splitter)
	en := effName(cfg.Components.Engine, d.Engine)
	an := effName(cfg.Components.Assembler, d.Assembler)
	wn := effName(cfg.Components.Writer, d.Writer)

	var err error
	if comp.Reader, err = registry.Reader[rn](cfg.Options.Reader); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("reader %s: %w", rn, err)
	}
	if comp.Splitter, err = registry.Splitter[sn](cfg.Options.Splitter); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("splitter %s: %w", sn, err)
	}
	if comp.Assembler, err = registry.Assembler[an](cfg.Options.Assembler); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("assembler %s: %w", an, err)
	}
	if comp.Writer, err = registry.Writer[wn](cfg.Options.Writer); err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("writer %s: %w", wn, err)
	}

	engOpts := cfg.Options.Engine
	if en == "native" {
		// 顶层 library 优先于 options.engine.library
		if engOpts, err = WithOption(engOpts, "library", cfg.Library); err != nil {
			return comp, pipeline.Settings{}, fmt.Errorf("engine %s: %w", en, err)
		}
	}
	eng, err := registry.Engine[en](engOpts)
	if err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("engine %s: %w", en, err)
	}
	comp.Engine = eng

	if cfg.PredictK > 0 {
		if _, ok := eng.(contract.Predictor); !ok {
			_ = eng.Close()
			comp.Engine = nil
			return comp, pipeline.Settings{}, fmt.Errorf("engine %s: %w: predict not supported", en, contract.ErrInvalidInput)
		}
	}

	set := pipeline.Settings{
		Inputs:     cloneStrings(cfg.Inputs),
		Model:      cfg.Model,
		ModelIndex: cfg.ModelIndex,
		PredictK:   cfg.PredictK,
		EngineName: en,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
