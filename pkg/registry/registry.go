package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"ftprep/pkg/contract"
	atsv "ftprep/plugins/assembler/tsv"
	emock "ftprep/plugins/engine/mock"
	enative "ftprep/plugins/engine/native"
	rfs "ftprep/plugins/reader/filesystem"
	sgalaxy "ftprep/plugins/splitter/galaxy"
	wfs "ftprep/plugins/writer/filesystem"
	wstdout "ftprep/plugins/writer/stdout"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewEngine 工厂签名：接收原样 JSON Options。native 会在此处 dlopen。
type NewEngine func(raw json.RawMessage) (contract.Engine, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// galaxy: "id|base64|..." 行格式
	"galaxy": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts sgalaxy.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sgalaxy.New(&opts)
	},
}

// Engine 工厂注册表。
var Engine = map[string]NewEngine{
	// native: dlopen 预编译 fastText 预处理库
	"native": func(raw json.RawMessage) (contract.Engine, error) {
		var opts enative.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return enative.New(&opts)
	},
	// mock: 离线替身
	"mock": func(raw json.RawMessage) (contract.Engine, error) {
		var opts emock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return emock.New(&opts)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	"tsv": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts atsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return atsv.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// stdout: 顺序透传到进程标准输出
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wstdout.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wstdout.New(&opts), nil
	},
	// fs: 文件系统 Writer（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Names 返回注册表中的名称（字典序），用于错误提示与帮助文本。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
