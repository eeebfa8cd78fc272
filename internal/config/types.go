package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；JSON 与 YAML 的未知字段均在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Concurrency int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// MaxRetries: Oracle 可重试错误的最大重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// TimeoutSeconds: 单次 Oracle 调用超时；0 表示不设置。
	TimeoutSeconds int     `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Logging        Logging `json:"logging" yaml:"logging"`

	Components Components `json:"components" yaml:"components"`

	// Oracle: 选用的 provider 名称（provider 表中的键）。
	Oracle   string              `json:"oracle,omitempty" yaml:"oracle,omitempty"`
	Provider map[string]Provider `json:"provider,omitempty" yaml:"provider,omitempty"`

	Options Options `json:"options" yaml:"options"`
}

type Logging struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Dir: 日志目录；"-" 输出到 stderr。
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string   `json:"reader,omitempty" yaml:"reader,omitempty"`
	Pages     string   `json:"pages,omitempty" yaml:"pages,omitempty"`
	Chunker   string   `json:"chunker,omitempty" yaml:"chunker,omitempty"`
	Counter   string   `json:"counter,omitempty" yaml:"counter,omitempty"`
	Writer    string   `json:"writer,omitempty" yaml:"writer,omitempty"`
	Exporters []string `json:"exporters,omitempty" yaml:"exporters,omitempty"`
}

// Options: 插件为原样 Options 子树；阶段参数为强类型。
type Options struct {
	Reader  RawOptions `json:"reader,omitempty" yaml:"reader,omitempty"`
	Pages   RawOptions `json:"pages,omitempty" yaml:"pages,omitempty"`
	Chunker RawOptions `json:"chunker,omitempty" yaml:"chunker,omitempty"`
	Counter RawOptions `json:"counter,omitempty" yaml:"counter,omitempty"`
	Writer  RawOptions `json:"writer,omitempty" yaml:"writer,omitempty"`
	// Exporter: 按导出器名索引。
	Exporter map[string]RawOptions `json:"exporter,omitempty" yaml:"exporter,omitempty"`

	Extract ExtractOptions `json:"extract" yaml:"extract"`
	IDGen   IDGenOptions   `json:"idgen" yaml:"idgen"`
}

type ExtractOptions struct {
	MinChunkChars int `json:"min_chunk_chars,omitempty" yaml:"min_chunk_chars,omitempty"`
}

type IDGenOptions struct {
	CacheSize int `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
}

// Provider: 命名 provider 定义（后端实现 + options + 限额）。
type Provider struct {
	Client  string     `json:"client" yaml:"client"`
	Options RawOptions `json:"options,omitempty" yaml:"options,omitempty"`
	Limits  Limits     `json:"limits" yaml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm" yaml:"rpm"`
	TPM             int `json:"tpm" yaml:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req" yaml:"max_tokens_per_req"`
}

// RawOptions: 插件 Options 子树。无论来自 JSON 还是 YAML，统一保存为紧凑 JSON，
// 由 registry 工厂严格解码。
type RawOptions json.RawMessage

// JSON 返回可直接交给工厂的原样 JSON（空则为 nil）。
func (r RawOptions) JSON() json.RawMessage {
	if len(r) == 0 {
		return nil
	}
	return json.RawMessage(r)
}

func (r RawOptions) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawOptions) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = nil
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*r = RawOptions(buf.Bytes())
	return nil
}

func (r *RawOptions) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*r = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*r = RawOptions(b)
	return nil
}

func (r RawOptions) MarshalYAML() (any, error) {
	if len(r) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}
