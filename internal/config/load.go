package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "RFPREQ_"

// Format: 配置文件格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Oracle 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency:    3,
		MaxRetries:     2,
		TimeoutSeconds: 120,
		Logging:        Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:    "fs",
			Pages:     "auto",
			Chunker:   "recursive",
			Counter:   "jsonfile",
			Writer:    "fs",
			Exporters: []string{"json", "csv"},
		},
	}
}

// FormatOf 按扩展名推断格式；未知扩展名按 JSON 处理。
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile 读取并严格解析配置文件。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadBytes(b, FormatOf(path))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes 按格式严格解析（拒绝未知字段）。
// 文件中缺省的 max_retries 保持为 -1，合并时不覆盖默认值。
func LoadBytes(raw []byte, f Format) (Config, error) {
	cfg := Config{MaxRetries: -1}
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, errors.New("empty config")
	}
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Discover 决定配置文件路径：显式路径 > RFPREQ_CONFIG_FILE > ./config.yaml|yml|json。
// 均不存在时返回空串。
func Discover(explicit string, getenv func(string) string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if getenv != nil {
		if p := strings.TrimSpace(getenv(EnvPrefix + "CONFIG_FILE")); p != "" {
			return p
		}
	}
	for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// LoadDotEnv 加载 .env（不覆盖已存在的环境变量）；文件不存在时静默跳过。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/原样 Options 为“替换”；map 按键替换，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// MaxRetries 的 0 有语义（禁用重试）：<0 视为未覆盖
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	if over.TimeoutSeconds != 0 {
		out.TimeoutSeconds = over.TimeoutSeconds
	}
	if v := strings.TrimSpace(over.Logging.Level); v != "" {
		out.Logging.Level = v
	}
	if v := strings.TrimSpace(over.Logging.Dir); v != "" {
		out.Logging.Dir = v
	}

	c, oc := &out.Components, over.Components
	pick(&c.Reader, oc.Reader)
	pick(&c.Pages, oc.Pages)
	pick(&c.Chunker, oc.Chunker)
	pick(&c.Counter, oc.Counter)
	pick(&c.Writer, oc.Writer)
	if len(oc.Exporters) > 0 {
		c.Exporters = cloneStrings(oc.Exporters)
	}

	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			prov[k] = v
		}
		out.Provider = prov
	}
	pick(&out.Oracle, over.Oracle)

	o, oo := &out.Options, over.Options
	pickRaw(&o.Reader, oo.Reader)
	pickRaw(&o.Pages, oo.Pages)
	pickRaw(&o.Chunker, oo.Chunker)
	pickRaw(&o.Counter, oo.Counter)
	pickRaw(&o.Writer, oo.Writer)
	if len(oo.Exporter) > 0 {
		ex := make(map[string]RawOptions, len(o.Exporter)+len(oo.Exporter))
		for k, v := range o.Exporter {
			ex[k] = v
		}
		for k, v := range oo.Exporter {
			ex[k] = cloneRaw(v)
		}
		o.Exporter = ex
	}
	if oo.Extract.MinChunkChars != 0 {
		o.Extract.MinChunkChars = oo.Extract.MinChunkChars
	}
	if oo.IDGen.CacheSize != 0 {
		o.IDGen.CacheSize = oo.IDGen.CacheSize
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，其余忽略）。
// 支持：INPUTS, CONCURRENCY, MAX_RETRIES, TIMEOUT_SECONDS, ORACLE, LOG_LEVEL, LOG_DIR,
// COMPONENTS_*（EXPORTERS 逗号分隔）, OPTIONS_{READER,PAGES,CHUNKER,COUNTER,WRITER}_JSON,
// 以及 PROVIDER__<name>__{CLIENT,OPTIONS_JSON,LIMITS_RPM,LIMITS_TPM,LIMITS_MAX_TOKENS_PER_REQ}。
// 数值无法解析时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	over.MaxRetries = -1
	prov := map[string]Provider{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		val = strings.TrimSpace(val)
		var err error
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			over.Concurrency, err = atoi(nk, val)
		case "MAX_RETRIES":
			over.MaxRetries, err = atoi(nk, val)
		case "TIMEOUT_SECONDS":
			over.TimeoutSeconds, err = atoi(nk, val)
		case "ORACLE":
			over.Oracle = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_PAGES":
			over.Components.Pages = val
		case "COMPONENTS_CHUNKER":
			over.Components.Chunker = val
		case "COMPONENTS_COUNTER":
			over.Components.Counter = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_EXPORTERS":
			over.Components.Exporters = splitComma(val)
		case "OPTIONS_READER_JSON":
			err = setRaw(&over.Options.Reader, nk, val)
		case "OPTIONS_PAGES_JSON":
			err = setRaw(&over.Options.Pages, nk, val)
		case "OPTIONS_CHUNKER_JSON":
			err = setRaw(&over.Options.Chunker, nk, val)
		case "OPTIONS_COUNTER_JSON":
			err = setRaw(&over.Options.Counter, nk, val)
		case "OPTIONS_WRITER_JSON":
			err = setRaw(&over.Options.Writer, nk, val)
		default:
			if rest, ok := strings.CutPrefix(nk, "PROVIDER__"); ok {
				err = providerEnv(prov, rest, val)
			}
		}
		if err != nil {
			return Config{}, err
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// providerEnv 处理 <name>__<FIELD>；空值不记录，避免清空文件中的定义。
func providerEnv(prov map[string]Provider, rest, val string) error {
	name, field, ok := strings.Cut(rest, "__")
	if !ok || strings.TrimSpace(name) == "" || val == "" {
		return nil
	}
	p := prov[name]
	var err error
	switch field {
	case "CLIENT":
		p.Client = val
	case "OPTIONS_JSON":
		err = setRaw(&p.Options, "PROVIDER__"+rest, val)
	case "LIMITS_RPM":
		p.Limits.RPM, err = atoi(rest, val)
	case "LIMITS_TPM":
		p.Limits.TPM, err = atoi(rest, val)
	case "LIMITS_MAX_TOKENS_PER_REQ":
		p.Limits.MaxTokensPerReq, err = atoi(rest, val)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	prov[name] = p
	return nil
}

func setRaw(dst *RawOptions, key, val string) error {
	if val == "" {
		return nil
	}
	if !json.Valid([]byte(val)) {
		return fmt.Errorf("env %s%s: invalid json", EnvPrefix, key)
	}
	return dst.UnmarshalJSON([]byte(val))
}

func pick(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func pickRaw(dst *RawOptions, v RawOptions) {
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

func cloneRaw(in RawOptions) RawOptions {
	if len(in) == 0 {
		return nil
	}
	out := make(RawOptions, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}
