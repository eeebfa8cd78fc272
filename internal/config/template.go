package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rfpreq/internal/fsutil"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock oracle（离线调试友好），openai/gemini 定义保留全部键；
// - 默认输入为 STDIN（"-"），工件写到 ./out；
// - 计数器为当前目录下的 JSON 文件。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Inputs = []string{"-"}
	cfg.Oracle = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client: "mock",
			Options: RawOptions(`{"codes":{"사용자 인증":"AUT","보안":"SEC"},"default_code":"SYS",` +
				`"classification":"공통/시스템 운영/해당 없음","importance":"중","difficulty":"하"}`),
			Limits: Limits{RPM: 600, TPM: 200000},
		},
		"openai": {
			Client: "openai",
			Options: RawOptions(`{"base_url":"https://api.openai.com/v1","model":"gpt-4o",` +
				`"api_key_env":"OPENAI_API_KEY","timeout_seconds":120,"extra_headers":{}}`),
			Limits: Limits{RPM: 500, TPM: 200000, MaxTokensPerReq: 16000},
		},
		"gemini": {
			Client:  "gemini",
			Options: RawOptions(`{"model":"gemini-2.5-flash","api_key_env":"GOOGLE_API_KEY","response_mime_type":"application/json"}`),
			Limits:  Limits{RPM: 60, TPM: 1000000},
		},
	}
	cfg.Options.Reader = RawOptions(`{"extensions":[".txt",".json"],"exclude_dir_names":[".git","node_modules"]}`)
	cfg.Options.Pages = RawOptions(`{"page_break":"\f"}`)
	cfg.Options.Chunker = RawOptions(`{"chunk_size":4000,"chunk_overlap":200}`)
	cfg.Options.Counter = RawOptions(`{"path":"req_task_cat_counters.json"}`)
	cfg.Options.Writer = RawOptions(`{"output_dir":"out","atomic":true,"flat":true}`)
	cfg.Options.Exporter = map[string]RawOptions{
		"json": RawOptions(`{"indent":2}`),
		"csv":  RawOptions(`{"bom":false,"crlf":false}`),
	}
	cfg.Options.Extract = ExtractOptions{MinChunkChars: 50}
	cfg.Options.IDGen = IDGenOptions{CacheSize: 1024}
	return cfg
}

const envTemplate = `# rfpreq 环境变量（已存在的环境变量优先）
OPENAI_API_KEY=
GOOGLE_API_KEY=
MINIO_ACCESS_KEY=
MINIO_SECRET_KEY=
# RFPREQ_ORACLE=openai
# RFPREQ_CONCURRENCY=3
# RFPREQ_LOG_LEVEL=debug
`

// ErrTemplateExists: 目标目录已有配置文件且未要求覆盖。
var ErrTemplateExists = errors.New("config template already exists")

// WriteTemplate 在 dir 下写出 config.yaml 与 .env 模板；返回写出的路径。
func WriteTemplate(dir string, force bool) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	body, err := yaml.Marshal(DefaultTemplateConfig())
	if err != nil {
		return nil, err
	}
	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{"config.yaml", body, 0o644},
		{".env", []byte(envTemplate), 0o600},
	}
	if !force {
		for _, f := range files {
			p := filepath.Join(dir, f.name)
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%s: %w", p, ErrTemplateExists)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := fsutil.WriteFileAtomic(p, f.data, f.perm); err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
