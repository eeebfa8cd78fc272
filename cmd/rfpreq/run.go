package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	cfgpkg "rfpreq/internal/config"
	"rfpreq/internal/diag"
	"rfpreq/internal/pipeline"
)

var pipelineRun = pipeline.Run

// loadConfig 按优先级合并：Defaults < 文件 < ENV(.env) < CLI。
func loadConfig(f *flags, roots []string) (cfgpkg.Config, error) {
	if err := cfgpkg.LoadDotEnv(".env"); err != nil {
		return cfgpkg.Config{}, configErr(".env: %w", err)
	}
	cfg := cfgpkg.Defaults()
	if p := cfgpkg.Discover(f.config, os.Getenv); p != "" {
		base, err := cfgpkg.LoadFile(p)
		if err != nil {
			return cfgpkg.Config{}, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, configErr("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, env)

	cli := cfgpkg.Config{
		Inputs:      roots,
		Concurrency: f.concurrency,
		MaxRetries:  f.maxRetries,
		Oracle:      f.oracle,
		Logging:     cfgpkg.Logging{Level: f.logLevel, Dir: f.logDir},
	}
	return cfgpkg.Merge(cfg, cli), nil
}

func runPipeline(ctx context.Context, f *flags, roots []string, stderr io.Writer) error {
	start := time.Now()
	cfg, err := loadConfig(f, roots)
	if err != nil {
		return err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		return configErr("配置校验失败: %w", err)
	}
	logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
	defer func() { _ = logger.Sync() }()

	if err := preflightOutputDir(cfg); err != nil {
		logger.Error("config", string(diag.Classify(err)), "output dir not writable", &start)
		return configErr("输出目录不可写或无法创建: %w", err)
	}
	asm, err := cfgpkg.Assemble(cfg, logger)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return configErr("装配失败: %w", err)
	}
	defer func() { _ = asm.Close() }()

	logger.DebugStart("config", "effective", "", "", effectiveKV(cfg, asm.Client))
	term := diag.NewTerminal(stderr, f.status)
	term.RunStart(cfg.Concurrency, cfg.Oracle)
	set := asm.Settings
	set.Terminal = term

	t := logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, asm.Components, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "run failed: "+err.Error(), &start)
		diag.IncOp("pipeline", "error", "error")
		term.RunFinish(false, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &exitError{code: exitRuntime, err: err}
	}
	t.Finish("run", int64(sum.Requirements))
	if sum.Degraded > 0 {
		logger.WarnWithKV("pipeline", "oracle", "degraded records", "", "", map[string]string{
			"degraded": strconv.Itoa(sum.Degraded),
			"total":    strconv.Itoa(sum.Requirements),
		})
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	logger.DebugStart("diag", "metrics", "", "", diag.SnapshotKV())
	logger.InfoFinish("run", "files", start, int64(sum.Files))
	term.RunFinish(true, time.Since(start))
	return nil
}

// effectiveKV: 运行时配置摘要（不含密钥）。
func effectiveKV(cfg cfgpkg.Config, client string) map[string]string {
	kv := map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"max_retries":  strconv.Itoa(cfg.MaxRetries),
		"oracle":       cfg.Oracle,
		"client":       client,
		"counter":      cfg.Components.Counter,
		"writer":       cfg.Components.Writer,
		"exporters":    strings.Join(cfg.Components.Exporters, ","),
	}
	var s struct {
		BaseURL string `json:"base_url"`
		Model   string `json:"model"`
	}
	_ = json.Unmarshal(cfg.Provider[cfg.Oracle].Options.JSON(), &s)
	if s.BaseURL != "" {
		kv["base_url"] = s.BaseURL
	}
	if s.Model != "" {
		kv["model"] = s.Model
	}
	return kv
}

// preflightOutputDir: fs writer 启动前检查 output_dir 可写；其他 writer 跳过。
func preflightOutputDir(cfg cfgpkg.Config) error {
	name := cfg.Components.Writer
	if strings.TrimSpace(name) == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var w struct {
		OutputDir string `json:"output_dir"`
	}
	_ = json.Unmarshal(cfg.Options.Writer.JSON(), &w)
	dir := strings.TrimSpace(w.OutputDir)
	if dir == "" {
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && !st.IsDir():
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case err == nil:
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	// 不存在：向上找到第一个已存在的祖先并检查可写
	parent := filepath.Dir(filepath.Clean(dir))
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	tmp, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmp)
}
