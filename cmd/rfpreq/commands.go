package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	cfgpkg "rfpreq/internal/config"
)

func initConfig(dir string, force bool, stdout io.Writer) error {
	paths, err := cfgpkg.WriteTemplate(dir, force)
	if err != nil {
		if errors.Is(err, cfgpkg.ErrTemplateExists) {
			return configErr("%w（使用 --force 覆盖）", err)
		}
		return configErr("生成默认配置失败: %w", err)
	}
	for _, p := range paths {
		fmt.Fprintf(stdout, "已生成 %s\n", p)
	}
	return nil
}

// printCounters 打印 "<TASK>-<CAT>" → 最后分配序号。
func printCounters(ctx context.Context, f *flags, stdout io.Writer) error {
	cfg, err := loadConfig(f, nil)
	if err != nil {
		return err
	}
	store, err := cfgpkg.OpenCounter(cfg)
	if err != nil {
		return configErr("%w", err)
	}
	defer func() { _ = store.Close() }()
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return &exitError{code: exitRuntime, err: err}
	}
	if snap == nil {
		snap = map[string]int{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &exitError{code: exitRuntime, err: err}
	}
	_, err = fmt.Fprintln(stdout, string(b))
	return err
}
