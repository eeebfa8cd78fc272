package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// 退出码
const (
	exitOK          = 0
	exitRuntime     = 1
	exitConfig      = 3
	exitInterrupted = 130
)

// exitError 携带退出码；RunE 返回后由 execute 统一映射。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, a ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, a...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags: 全局旗标（覆盖配置文件与 ENV）。
type flags struct {
	config      string
	oracle      string
	concurrency int
	maxRetries  int
	logLevel    string
	logDir      string
	status      bool
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(stderr, "已中断")
		return exitInterrupted
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 自身的参数/旗标错误按配置错误处理
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "rfpreq [inputs...]",
		Short: "从 RFP 文档抽取结构化需求（默认子命令 run）",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), f, args, stderr)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "配置文件（.yaml/.yml/.json）；缺省依次查找 RFPREQ_CONFIG_FILE、./config.yaml、./config.json")
	pf.StringVar(&f.oracle, "oracle", "", "provider 名称（覆盖配置）")
	pf.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	// -1 表示未覆盖；0 为显式禁用重试
	pf.IntVar(&f.maxRetries, "max-retries", -1, "Oracle 最大重试次数（0 表示不重试）")
	pf.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	pf.StringVar(&f.logDir, "log-dir", "", `日志目录；"-" 写 stderr`)
	pf.BoolVar(&f.status, "status", true, "终端状态提示（stderr）")

	run := &cobra.Command{
		Use:   "run [inputs...]",
		Short: "处理输入文件/目录（\"-\" 表示 STDIN）",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), f, args, stderr)
		},
	}
	var force bool
	initCfg := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成可运行的 config.yaml 与 .env 模板",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initConfig(dir, force, stdout)
		},
	}
	initCfg.Flags().BoolVar(&force, "force", false, "覆盖已存在的模板文件")
	counters := &cobra.Command{
		Use:   "counters",
		Short: "以 JSON 打印持久化计数器快照",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCounters(cmd.Context(), f, stdout)
		},
	}
	root.AddCommand(run, initCfg, counters)
	return root
}
