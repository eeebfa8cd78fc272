package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rfpreq/internal/assess"
	"rfpreq/internal/diag"
	"rfpreq/internal/extract"
	"rfpreq/internal/idgen"
	"rfpreq/internal/oracle"
	"rfpreq/internal/pipeline"
	"rfpreq/internal/rate"
	"rfpreq/internal/refine"
	"rfpreq/pkg/contract"
	"rfpreq/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
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
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if cfg.TimeoutSeconds < 0 {
		return errors.New("config: timeout_seconds must be >= 0")
	}
	if _, err := providerOf(cfg); err != nil {
		return err
	}
	d := Defaults().Components
	checks := []struct {
		kind, name string
		ok         bool
	}{
		{"reader", eff(cfg.Components.Reader, d.Reader), registry.Reader[eff(cfg.Components.Reader, d.Reader)] != nil},
		{"pages", eff(cfg.Components.Pages, d.Pages), registry.Pages[eff(cfg.Components.Pages, d.Pages)] != nil},
		{"chunker", eff(cfg.Components.Chunker, d.Chunker), registry.Chunker[eff(cfg.Components.Chunker, d.Chunker)] != nil},
		{"counter", eff(cfg.Components.Counter, d.Counter), registry.Counter[eff(cfg.Components.Counter, d.Counter)] != nil},
		{"writer", eff(cfg.Components.Writer, d.Writer), registry.Writer[eff(cfg.Components.Writer, d.Writer)] != nil},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("config: %s %q not registered", c.kind, c.name)
		}
	}
	exps := exporters(cfg)
	if len(exps) == 0 {
		return errors.New("config: at least one exporter required")
	}
	// 同一扩展名的两个导出器会互相覆盖工件
	seen := map[string]bool{}
	for _, name := range exps {
		if registry.Exporter[name] == nil {
			return fmt.Errorf("config: exporter %q not registered", name)
		}
		if seen[name] {
			return fmt.Errorf("config: exporter %q listed twice", name)
		}
		seen[name] = true
	}
	for name := range cfg.Options.Exporter {
		if !seen[name] {
			return fmt.Errorf("config: options for exporter %q which is not enabled", name)
		}
	}
	return nil
}

func providerOf(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.Oracle) == "" {
		return Provider{}, errors.New("config: oracle not set")
	}
	prov, ok := cfg.Provider[cfg.Oracle]
	if !ok {
		return Provider{}, fmt.Errorf("config: provider %q not found", cfg.Oracle)
	}
	if prov.Client == "" {
		return Provider{}, fmt.Errorf("config: provider %q missing client", cfg.Oracle)
	}
	if registry.Oracle[prov.Client] == nil {
		return Provider{}, fmt.Errorf("config: oracle client %q not registered", prov.Client)
	}
	l := prov.Limits
	if l.RPM < 0 || l.TPM < 0 || l.MaxTokensPerReq < 0 {
		return Provider{}, fmt.Errorf("config: provider %q limits must be >= 0", cfg.Oracle)
	}
	return prov, nil
}

// Assembled: 装配结果。Close 释放计数器存储等资源。
type Assembled struct {
	Components pipeline.Components
	Settings   pipeline.Settings
	Counter    contract.CounterStore
	Gate       *rate.Gate
	GateKey    rate.LimitKey
	// Client: 实际 oracle 后端名（终端提示用）。
	Client string
}

func (a *Assembled) Close() error {
	if a == nil || a.Counter == nil {
		return nil
	}
	return a.Counter.Close()
}

// Assemble 校验并构造完整流水线。严格 Options 解析在 registry（工厂）层进行。
func Assemble(cfg Config, log *diag.Logger) (*Assembled, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = diag.Nop()
	}
	d := Defaults().Components
	reader, err := registry.Reader[eff(cfg.Components.Reader, d.Reader)](cfg.Options.Reader.JSON())
	if err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	pages, err := registry.Pages[eff(cfg.Components.Pages, d.Pages)](cfg.Options.Pages.JSON())
	if err != nil {
		return nil, fmt.Errorf("pages: %w", err)
	}
	chunker, err := registry.Chunker[eff(cfg.Components.Chunker, d.Chunker)](cfg.Options.Chunker.JSON())
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	var exps []contract.Exporter
	for _, name := range exporters(cfg) {
		ex, err := registry.Exporter[name](cfg.Options.Exporter[name].JSON())
		if err != nil {
			return nil, fmt.Errorf("exporter %s: %w", name, err)
		}
		exps = append(exps, ex)
	}
	writer, err := registry.Writer[eff(cfg.Components.Writer, d.Writer)](cfg.Options.Writer.JSON())
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	prov, _ := providerOf(cfg)
	backend, err := registry.Oracle[prov.Client](prov.Options.JSON())
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", cfg.Oracle, err)
	}
	// 同一凭据共享额度；派生失败退化为 provider 名
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options.JSON())
	if derr != nil {
		key = rate.LimitKey(cfg.Oracle)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)
	guarded := oracle.NewGuard(backend, oracle.Options{
		Gate:       gate,
		GateKey:    key,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		Logger:     log,
	})

	store, err := OpenCounter(cfg)
	if err != nil {
		return nil, err
	}
	ids, err := idgen.New(guarded, store, idgen.Options{CacheSize: cfg.Options.IDGen.CacheSize}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	proc, err := pipeline.NewProcessor(pipeline.Stages{
		Chunker:   chunker,
		Extractor: extract.New(guarded, extract.Options{MinChunkChars: cfg.Options.Extract.MinChunkChars}, log),
		Refiner:   refine.New(guarded, log),
		Assessor:  assess.New(guarded, log),
		IDs:       ids,
	}, cfg.Concurrency, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Assembled{
		Components: pipeline.Components{
			Reader:    reader,
			Pages:     pages,
			Processor: proc,
			Exporters: exps,
			Writer:    writer,
		},
		Settings: pipeline.Settings{Inputs: cloneStrings(cfg.Inputs)},
		Counter:  store,
		Gate:     gate,
		GateKey:  key,
		Client:   prov.Client,
	}, nil
}

// OpenCounter 仅打开计数器存储（counters 子命令不需要完整流水线）。
func OpenCounter(cfg Config) (contract.CounterStore, error) {
	name := eff(cfg.Components.Counter, Defaults().Components.Counter)
	open := registry.Counter[name]
	if open == nil {
		return nil, fmt.Errorf("config: counter %q not registered", name)
	}
	store, err := open(cfg.Options.Counter.JSON())
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	return store, nil
}

func exporters(cfg Config) []string {
	if len(cfg.Components.Exporters) == 0 {
		return Defaults().Components.Exporters
	}
	return cfg.Components.Exporters
}

func eff(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
