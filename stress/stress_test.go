package stress

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	cfgpkg "rfpreq/internal/config"
	"rfpreq/pkg/contract"
)

const (
	docs         = 6
	pagesPerDoc  = 8
	linesPerPage = 4
)

// counterOptions 为各计数器后端在 dir 下构造选项。
var counterOptions = map[string]func(dir string) string{
	"jsonfile": func(dir string) string { return fmt.Sprintf(`{"path":%q}`, filepath.Join(dir, "counters.json")) },
	"badger":   func(dir string) string { return fmt.Sprintf(`{"dir":%q}`, filepath.Join(dir, "badger")) },
	"sqlite":   func(dir string) string { return fmt.Sprintf(`{"path":%q}`, filepath.Join(dir, "counters.db")) },
}

// baseConfig 构造 mock oracle + 指定计数器后端的配置。
func baseConfig(t *testing.T, counter string, conc int) cfgpkg.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{dir}
	cfg.Concurrency = conc
	cfg.MaxRetries = 0
	cfg.Logging.Level = "error"
	cfg.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: cfgpkg.RawOptions(`{"latency_ms":1}`)}
	cfg.Components.Counter = counter
	cfg.Options.Counter = cfgpkg.RawOptions(counterOptions[counter](dir))
	cfg.Options.Writer = cfgpkg.RawOptions(fmt.Sprintf(`{"output_dir":%q}`, filepath.Join(dir, "out")))
	return cfg
}

// document 生成每行一个需求句的合成文档。
func document(doc int) []contract.Page {
	pages := make([]contract.Page, 0, pagesPerDoc)
	for p := 1; p <= pagesPerDoc; p++ {
		var b strings.Builder
		b.WriteString("제안요청서 본문의 배경 설명 문단으로 요구사항이 아닌 일반 서술입니다.\n")
		for l := 0; l < linesPerPage; l++ {
			fmt.Fprintf(&b, "문서 %d 기능 %d-%d 을 지원해야 한다.\n", doc, p, l)
		}
		pages = append(pages, contract.Page{Number: p, Text: b.String()})
	}
	return pages
}

// TestStress 在不同计数器后端与并发度下并发处理多份文档，
// 校验同一前缀的序号跨文档连续且唯一，并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压测")
	}
	levels := []int{1, 8, 32}
	for _, counter := range []string{"jsonfile", "badger", "sqlite"} {
		for _, conc := range levels {
			t.Run(fmt.Sprintf("%s/concurrency_%d", counter, conc), func(t *testing.T) {
				a, err := cfgpkg.Assemble(baseConfig(t, counter, conc), nil)
				require.NoError(t, err)
				defer a.Close()

				var (
					mu        sync.Mutex
					ids       []string
					latencies []time.Duration
				)
				g, ctx := errgroup.WithContext(context.Background())
				for d := 0; d < docs; d++ {
					g.Go(func() error {
						start := time.Now()
						res, err := a.Components.Processor.ProcessDocument(ctx, document(d))
						if err != nil {
							return err
						}
						if err := contract.ValidateRequirements(res.Requirements); err != nil {
							return err
						}
						mu.Lock()
						defer mu.Unlock()
						latencies = append(latencies, time.Since(start))
						for _, r := range res.Requirements {
							ids = append(ids, r.ID)
						}
						return nil
					})
				}
				require.NoError(t, g.Wait())

				total := docs * pagesPerDoc * linesPerPage
				require.Len(t, ids, total)
				sort.Strings(ids)
				for i, id := range ids {
					if want := contract.FormatID("SYS", "SYS", i+1); id != want {
						t.Fatalf("序号不连续: 位置 %d 得到 %s, 期望 %s", i, id, want)
					}
				}
				snap, err := a.Counter.Snapshot(context.Background())
				require.NoError(t, err)
				require.Equal(t, total, snap["SYS-SYS"])

				sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
				var sum time.Duration
				for _, d := range latencies {
					sum += d
				}
				avg := sum / time.Duration(len(latencies))
				idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
				if idx < 0 {
					idx = 0
				}
				t.Logf("%s 并发%d 文档%d 需求%d 平均%v 95%%延迟%v", counter, conc, docs, total, avg, latencies[idx])
			})
		}
	}
}
