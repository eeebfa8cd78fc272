package filesystem

import (
	"context"
	"fmt"
	"testing"

	"rfpreq/pkg/contract"
	"rfpreq/plugins/exporter/jsonout"
)

func records(n int) []contract.Requirement {
	out := make([]contract.Requirement, n)
	for i := range out {
		s := fmt.Sprintf("시스템은 보고서 %d 을 PDF 로 내려받을 수 있어야 한다.", i)
		out[i] = contract.Requirement{
			ID: contract.FormatID("RPT", "DOC", i+1), Type: contract.TypeFunctional,
			Name: s, Description: s, TargetTask: "보고서", ProcessingDetail: s,
			SourcePage: i/20 + 1, RawText: s,
			CategoryLarge: "보고", CategoryMedium: "출력", CategorySmall: contract.SentinelNA,
			Importance: contract.LevelMedium, Difficulty: contract.LevelLow,
		}
	}
	return out
}

// BenchmarkWriteExport 测量一份 JSON 工件从导出到落盘的耗时（原子/直写）。
func BenchmarkWriteExport(b *testing.B) {
	ex := jsonout.New(nil)
	ctx := context.Background()
	for _, n := range []int{10, 1000} {
		reqs := records(n)
		for _, atomic := range []bool{true, false} {
			b.Run(fmt.Sprintf("records=%d/atomic=%v", n, atomic), func(b *testing.B) {
				w, err := New(&Options{OutputDir: b.TempDir(), Atomic: &atomic})
				if err != nil {
					b.Fatalf("创建 Writer 失败: %v", err)
				}
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					r, err := ex.Export(ctx, reqs)
					if err != nil {
						b.Fatalf("导出失败: %v", err)
					}
					if err := w.Write(ctx, "rfp.json", r); err != nil {
						b.Fatalf("写入失败: %v", err)
					}
				}
			})
		}
	}
}
