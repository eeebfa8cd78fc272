package diag

import (
	"strconv"
	"sync"
)

// 进程内指标（运行结束时写入汇总日志）。
// 名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）

var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

func add(key string, v int64) {
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}

// IncOp 累加操作计数（result=success|error|degraded）。
func IncOp(comp, stage, result string) {
	add("op_total{"+comp+","+stage+","+result+"}", 1)
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	add("error_total{"+comp+","+code+"}", 1)
}

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add("op_duration_ms{"+comp+","+stage+"}", durMS)
}

// Snapshot 返回当前指标拷贝。
func Snapshot() map[string]int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make(map[string]int64, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}

// SnapshotKV 以字符串键值返回（写入日志 kv）。
func SnapshotKV() map[string]string {
	snap := Snapshot()
	out := make(map[string]string, len(snap))
	for k, v := range snap {
		out[k] = strconv.FormatInt(v, 10)
	}
	return out
}

// ResetMetrics 清空指标（测试用）。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
